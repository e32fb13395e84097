package store

import (
	"strings"

	"github.com/google/uuid"
)

// tempIDPrefix marks provisional (not yet server-confirmed) message ids.
// Server ids never carry it, so a prefix check classifies any id.
const tempIDPrefix = "tmp-"

// NewTempID generates a provisional message id.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// RefKind classifies a message identity.
type RefKind int

const (
	// Provisional ids are local; the entry awaits server confirmation.
	Provisional RefKind = iota
	// Confirmed ids are server-assigned and stable.
	Confirmed
)

// Ref is a classified message identity. ConfirmMessage replaces a
// Provisional entry with a Confirmed one in place; the tagged form keeps
// that distinction explicit at call sites.
type Ref struct {
	Kind RefKind
	ID   string
}

// ParseRef classifies a raw message id.
func ParseRef(id string) Ref {
	if strings.HasPrefix(id, tempIDPrefix) {
		return Ref{Kind: Provisional, ID: id}
	}
	return Ref{Kind: Confirmed, ID: id}
}

// IsTempID reports whether id is a provisional local id.
func IsTempID(id string) bool {
	return ParseRef(id).Kind == Provisional
}
