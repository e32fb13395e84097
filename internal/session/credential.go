package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the stored login state for a session.
type Credential struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Token  string `json:"token"`
}

// ErrNoCredential indicates no stored credential for the session.
var ErrNoCredential = errors.New("no stored credential")

// SaveCredential writes the credential file with 0600 permissions.
func SaveCredential(name string, cred *Credential) error {
	if err := EnsureDir(name); err != nil {
		return err
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return os.WriteFile(CredentialPath(name), data, 0600)
}

// LoadCredential reads the stored credential. Returns ErrNoCredential when
// the file does not exist.
func LoadCredential(name string) (*Credential, error) {
	data, err := os.ReadFile(CredentialPath(name))
	if os.IsNotExist(err) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, err
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parse credential: %w", err)
	}
	if cred.Token == "" {
		return nil, ErrNoCredential
	}
	return &cred, nil
}

// ClearCredential removes the stored credential. This is the session reset:
// an expired or rejected token is never retried, the user logs in again.
func ClearCredential(name string) error {
	err := os.Remove(CredentialPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// TokenExpired inspects the token's exp claim without verifying the
// signature (the server is the verifier; the client only wants to skip a
// doomed round trip). Tokens without an exp claim are treated as live.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Unparseable token: let the server reject it.
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
