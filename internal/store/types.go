package store

import "time"

// AttachmentKind distinguishes the two upload channels the backend exposes.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a message attachment. URL is empty until the upload
// completes; LocalPath exists only pre-upload and never crosses the wire.
type Attachment struct {
	Kind AttachmentKind `json:"type"`
	URL  string         `json:"url"`
	Name string         `json:"name,omitempty"`

	LocalPath string `json:"-"`
}

// Status is a message delivery lifecycle stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// nextStatus defines the delivery lifecycle: pending → sent → delivered →
// read, with pending → failed as the only skip. failed and read are terminal.
var nextStatus = map[Status][]Status{
	StatusPending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered},
	StatusDelivered: {StatusRead},
}

// CanAdvanceTo reports whether to is a valid next lifecycle stage.
func (s Status) CanAdvanceTo(to Status) bool {
	for _, n := range nextStatus[s] {
		if n == to {
			return true
		}
	}
	return false
}

// Message is a single chat entry. ID is server-assigned once confirmed; a
// provisional entry carries a locally generated temp id until then. The id
// is the sole de-duplication key within a chat's message list.
type Message struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chatId"`
	Sender      string       `json:"sender"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Status      Status       `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`

	// Error holds the failure description for a failed send. Local only.
	Error string `json:"-"`
}

// Meaningful reports whether the message carries content or attachments.
func (m Message) Meaningful() bool {
	return m.Content != "" || len(m.Attachments) > 0
}

// Chat is a conversation summary. The ordered message list itself lives in
// the store, keyed by chat id.
type Chat struct {
	ID           string   `json:"id"`
	Participants []string `json:"users"`
	LastMessage  *Message `json:"lastMessage,omitempty"`
	UnreadCount  int      `json:"unreadCount,omitempty"`
}

// HasParticipant reports whether userID is part of the chat.
func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ChatPatch carries the fields UpdateChat merges into a chat summary.
// Nil fields are left untouched.
type ChatPatch struct {
	LastMessage *Message
	UnreadCount *int
}
