package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// Upload is one file in an upload batch.
type Upload struct {
	Name   string
	Reader io.Reader
}

// LoginResult is the response of the login endpoint.
type LoginResult struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// Login exchanges credentials for a token. The caller persists the result
// and installs the token with SetToken.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateChat creates a chat with the given participant ids.
func (c *Client) CreateChat(ctx context.Context, participantIDs []string) (store.Chat, error) {
	body := map[string][]string{"users": participantIDs}
	var out store.Chat
	if err := c.do(ctx, http.MethodPost, "/chats", body, &out); err != nil {
		return store.Chat{}, err
	}
	return out, nil
}

// SendMessageRequest is the outbound message write.
type SendMessageRequest struct {
	ChatID      string             `json:"chatId"`
	Sender      string             `json:"sender"`
	Content     string             `json:"content"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
}

// SendMessage performs the authoritative message write. The returned record
// carries the server-assigned id.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (store.Message, error) {
	var out store.Message
	if err := c.do(ctx, http.MethodPost, "/messages", req, &out); err != nil {
		return store.Message{}, err
	}
	return out, nil
}

// FetchMessages returns the ordered message list for a chat.
func (c *Client) FetchMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	var out []store.Message
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchChats returns the chat list for a user.
func (c *Client) FetchChats(ctx context.Context, userID string) ([]store.Chat, error) {
	var out []store.Chat
	path := fmt.Sprintf("/users/%s/chats", url.PathEscape(userID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMessageStatus advances a message's delivery status server-side and
// returns the updated record.
func (c *Client) UpdateMessageStatus(ctx context.Context, messageID string, status store.Status) (store.Message, error) {
	body := map[string]string{"status": string(status)}
	var out store.Message
	path := fmt.Sprintf("/messages/%s/status", url.PathEscape(messageID))
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return store.Message{}, err
	}
	return out, nil
}

type uploadResponse struct {
	URLs []string `json:"urls"`
}

// UploadPictures uploads an image batch and returns the resulting URLs.
func (c *Client) UploadPictures(ctx context.Context, userID string, files []Upload) ([]string, error) {
	var out uploadResponse
	if err := c.upload(ctx, "/uploads/pictures", userID, files, &out); err != nil {
		return nil, err
	}
	return out.URLs, nil
}

// UploadFiles uploads a generic file batch and returns the resulting URLs.
func (c *Client) UploadFiles(ctx context.Context, userID string, files []Upload) ([]string, error) {
	var out uploadResponse
	if err := c.upload(ctx, "/uploads/files", userID, files, &out); err != nil {
		return nil, err
	}
	return out.URLs, nil
}
