package send

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/rest"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/session"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// EventAuthExpired is published when a send fails on an expired credential.
// The runtime reacts with a session reset; the pipeline itself never retries.
const EventAuthExpired = "session.auth_expired"

// API is the subset of the REST client the pipeline performs writes through.
type API interface {
	CreateChat(ctx context.Context, participantIDs []string) (store.Chat, error)
	SendMessage(ctx context.Context, req rest.SendMessageRequest) (store.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status store.Status) (store.Message, error)
	UploadPictures(ctx context.Context, userID string, files []rest.Upload) ([]string, error)
	UploadFiles(ctx context.Context, userID string, files []rest.Upload) ([]string, error)
}

// StatusNotifier pushes read receipts onto the socket.
type StatusNotifier interface {
	NotifyMessageStatus(messageID string, status store.Status) error
}

// ValidationError rejects malformed input before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func validationErr(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// PendingChatKey is the provisional store key holding previews for a
// recipient while no chat with them exists yet. Once the chat is created the
// preview moves under the real chat id.
func PendingChatKey(recipientID string) string {
	return "pending:" + recipientID
}

// Pipeline gives immediate UI feedback for outgoing messages while the
// authoritative write is in flight: a pending entry is inserted first and
// later confirmed or marked failed in place. Failures are terminal for the
// attempt; resending is a new user action with a new temp id.
type Pipeline struct {
	store    *store.Store
	api      API
	notifier StatusNotifier
	bus      *bus.Bus
	logger   *zap.Logger

	// alive guards against mutations after teardown: an in-flight send
	// cannot be cancelled, so its eventual resolution is simply ignored.
	alive atomic.Bool
}

// NewPipeline creates a live pipeline. The notifier may be nil (no socket).
func NewPipeline(s *store.Store, api API, notifier StatusNotifier, b *bus.Bus, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		store:    s,
		api:      api,
		notifier: notifier,
		bus:      b,
		logger:   logger,
	}
	p.alive.Store(true)
	return p
}

// Close tears the pipeline down. In-flight sends resolve into the void.
func (p *Pipeline) Close() {
	p.alive.Store(false)
}

// SendText validates and sends a text message. chatID may be empty when no
// chat with the recipient exists yet; the chat is then created first with
// exactly the two participant ids. A non-nil return is always a validation
// error — transport failures surface as failed message state, not as errors.
func (p *Pipeline) SendText(ctx context.Context, userID, recipientID, chatID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return validationErr("empty message")
	}
	if err := p.validateParties(userID, recipientID, chatID); err != nil {
		return err
	}

	tempID := store.NewTempID()
	pending := store.Message{
		ID:        tempID,
		ChatID:    chatID,
		Sender:    userID,
		Content:   text,
		Status:    store.StatusPending,
		CreatedAt: time.Now(),
	}

	key := p.previewKey(userID, recipientID, &chatID)
	pending.ChatID = chatID
	p.store.AddPreview(key, pending)

	chatID, key, ok := p.ensureChat(ctx, userID, recipientID, chatID, key, &pending)
	if !ok {
		return nil
	}

	real, err := p.api.SendMessage(ctx, rest.SendMessageRequest{
		ChatID:  chatID,
		Sender:  userID,
		Content: text,
	})
	p.resolve(key, chatID, tempID, real, err)
	return nil
}

// SendAttachments mirrors SendText with an upload step per attachment batch.
// An upload returning zero URLs for non-empty input fails the send.
func (p *Pipeline) SendAttachments(ctx context.Context, userID, recipientID, chatID, text string, images, files []rest.Upload) error {
	text = strings.TrimSpace(text)
	if len(images) == 0 && len(files) == 0 {
		if text == "" {
			return validationErr("empty message")
		}
		return p.SendText(ctx, userID, recipientID, chatID, text)
	}
	if err := p.validateParties(userID, recipientID, chatID); err != nil {
		return err
	}

	tempID := store.NewTempID()
	pending := store.Message{
		ID:          tempID,
		ChatID:      chatID,
		Sender:      userID,
		Content:     text,
		Attachments: previewAttachments(images, files),
		Status:      store.StatusPending,
		CreatedAt:   time.Now(),
	}

	key := p.previewKey(userID, recipientID, &chatID)
	pending.ChatID = chatID
	p.store.AddPreview(key, pending)

	chatID, key, ok := p.ensureChat(ctx, userID, recipientID, chatID, key, &pending)
	if !ok {
		return nil
	}

	attachments, err := p.uploadAll(ctx, userID, images, files)
	if err != nil {
		p.fail(key, tempID, err)
		return nil
	}

	real, err := p.api.SendMessage(ctx, rest.SendMessageRequest{
		ChatID:      chatID,
		Sender:      userID,
		Content:     text,
		Attachments: attachments,
	})
	p.resolve(key, chatID, tempID, real, err)
	return nil
}

// MarkRead marks an inbound message as read: local store update plus
// best-effort remote + socket notification. Never retried, never an error.
func (p *Pipeline) MarkRead(ctx context.Context, viewerID string, msg store.Message) {
	if msg.Sender == viewerID || msg.Status == store.StatusRead || msg.Status == store.StatusFailed {
		return
	}
	if store.IsTempID(msg.ID) {
		return
	}

	msg.Status = store.StatusRead
	p.store.UpdateMessage(msg.ChatID, msg)

	if _, err := p.api.UpdateMessageStatus(ctx, msg.ID, store.StatusRead); err != nil {
		p.logger.Warn("read receipt not persisted", zap.Error(err), zap.String("msg_id", msg.ID))
		p.checkAuth(err)
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyMessageStatus(msg.ID, store.StatusRead); err != nil {
			p.logger.Debug("read receipt not broadcast", zap.Error(err), zap.String("msg_id", msg.ID))
		}
	}
}

// validateParties rejects malformed identifiers before any network call.
// The recipient is only required when the chat does not exist yet.
func (p *Pipeline) validateParties(userID, recipientID, chatID string) error {
	if err := session.ValidateUserID(userID); err != nil {
		return validationErr("sender: %v", err)
	}
	if chatID != "" {
		return nil
	}
	if recipientID == "" {
		return validationErr("no recipient selected")
	}
	if err := session.ValidateUserID(recipientID); err != nil {
		return validationErr("recipient: %v", err)
	}
	if recipientID == userID {
		return validationErr("cannot send to self")
	}
	return nil
}

// previewKey resolves where the optimistic entry lives. A known direct chat
// short-circuits chat creation; otherwise the preview parks under the
// recipient's pending key until the chat exists.
func (p *Pipeline) previewKey(userID, recipientID string, chatID *string) string {
	if *chatID != "" {
		return *chatID
	}
	if c, ok := p.store.DirectChatWith(userID, recipientID); ok {
		*chatID = c.ID
		return c.ID
	}
	return PendingChatKey(recipientID)
}

// ensureChat creates the chat when chatID is empty and migrates the preview
// under the real chat id. Returns ok=false when the send is already settled
// (creation failed and the preview was marked failed).
func (p *Pipeline) ensureChat(ctx context.Context, userID, recipientID, chatID, key string, pending *store.Message) (string, string, bool) {
	if chatID != "" {
		return chatID, key, true
	}

	chat, err := p.api.CreateChat(ctx, []string{userID, recipientID})
	if err != nil {
		p.fail(key, pending.ID, err)
		return "", "", false
	}
	if !p.alive.Load() {
		return "", "", false
	}

	p.store.AddChat(chat)
	p.store.RemovePreview(key, pending.ID)
	pending.ChatID = chat.ID
	p.store.AddPreview(chat.ID, *pending)
	return chat.ID, chat.ID, true
}

func (p *Pipeline) uploadAll(ctx context.Context, userID string, images, files []rest.Upload) ([]store.Attachment, error) {
	var attachments []store.Attachment

	if len(images) > 0 {
		urls, err := p.api.UploadPictures(ctx, userID, images)
		if err != nil {
			return nil, err
		}
		// A shortfall is a total failure: the backend reports no per-file
		// errors, so a partial batch cannot be attributed.
		if len(urls) < len(images) {
			return nil, fmt.Errorf("picture upload returned %d of %d URLs", len(urls), len(images))
		}
		attachments = append(attachments, withURLs(store.AttachmentImage, images, urls)...)
	}
	if len(files) > 0 {
		urls, err := p.api.UploadFiles(ctx, userID, files)
		if err != nil {
			return nil, err
		}
		if len(urls) < len(files) {
			return nil, fmt.Errorf("file upload returned %d of %d URLs", len(urls), len(files))
		}
		attachments = append(attachments, withURLs(store.AttachmentFile, files, urls)...)
	}
	return attachments, nil
}

// resolve reconciles the preview with the send outcome.
func (p *Pipeline) resolve(key, chatID, tempID string, real store.Message, err error) {
	if !p.alive.Load() {
		return
	}
	if err != nil {
		p.fail(key, tempID, err)
		return
	}
	if real.Status == "" {
		real.Status = store.StatusSent
	}
	p.store.ConfirmMessage(key, tempID, real)
	p.store.UpdateChat(chatID, store.ChatPatch{LastMessage: &real})
}

func (p *Pipeline) fail(key, tempID string, err error) {
	p.checkAuth(err)
	if !p.alive.Load() {
		return
	}
	p.logger.Warn("send failed", zap.Error(err), zap.String("temp_id", tempID))
	p.store.MarkFailed(key, tempID, errText(err))
}

func (p *Pipeline) checkAuth(err error) {
	if rest.IsAuthError(err) && p.bus != nil {
		p.bus.Publish(bus.Event{Kind: EventAuthExpired, Timestamp: time.Now()})
	}
}

// errText extracts the display description attached to a failed entry.
func errText(err error) string {
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func previewAttachments(images, files []rest.Upload) []store.Attachment {
	var out []store.Attachment
	for _, f := range images {
		out = append(out, store.Attachment{Kind: store.AttachmentImage, Name: f.Name})
	}
	for _, f := range files {
		out = append(out, store.Attachment{Kind: store.AttachmentFile, Name: f.Name})
	}
	return out
}

func withURLs(kind store.AttachmentKind, files []rest.Upload, urls []string) []store.Attachment {
	out := make([]store.Attachment, 0, len(files))
	for i, f := range files {
		att := store.Attachment{Kind: kind, Name: f.Name}
		if i < len(urls) {
			att.URL = urls[i]
		}
		out = append(out, att)
	}
	return out
}
