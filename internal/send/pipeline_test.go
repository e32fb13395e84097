package send

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/rest"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// mockAPI records calls and returns configurable results.
type mockAPI struct {
	createCalls  [][]string
	createResult store.Chat
	createErr    error

	sendCalls  []rest.SendMessageRequest
	sendResult store.Message
	sendErr    error

	statusCalls []string

	picURLs  []string
	picErr   error
	fileURLs []string
	fileErr  error
}

func (m *mockAPI) CreateChat(_ context.Context, ids []string) (store.Chat, error) {
	m.createCalls = append(m.createCalls, ids)
	if m.createErr != nil {
		return store.Chat{}, m.createErr
	}
	return m.createResult, nil
}

func (m *mockAPI) SendMessage(_ context.Context, req rest.SendMessageRequest) (store.Message, error) {
	m.sendCalls = append(m.sendCalls, req)
	if m.sendErr != nil {
		return store.Message{}, m.sendErr
	}
	res := m.sendResult
	if res.ChatID == "" {
		res.ChatID = req.ChatID
	}
	if res.Content == "" {
		res.Content = req.Content
	}
	return res, nil
}

func (m *mockAPI) UpdateMessageStatus(_ context.Context, id string, _ store.Status) (store.Message, error) {
	m.statusCalls = append(m.statusCalls, id)
	return store.Message{ID: id, Status: store.StatusRead}, nil
}

func (m *mockAPI) UploadPictures(_ context.Context, _ string, _ []rest.Upload) ([]string, error) {
	return m.picURLs, m.picErr
}

func (m *mockAPI) UploadFiles(_ context.Context, _ string, _ []rest.Upload) ([]string, error) {
	return m.fileURLs, m.fileErr
}

type fakeNotifier struct {
	calls []string
}

func (f *fakeNotifier) NotifyMessageStatus(id string, _ store.Status) error {
	f.calls = append(f.calls, id)
	return nil
}

func existingChatStore() *store.Store {
	s := store.New(nil)
	s.SetChats([]store.Chat{{ID: "c1", Participants: []string{"u1", "u2"}}})
	return s
}

func TestSendTextSuccess(t *testing.T) {
	s := existingChatStore()
	api := &mockAPI{sendResult: store.Message{ID: "m99", Sender: "u1", Status: store.StatusSent}}
	p := NewPipeline(s, api, nil, nil, nil)

	if err := p.SendText(context.Background(), "u1", "u2", "c1", "hello"); err != nil {
		t.Fatal(err)
	}

	msgs := s.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ID != "m99" || m.Content != "hello" || m.Status != store.StatusSent {
		t.Errorf("message = %+v, want m99/hello/sent", m)
	}
	// Chat summary follows.
	c, _ := s.ChatByID("c1")
	if c.LastMessage == nil || c.LastMessage.ID != "m99" {
		t.Errorf("last message = %+v", c.LastMessage)
	}
}

func TestSendTextFailure(t *testing.T) {
	s := existingChatStore()
	api := &mockAPI{sendErr: errors.New("Network Error")}
	p := NewPipeline(s, api, nil, nil, nil)

	if err := p.SendText(context.Background(), "u1", "u2", "c1", "hello"); err != nil {
		t.Fatal(err)
	}

	msgs := s.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if !store.IsTempID(m.ID) {
		t.Errorf("id = %q, want original temp id", m.ID)
	}
	if m.Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", m.Status)
	}
	if m.Error != "Network Error" {
		t.Errorf("error = %q, want Network Error", m.Error)
	}
}

func TestSendTextValidation(t *testing.T) {
	s := existingChatStore()
	api := &mockAPI{}
	p := NewPipeline(s, api, nil, nil, nil)

	cases := []struct {
		name                          string
		userID, recipient, chat, text string
	}{
		{"empty text", "u1", "u2", "c1", "   "},
		{"no recipient no chat", "u1", "", "", "hi"},
		{"malformed recipient", "u1", "not valid!", "", "hi"},
		{"malformed sender", "u 1", "u2", "", "hi"},
		{"self send", "u1", "u1", "", "hi"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := p.SendText(context.Background(), c.userID, c.recipient, c.chat, c.text)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}

	if len(api.createCalls) != 0 || len(api.sendCalls) != 0 {
		t.Error("validation failures must not reach the network")
	}
	if got := len(s.Messages("c1")); got != 0 {
		t.Errorf("got %d messages, want 0 (no optimistic insert on validation error)", got)
	}
}

func TestSendTextCreatesChatWhenMissing(t *testing.T) {
	s := store.New(nil)
	api := &mockAPI{
		createResult: store.Chat{ID: "c7", Participants: []string{"u1", "u2"}},
		sendResult:   store.Message{ID: "m1", Sender: "u1", Status: store.StatusSent},
	}
	p := NewPipeline(s, api, nil, nil, nil)

	if err := p.SendText(context.Background(), "u1", "u2", "", "first"); err != nil {
		t.Fatal(err)
	}

	if len(api.createCalls) != 1 {
		t.Fatalf("got %d create calls, want 1", len(api.createCalls))
	}
	ids := api.createCalls[0]
	if len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
		t.Errorf("participants = %v, want [u1 u2]", ids)
	}
	if !s.HasChat("c7") {
		t.Error("created chat not added to store")
	}
	msgs := s.Messages("c7")
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("messages in new chat = %+v", msgs)
	}
	// Nothing left under the provisional key.
	if got := len(s.Messages(PendingChatKey("u2"))); got != 0 {
		t.Errorf("%d previews left under pending key", got)
	}
}

func TestSendTextReusesExistingDirectChat(t *testing.T) {
	s := existingChatStore()
	api := &mockAPI{sendResult: store.Message{ID: "m2", Sender: "u1", Status: store.StatusSent}}
	p := NewPipeline(s, api, nil, nil, nil)

	// chatID unknown to the caller, but a direct chat exists locally.
	if err := p.SendText(context.Background(), "u1", "u2", "", "again"); err != nil {
		t.Fatal(err)
	}

	if len(api.createCalls) != 0 {
		t.Errorf("chat creation called for an existing chat")
	}
	if got := len(s.Messages("c1")); got != 1 {
		t.Errorf("got %d messages in c1, want 1", got)
	}
}

func TestSendTextChatCreationFailure(t *testing.T) {
	s := store.New(nil)
	api := &mockAPI{createErr: errors.New("boom")}
	p := NewPipeline(s, api, nil, nil, nil)

	if err := p.SendText(context.Background(), "u1", "u2", "", "hi"); err != nil {
		t.Fatal(err)
	}

	// Preview stays visible under the provisional key, marked failed.
	msgs := s.Messages(PendingChatKey("u2"))
	if len(msgs) != 1 || msgs[0].Status != store.StatusFailed {
		t.Errorf("messages = %+v, want one failed entry", msgs)
	}
	if len(api.sendCalls) != 0 {
		t.Error("send attempted after chat creation failed")
	}
}

// An inbound message arriving mid-send coexists with the pending entry and
// keeps its position after confirmation.
func TestInboundDuringSendInFlight(t *testing.T) {
	s := existingChatStore()
	api := &mockAPI{sendResult: store.Message{ID: "m9", Sender: "u1", Status: store.StatusSent}}
	p := NewPipeline(s, api, nil, nil, nil)

	// Simulate the race by appending an inbound message between the
	// optimistic insert and resolution.
	tempID := store.NewTempID()
	s.AddPreview("c1", store.Message{ID: tempID, ChatID: "c1", Sender: "u1", Content: "out", Status: store.StatusPending})
	s.AddMessage("c1", store.Message{ID: "m5", ChatID: "c1", Sender: "u2", Content: "in", Status: store.StatusDelivered})

	p.resolve("c1", "c1", tempID, store.Message{ID: "m9", ChatID: "c1", Sender: "u1", Content: "out", Status: store.StatusSent}, nil)

	msgs := s.Messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "m9" {
		t.Errorf("index 0 = %q, want m9", msgs[0].ID)
	}
	if msgs[1].ID != "m5" || msgs[1].Content != "in" {
		t.Errorf("inbound entry disturbed: %+v", msgs[1])
	}
}

func TestSendAttachmentsUploadShortfallFails(t *testing.T) {
	s := existingChatStore()
	api := &mockAPI{picURLs: []string{}}
	p := NewPipeline(s, api, nil, nil, nil)

	images := []rest.Upload{{Name: "a.png", Reader: strings.NewReader("x")}}
	if err := p.SendAttachments(context.Background(), "u1", "u2", "c1", "", images, nil); err != nil {
		t.Fatal(err)
	}

	msgs := s.Messages("c1")
	if len(msgs) != 1 || msgs[0].Status != store.StatusFailed {
		t.Fatalf("messages = %+v, want one failed entry", msgs)
	}
	if len(api.sendCalls) != 0 {
		t.Error("send attempted after upload failure")
	}
}

func TestSendAttachmentsSuccess(t *testing.T) {
	s := existingChatStore()
	api := &mockAPI{
		picURLs:    []string{"/img/a.png"},
		sendResult: store.Message{ID: "m10", Sender: "u1", Status: store.StatusSent},
	}
	p := NewPipeline(s, api, nil, nil, nil)

	images := []rest.Upload{{Name: "a.png", Reader: strings.NewReader("x")}}
	if err := p.SendAttachments(context.Background(), "u1", "u2", "c1", "look", images, nil); err != nil {
		t.Fatal(err)
	}

	if len(api.sendCalls) != 1 {
		t.Fatalf("got %d send calls, want 1", len(api.sendCalls))
	}
	atts := api.sendCalls[0].Attachments
	if len(atts) != 1 || atts[0].URL != "/img/a.png" || atts[0].Kind != store.AttachmentImage {
		t.Errorf("attachments = %+v", atts)
	}
}

func TestCloseIgnoresLateResolution(t *testing.T) {
	s := existingChatStore()
	api := &mockAPI{sendErr: errors.New("slow failure")}
	p := NewPipeline(s, api, nil, nil, nil)

	tempID := store.NewTempID()
	s.AddPreview("c1", store.Message{ID: tempID, ChatID: "c1", Sender: "u1", Content: "x", Status: store.StatusPending})

	p.Close()
	p.resolve("c1", "c1", tempID, store.Message{}, errors.New("late"))

	m, ok := s.MessageByID("c1", tempID)
	if !ok {
		t.Fatal("preview vanished")
	}
	if m.Status != store.StatusPending {
		t.Errorf("status = %q, want pending (late resolution ignored)", m.Status)
	}
}

func TestMarkReadNotifiesOnce(t *testing.T) {
	s := existingChatStore()
	api := &mockAPI{}
	n := &fakeNotifier{}
	p := NewPipeline(s, api, n, nil, nil)

	inbound := store.Message{ID: "m1", ChatID: "c1", Sender: "u2", Content: "hi", Status: store.StatusDelivered}
	s.AddMessage("c1", inbound)

	p.MarkRead(context.Background(), "u1", inbound)

	if m, _ := s.MessageByID("c1", "m1"); m.Status != store.StatusRead {
		t.Errorf("local status = %q, want read", m.Status)
	}
	if len(api.statusCalls) != 1 || api.statusCalls[0] != "m1" {
		t.Errorf("status calls = %v", api.statusCalls)
	}
	if len(n.calls) != 1 {
		t.Errorf("notifier calls = %v", n.calls)
	}

	// Own messages and already-read messages are skipped.
	p.MarkRead(context.Background(), "u2", inbound)
	read := inbound
	read.Status = store.StatusRead
	p.MarkRead(context.Background(), "u1", read)
	if len(api.statusCalls) != 1 {
		t.Errorf("extra status calls: %v", api.statusCalls)
	}
}

func TestAuthFailurePublishesSessionExpiry(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(EventAuthExpired, 10)
	defer sub.Close()

	s := existingChatStore()
	api := &mockAPI{sendErr: rest.ErrUnauthorized}
	p := NewPipeline(s, api, nil, b, nil)

	if err := p.SendText(context.Background(), "u1", "u2", "c1", "hi"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-sub.Events():
	case <-time.After(time.Second):
		t.Fatal("no auth expiry event published")
	}
}
