package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/socket"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// fakeEmitter records intents.
type fakeEmitter struct {
	mu       sync.Mutex
	joinAll  []string
	joinChat []string
}

func (f *fakeEmitter) JoinAllChats(userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinAll = append(f.joinAll, userID)
	return nil
}

func (f *fakeEmitter) JoinChat(chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinChat = append(f.joinChat, chatID)
	return nil
}

func (f *fakeEmitter) joinAllCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joinAll...)
}

func (f *fakeEmitter) joinChatCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joinChat...)
}

func publish(b *bus.Bus, kind string, payload any) {
	b.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartEmitsJoinAllOnce(t *testing.T) {
	b := bus.New()
	s := store.New(b)
	em := &fakeEmitter{}
	e := NewEngine(s, b, em, nil)

	e.Start(context.Background(), "u1")
	defer e.Stop()

	calls := em.joinAllCalls()
	if len(calls) != 1 || calls[0] != "u1" {
		t.Errorf("join-all calls = %v, want [u1]", calls)
	}
}

func TestChatCreatedAppendsAndJoins(t *testing.T) {
	b := bus.New()
	s := store.New(b)
	em := &fakeEmitter{}
	e := NewEngine(s, b, em, nil)

	e.Start(context.Background(), "u1")
	defer e.Stop()

	publish(b, socket.EventChatCreated, store.Chat{ID: "c9", Participants: []string{"u1", "u2"}})

	waitFor(t, func() bool { return s.HasChat("c9") })
	waitFor(t, func() bool { return len(em.joinChatCalls()) == 1 })
	if calls := em.joinChatCalls(); calls[0] != "c9" {
		t.Errorf("join-chat calls = %v, want [c9]", calls)
	}
}

func TestNewMessageAppendedForKnownChat(t *testing.T) {
	b := bus.New()
	s := store.New(b)
	s.SetChats([]store.Chat{{ID: "c1", Participants: []string{"u1", "u2"}}})
	e := NewEngine(s, b, &fakeEmitter{}, nil)

	e.Start(context.Background(), "u1")
	defer e.Stop()

	publish(b, socket.EventNewMessage, store.Message{ID: "m1", ChatID: "c1", Sender: "u2", Content: "hi", Status: store.StatusDelivered})

	waitFor(t, func() bool { return len(s.Messages("c1")) == 1 })

	// Last-message summary follows the append.
	c, _ := s.ChatByID("c1")
	if c.LastMessage == nil || c.LastMessage.ID != "m1" {
		t.Errorf("last message = %+v, want m1", c.LastMessage)
	}
}

func TestNewMessageUnknownChatDiscarded(t *testing.T) {
	b := bus.New()
	s := store.New(b)
	e := NewEngine(s, b, &fakeEmitter{}, nil)

	e.Start(context.Background(), "u1")
	defer e.Stop()

	publish(b, socket.EventNewMessage, store.Message{ID: "m1", ChatID: "stranger", Sender: "u9", Content: "??"})

	// Give the engine a moment, then confirm nothing landed.
	time.Sleep(50 * time.Millisecond)
	if got := s.Messages("stranger"); len(got) != 0 {
		t.Errorf("got %d messages for unknown chat, want 0", len(got))
	}
}

func TestMessageStatusReplacesInPlace(t *testing.T) {
	b := bus.New()
	s := store.New(b)
	s.SetChats([]store.Chat{{ID: "c1"}})
	s.AddMessage("c1", store.Message{ID: "m1", ChatID: "c1", Sender: "u1", Content: "hi", Status: store.StatusSent})
	e := NewEngine(s, b, &fakeEmitter{}, nil)

	e.Start(context.Background(), "u1")
	defer e.Stop()

	publish(b, socket.EventMessageStatus, store.Message{ID: "m1", ChatID: "c1", Sender: "u1", Content: "hi", Status: store.StatusRead})

	waitFor(t, func() bool {
		m, _ := s.MessageByID("c1", "m1")
		return m.Status == store.StatusRead
	})
	if got := len(s.Messages("c1")); got != 1 {
		t.Errorf("got %d messages, want 1", got)
	}
}

func TestStopPreventsDoubleHandlingOnRestart(t *testing.T) {
	b := bus.New()
	s := store.New(b)
	s.SetChats([]store.Chat{{ID: "c1"}})
	em := &fakeEmitter{}
	e := NewEngine(s, b, em, nil)

	e.Start(context.Background(), "u1")
	e.Stop()
	e.Start(context.Background(), "u1")
	defer e.Stop()

	publish(b, socket.EventNewMessage, store.Message{ID: "m1", ChatID: "c1", Sender: "u2", Content: "hi"})

	waitFor(t, func() bool { return len(s.Messages("c1")) >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := len(s.Messages("c1")); got != 1 {
		t.Errorf("got %d messages, want exactly 1 (no double handling)", got)
	}
	if calls := em.joinAllCalls(); len(calls) != 2 {
		t.Errorf("join-all emitted %d times across two activations, want 2", len(calls))
	}
}
