package store

import (
	"sync"
	"time"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
)

// Event kinds published on the bus after each mutation. Payloads are copies
// of the affected record; observers never see the store's own slices.
const (
	EventChatsReplaced    = "store.chats_replaced"
	EventChatAdded        = "store.chat_added"
	EventChatUpdated      = "store.chat_updated"
	EventMessageAdded     = "store.message_added"
	EventMessageUpdated   = "store.message_updated"
	EventMessageRemoved   = "store.message_removed"
	EventMessagesReplaced = "store.messages_replaced"
)

// Store is the single source of truth for chat summaries and per-chat
// ordered message lists for the lifetime of the client session. All
// operations are synchronous and total: a mutation whose target does not
// exist is a no-op, never an error. Insertion order is chronological order.
type Store struct {
	mu       sync.RWMutex
	bus      *bus.Bus
	chats    []Chat
	messages map[string][]Message
}

// New creates an empty store. The bus may be nil (tests).
func New(b *bus.Bus) *Store {
	return &Store{
		bus:      b,
		messages: make(map[string][]Message),
	}
}

func (s *Store) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// SetChats replaces the full chat list.
func (s *Store) SetChats(chats []Chat) {
	s.mu.Lock()
	s.chats = append([]Chat(nil), chats...)
	s.mu.Unlock()
	s.publish(EventChatsReplaced, len(chats))
}

// AddChat appends a chat summary. No-op if the id is already present.
func (s *Store) AddChat(c Chat) {
	s.mu.Lock()
	for _, existing := range s.chats {
		if existing.ID == c.ID {
			s.mu.Unlock()
			return
		}
	}
	s.chats = append(s.chats, c)
	s.mu.Unlock()
	s.publish(EventChatAdded, c)
}

// UpdateChat merges patch fields into the matching chat summary.
// No-op if the chat is unknown.
func (s *Store) UpdateChat(chatID string, patch ChatPatch) {
	s.mu.Lock()
	var updated *Chat
	for i := range s.chats {
		if s.chats[i].ID != chatID {
			continue
		}
		if patch.LastMessage != nil {
			m := *patch.LastMessage
			s.chats[i].LastMessage = &m
		}
		if patch.UnreadCount != nil {
			s.chats[i].UnreadCount = *patch.UnreadCount
		}
		c := s.chats[i]
		updated = &c
		break
	}
	s.mu.Unlock()
	if updated != nil {
		s.publish(EventChatUpdated, *updated)
	}
}

// AddMessage appends a message to the chat's list, creating the list if the
// chat is unknown. No de-duplication: callers filter by id before display.
func (s *Store) AddMessage(chatID string, m Message) {
	s.mu.Lock()
	s.messages[chatID] = append(s.messages[chatID], m)
	s.mu.Unlock()
	s.publish(EventMessageAdded, m)
}

// UpdateMessage replaces the entry whose id matches m.ID.
// No-op if absent.
func (s *Store) UpdateMessage(chatID string, m Message) {
	s.mu.Lock()
	replaced := false
	list := s.messages[chatID]
	for i := range list {
		if list[i].ID == m.ID {
			list[i] = m
			replaced = true
			break
		}
	}
	s.mu.Unlock()
	if replaced {
		s.publish(EventMessageUpdated, m)
	}
}

// AddPreview inserts a provisional entry carrying a temp id. It behaves like
// AddMessage; the distinct name keeps optimistic inserts visible at call
// sites.
func (s *Store) AddPreview(chatID string, m Message) {
	s.AddMessage(chatID, m)
}

// RemovePreview deletes the provisional entry with the given temp id.
// No-op if absent.
func (s *Store) RemovePreview(chatID, tempID string) {
	s.mu.Lock()
	removed := false
	list := s.messages[chatID]
	for i := range list {
		if list[i].ID == tempID {
			s.messages[chatID] = append(list[:i], list[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()
	if removed {
		s.publish(EventMessageRemoved, tempID)
	}
}

// ConfirmMessage replaces the entry at the position of tempID with the
// server-confirmed record, preserving list order. No-op if tempID is not
// found.
func (s *Store) ConfirmMessage(chatID, tempID string, real Message) {
	s.mu.Lock()
	confirmed := false
	list := s.messages[chatID]
	for i := range list {
		if list[i].ID == tempID {
			list[i] = real
			confirmed = true
			break
		}
	}
	s.mu.Unlock()
	if confirmed {
		s.publish(EventMessageUpdated, real)
	}
}

// MarkFailed sets the targeted entry's status to failed and attaches the
// error description in place. No-op if absent.
func (s *Store) MarkFailed(chatID, tempID, errDesc string) {
	s.mu.Lock()
	var failed *Message
	list := s.messages[chatID]
	for i := range list {
		if list[i].ID == tempID {
			list[i].Status = StatusFailed
			list[i].Error = errDesc
			m := list[i]
			failed = &m
			break
		}
	}
	s.mu.Unlock()
	if failed != nil {
		s.publish(EventMessageUpdated, *failed)
	}
}

// Chats returns a snapshot of the chat list.
func (s *Store) Chats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Chat(nil), s.chats...)
}

// ChatByID returns the chat summary and whether it exists.
func (s *Store) ChatByID(chatID string) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if c.ID == chatID {
			return c, true
		}
	}
	return Chat{}, false
}

// HasChat reports whether the chat id is in the known chat list.
func (s *Store) HasChat(chatID string) bool {
	_, ok := s.ChatByID(chatID)
	return ok
}

// DirectChatWith returns the two-party chat containing both participants,
// if any.
func (s *Store) DirectChatWith(userID, otherID string) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if len(c.Participants) == 2 && c.HasParticipant(userID) && c.HasParticipant(otherID) {
			return c, true
		}
	}
	return Chat{}, false
}

// Messages returns a snapshot of the chat's ordered message list.
func (s *Store) Messages(chatID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages[chatID]...)
}

// MessageByID returns the message with the given id and whether it exists.
func (s *Store) MessageByID(chatID, id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages[chatID] {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// SetMessages replaces a chat's message list wholesale (initial fetch).
func (s *Store) SetMessages(chatID string, msgs []Message) {
	s.mu.Lock()
	s.messages[chatID] = append([]Message(nil), msgs...)
	s.mu.Unlock()
	s.publish(EventMessagesReplaced, chatID)
}
