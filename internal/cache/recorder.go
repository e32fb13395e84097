package cache

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/send"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// Recorder mirrors store mutations into the snapshot database. It consumes
// the store's bus events on a single goroutine; persistence errors are
// logged and dropped, the in-memory store never waits on disk.
type Recorder struct {
	db     *DB
	store  *store.Store
	bus    *bus.Bus
	logger *zap.Logger

	cancel context.CancelFunc
	sub    *bus.Subscription
}

// NewRecorder creates a recorder over an opened, migrated database.
func NewRecorder(db *DB, s *store.Store, b *bus.Bus, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		db:     db,
		store:  s,
		bus:    b,
		logger: logger,
	}
}

// Start begins mirroring store events into the database.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.sub = r.bus.Subscribe("store.", 256)

	go func(sub *bus.Subscription) {
		defer sub.Close()
		for {
			select {
			case evt := <-sub.Events():
				r.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}(r.sub)
}

// Stop halts mirroring. Already-queued events are discarded.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.sub != nil {
		r.sub.Close()
	}
}

// Restore loads the cached snapshot into the store. Called once before the
// first fetch; an empty or unreadable cache is not an error.
func (r *Recorder) Restore() error {
	chats, err := r.db.ListChats()
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return nil
	}
	r.store.SetChats(chats)
	for _, c := range chats {
		msgs, err := r.db.ListMessages(c.ID)
		if err != nil {
			return err
		}
		if len(msgs) > 0 {
			r.store.SetMessages(c.ID, msgs)
		}
	}
	return nil
}

func (r *Recorder) handleEvent(evt bus.Event) {
	var err error
	switch evt.Kind {
	case store.EventChatsReplaced:
		err = r.db.ReplaceChats(r.store.Chats())
	case store.EventChatAdded, store.EventChatUpdated:
		if c, ok := evt.Payload.(store.Chat); ok {
			err = r.db.UpsertChat(c)
		}
	case store.EventMessageAdded, store.EventMessageUpdated:
		m, ok := evt.Payload.(store.Message)
		if !ok || store.IsTempID(m.ID) || !persistableChatKey(m.ChatID) {
			return
		}
		err = r.db.UpsertMessage(m)
	case store.EventMessagesReplaced:
		chatID, ok := evt.Payload.(string)
		if !ok || !persistableChatKey(chatID) {
			return
		}
		err = r.db.ReplaceMessages(chatID, r.store.Messages(chatID))
	}
	if err != nil {
		r.logger.Warn("cache write failed", zap.Error(err), zap.String("event", evt.Kind))
	}
}

// persistableChatKey filters out provisional store keys; previews parked
// under a pending key belong to the running session only.
func persistableChatKey(chatID string) bool {
	return chatID != "" && !strings.HasPrefix(chatID, send.PendingChatKey(""))
}
