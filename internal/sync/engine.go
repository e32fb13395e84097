package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/socket"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// Emitter sends outbound room intents on the socket.
type Emitter interface {
	JoinAllChats(userID string) error
	JoinChat(chatID string) error
}

// Engine bridges the socket event channel and the message store. Inbound
// events are applied to the store strictly in arrival order on a single
// goroutine; all list mutations funnel through the store's synchronous
// operations.
type Engine struct {
	store   *store.Store
	bus     *bus.Bus
	emitter Emitter
	logger  *zap.Logger

	cancel context.CancelFunc
	sub    *bus.Subscription
}

// NewEngine creates a sync engine.
func NewEngine(s *store.Store, b *bus.Bus, emitter Emitter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   s,
		bus:     b,
		emitter: emitter,
		logger:  logger,
	}
}

// Start activates the engine for a user: emits the join-all-chats intent
// once and begins consuming socket events. Start after Stop is safe; the
// previous subscription is already released, so events are never handled
// twice.
func (e *Engine) Start(ctx context.Context, userID string) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.sub = e.bus.Subscribe("socket.", 256)

	if err := e.emitter.JoinAllChats(userID); err != nil {
		e.logger.Warn("join-all-chats failed", zap.Error(err))
	}

	go func(sub *bus.Subscription) {
		defer sub.Close()
		for {
			select {
			case evt := <-sub.Events():
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}(e.sub)
}

// Stop deactivates the engine and releases its subscription.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.sub != nil {
		e.sub.Close()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case socket.EventChatCreated:
		chat, ok := evt.Payload.(store.Chat)
		if !ok {
			return
		}
		e.handleChatCreated(chat)
	case socket.EventNewMessage:
		msg, ok := evt.Payload.(store.Message)
		if !ok {
			return
		}
		e.handleNewMessage(msg)
	case socket.EventMessageStatus:
		msg, ok := evt.Payload.(store.Message)
		if !ok {
			return
		}
		e.store.UpdateMessage(msg.ChatID, msg)
	}
}

func (e *Engine) handleChatCreated(chat store.Chat) {
	e.store.AddChat(chat)
	if err := e.emitter.JoinChat(chat.ID); err != nil {
		e.logger.Warn("join-chat failed", zap.Error(err), zap.String("chat_id", chat.ID))
	}
}

func (e *Engine) handleNewMessage(msg store.Message) {
	// Messages for chats we have not joined belong to rooms this client
	// does not know yet; discard, not an error.
	if !e.store.HasChat(msg.ChatID) {
		e.logger.Debug("message for unknown chat discarded", zap.String("chat_id", msg.ChatID))
		return
	}
	e.store.AddMessage(msg.ChatID, msg)
	e.store.UpdateChat(msg.ChatID, store.ChatPatch{LastMessage: &msg})
}
