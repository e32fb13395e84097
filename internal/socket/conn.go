package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// Conn wraps the WebSocket connection to the backend's event channel. It
// decodes inbound frames onto the bus and serializes outbound intents.
// There is no automatic reconnect: a broken read loop publishes
// EventDisconnected once and stops.
type Conn struct {
	url    string
	bus    *bus.Bus
	logger *zap.Logger

	mu   sync.Mutex
	ws   *websocket.Conn
	done chan struct{}
}

// New creates an unconnected socket transport.
func New(url string, b *bus.Bus, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		url:    url,
		bus:    b,
		logger: logger,
	}
}

// Connect dials the socket with the given bearer token and starts the read
// loop. Calling Connect on an already connected transport is an error.
func (c *Conn) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		return fmt.Errorf("socket already connected")
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial socket: %w", err)
	}
	c.ws = ws
	c.done = make(chan struct{})

	c.bus.Publish(bus.Event{Kind: EventConnected, Timestamp: time.Now()})
	go c.readLoop(ws, c.done)
	return nil
}

// Close tears the connection down. Safe to call when not connected.
func (c *Conn) Close() {
	c.mu.Lock()
	ws := c.ws
	done := c.done
	c.ws = nil
	c.mu.Unlock()
	if ws == nil {
		return
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = ws.Close()
	if done != nil {
		<-done
	}
}

func (c *Conn) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.logger.Warn("socket read ended", zap.Error(err))
			c.bus.Publish(bus.Event{Kind: EventDisconnected, Timestamp: time.Now(), Payload: err.Error()})
			c.mu.Lock()
			if c.ws == ws {
				_ = c.ws.Close()
				c.ws = nil
			}
			c.mu.Unlock()
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one inbound frame and publishes it. Unknown events and
// malformed payloads are logged and dropped, never fatal.
func (c *Conn) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("malformed socket frame", zap.Error(err))
		return
	}

	switch env.Event {
	case WireChatCreated:
		var chat store.Chat
		if err := json.Unmarshal(env.Payload, &chat); err != nil {
			c.logger.Warn("malformed chat payload", zap.Error(err))
			return
		}
		c.bus.Publish(bus.Event{Kind: EventChatCreated, Timestamp: time.Now(), Payload: chat})
	case WireNewMessage:
		var msg store.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			c.logger.Warn("malformed message payload", zap.Error(err))
			return
		}
		c.bus.Publish(bus.Event{Kind: EventNewMessage, Timestamp: time.Now(), Payload: msg})
	case WireMessageStatus:
		var msg store.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			c.logger.Warn("malformed status payload", zap.Error(err))
			return
		}
		c.bus.Publish(bus.Event{Kind: EventMessageStatus, Timestamp: time.Now(), Payload: msg})
	default:
		c.logger.Debug("unhandled socket event", zap.String("event", env.Event))
	}
}

// emit writes one outbound envelope. Writes are serialized by the mutex.
func (c *Conn) emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Payload: data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("socket not connected")
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// JoinAllChats asks the server to subscribe this connection to every chat
// room the user belongs to.
func (c *Conn) JoinAllChats(userID string) error {
	return c.emit(WireJoinAllChats, map[string]string{"userId": userID})
}

// JoinChat subscribes this connection to one chat room.
func (c *Conn) JoinChat(chatID string) error {
	return c.emit(WireJoinChat, map[string]string{"chatId": chatID})
}

// NotifyMessageStatus tells the server a message's status changed
// (read receipts). Best-effort.
func (c *Conn) NotifyMessageStatus(messageID string, status store.Status) error {
	return c.emit(WireUpdateMessageStatus, map[string]string{
		"messageId": messageID,
		"status":    string(status),
	})
}
