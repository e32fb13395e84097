package socket

import "encoding/json"

// Wire event names. Inbound events carry a full record as payload; outbound
// intents carry the minimal identifiers the server needs.
const (
	// Inbound.
	WireChatCreated   = "chat-created"
	WireNewMessage    = "new-message"
	WireMessageStatus = "message-status"

	// Outbound.
	WireJoinAllChats        = "join-all-chats"
	WireJoinChat            = "join-chat"
	WireUpdateMessageStatus = "update-message-status"
)

// Envelope is the JSON frame exchanged on the socket.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Bus event kinds the transport publishes. Payloads are decoded records
// (store.Chat / store.Message) or nothing for lifecycle events.
const (
	EventChatCreated   = "socket.chat_created"
	EventNewMessage    = "socket.new_message"
	EventMessageStatus = "socket.message_status"
	EventConnected     = "socket.connected"
	EventDisconnected  = "socket.disconnected"
)
