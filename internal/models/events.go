package models

import "time"

// Event types pushed over websocket connections.
const (
	EventMessage        = "message"
	EventMessageDeleted = "message_deleted"
	EventReadReceipt    = "read_receipt"
	EventTyping         = "typing"
	EventError          = "error"
)

// ReadReceipt reports how many messages a user marked as read.
type ReadReceipt struct {
	UserID    int       `json:"user_id"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingEvent is a fire-and-forget typing indicator. It is never persisted.
type TypingEvent struct {
	UserID    int       `json:"user_id"`
	IsTyping  bool      `json:"is_typing"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is the envelope broadcast through websockets.
type Event struct {
	Type           string       `json:"type"`
	ConversationID int          `json:"conversation_id,omitempty"`
	MessageID      int          `json:"message_id,omitempty"`
	Message        *Message     `json:"message,omitempty"`
	Receipt        *ReadReceipt `json:"receipt,omitempty"`
	Typing         *TypingEvent `json:"typing,omitempty"`
	Error          string       `json:"error,omitempty"`
}
