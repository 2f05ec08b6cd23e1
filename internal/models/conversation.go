package models

import "time"

// Conversation is a private conversation between exactly two users.
// The pair is stored in canonical order (lower id first) so the unique
// constraint on (user1_id, user2_id) guarantees at most one row per pair.
type Conversation struct {
	ID                  int        `db:"id" json:"id"`
	User1ID             int        `db:"user1_id" json:"user1_id"`
	User2ID             int        `db:"user2_id" json:"user2_id"`
	LastMessageText     *string    `db:"last_message_text" json:"last_message_text,omitempty"`
	LastMessageTime     *time.Time `db:"last_message_time" json:"last_message_time,omitempty"`
	LastMessageSenderID *int       `db:"last_message_sender_id" json:"last_message_sender_id,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the participant that is not userID.
func (c Conversation) OtherParticipant(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ConversationSummary provides an API-friendly view of a conversation for
// one viewer, including the denormalized preview and the unread count.
type ConversationSummary struct {
	ConversationID      int        `json:"conversation_id"`
	FriendID            int        `json:"friend_id"`
	LastMessageText     *string    `json:"last_message_text,omitempty"`
	LastMessageTime     *time.Time `json:"last_message_time,omitempty"`
	LastMessageSenderID *int       `json:"last_message_sender_id,omitempty"`
	IsLastMessageFromMe bool       `json:"is_last_message_from_me"`
	UnreadCount         int        `json:"unread_count"`
	CreatedAt           time.Time  `json:"created_at"`
}
