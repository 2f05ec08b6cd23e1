package models

import "time"

// RequestStatus is the lifecycle state of a friend request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
)

// Relationship status values returned by CheckRelationship. Reverse
// variants describe a request sent by the second user to the first.
const (
	RelationFriends       = "FRIENDS"
	RelationNone          = "NONE"
	RelationReversePrefix = "REVERSE_"
)

// FriendRequest is a directed request from sender to receiver. At most one
// row exists per ordered pair; a rejected row is reused on resend.
type FriendRequest struct {
	ID         int           `db:"id" json:"id"`
	SenderID   int           `db:"sender_id" json:"sender_id"`
	ReceiverID int           `db:"receiver_id" json:"receiver_id"`
	Status     RequestStatus `db:"status" json:"status"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// Friendship is a symmetric relationship stored once per unordered pair in
// canonical order (lower id first).
type Friendship struct {
	ID        int       `db:"id" json:"id"`
	User1ID   int       `db:"user1_id" json:"user1_id"`
	User2ID   int       `db:"user2_id" json:"user2_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FriendEntry pairs a friendship with the other user's details for listing.
type FriendEntry struct {
	Friendship Friendship `json:"friendship"`
	Friend     User       `json:"friend"`
}
