package models

import "time"

// Friend request lifecycle.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
	RequestBlocked  = "blocked"
)

// FriendRequest tracks the request workflow between two users. An approved
// request is the friendship; a blocked one remembers who blocked.
type FriendRequest struct {
	ID         int       `db:"id" json:"id"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	ReceiverID string    `db:"receiver_id" json:"receiver_id"`
	Status     string    `db:"status" json:"status"`
	BlockedBy  *string   `db:"blocked_by" json:"blocked_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
