package models

import "time"

// Conversation is a direct (two-party) or group message thread.
type Conversation struct {
	ID            int       `db:"id" json:"id"`
	IsGroup       bool      `db:"is_group" json:"is_group"`
	Name          string    `db:"name" json:"name,omitempty"`
	Description   string    `db:"description" json:"description,omitempty"`
	CreatorID     *string   `db:"creator_id" json:"creator_id,omitempty"`
	LastMessageID *int      `db:"last_message_id" json:"last_message_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Participant links a user to a conversation. JoinedAt orders creator
// reassignment when the current creator leaves.
type Participant struct {
	ChatID   int       `db:"chat_id" json:"chat_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// ChatSummary is the API view of a conversation in chat listings.
type ChatSummary struct {
	Conversation
	Participants []string `json:"participants"`
	LastMessage  *Message `json:"last_message,omitempty"`
}

// Creator reports the creator id, or "" when the group has lost its creator.
func (c Conversation) Creator() string {
	if c.CreatorID == nil {
		return ""
	}
	return *c.CreatorID
}
