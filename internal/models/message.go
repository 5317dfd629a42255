package models

import "time"

// Attachment is a stable reference to an uploaded file.
type Attachment struct {
	PublicID string `db:"public_id" json:"public_id"`
	URL      string `db:"url" json:"url"`
}

// Message is a chat message. Body and attachments are immutable; ReadBy only
// ever grows.
type Message struct {
	ID          int          `db:"id" json:"id"`
	ChatID      int          `db:"chat_id" json:"chat_id"`
	SenderID    string       `db:"sender_id" json:"sender_id"`
	Body        string       `db:"body" json:"body"`
	Attachments []Attachment `db:"-" json:"attachments,omitempty"`
	ReadBy      []string     `db:"-" json:"read_by"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}
