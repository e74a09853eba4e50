package models

import "time"

// Message kinds.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
)

// Message is a chat message. Only ReadAt and DeletedAt change after insert,
// each at most once.
type Message struct {
	ID            int        `db:"id" json:"id"`
	ChatID        int        `db:"chat_id" json:"chat_id"`
	SenderID      int        `db:"sender_id" json:"sender_id"`
	SenderName    string     `db:"sender_name" json:"sender_name"`
	Content       string     `db:"content" json:"content"`
	Kind          string     `db:"kind" json:"kind"`
	AttachmentURL *string    `db:"attachment_url" json:"attachment_url,omitempty"`
	SentAt        time.Time  `db:"sent_at" json:"sent_at"`
	ReadAt        *time.Time `db:"read_at" json:"read_at,omitempty"`
	DeletedAt     *time.Time `db:"deleted_at" json:"-"`
}

// NewMessage is the input of a message post.
type NewMessage struct {
	ChatID        int
	SenderID      int
	Content       string
	Kind          string
	AttachmentURL *string
}
