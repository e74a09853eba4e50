package models

import "time"

// Chat is a 1:1 or group conversation.
type Chat struct {
	ID            int       `db:"id" json:"id"`
	Name          *string   `db:"name" json:"name"`
	IsGroup       bool      `db:"is_group" json:"is_group"`
	Theme         *string   `db:"theme" json:"theme,omitempty"`
	CreatedBy     *int      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}

// Participant is the membership of a user in a chat. LeftAt is nil while the
// user is an active member.
type Participant struct {
	ChatID   int        `db:"chat_id" json:"chat_id"`
	UserID   int        `db:"user_id" json:"user_id"`
	JoinedAt time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt   *time.Time `db:"left_at" json:"left_at,omitempty"`
	IsAdmin  bool       `db:"is_admin" json:"is_admin"`
}

// ParticipantView is an active participant with its display identity.
type ParticipantView struct {
	UserID   int       `db:"user_id" json:"user_id"`
	Username string    `db:"username" json:"username"`
	IsAdmin  bool      `db:"is_admin" json:"is_admin"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// ChatSummary is a chat as listed for one user.
type ChatSummary struct {
	ChatID             int       `db:"id" json:"chat_id"`
	Name               string    `db:"name" json:"name"`
	IsGroup            bool      `db:"is_group" json:"is_group"`
	Theme              *string   `db:"theme" json:"theme,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	LastMessageAt      time.Time `db:"last_message_at" json:"last_message_at"`
	UnreadCount        int       `db:"unread_count" json:"unread_count"`
	LastMessageContent *string   `db:"last_message_content" json:"last_message_content"`
	LastMessageSender  *string   `db:"last_message_sender" json:"last_message_sender"`
}

// NewChat is the input of a chat creation.
type NewChat struct {
	Name           *string
	IsGroup        bool
	Theme          *string
	CreatorID      *int
	ParticipantIDs []int
}
