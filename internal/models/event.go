package models

import "time"

// Live channel event names.
const (
	EventJoinChat   = "join_chat"
	EventLeaveChat  = "leave_chat"
	EventTyping     = "typing"
	EventMarkAsRead = "mark_as_read"

	EventStatus           = "status"
	EventNewMessage       = "new_message"
	EventMessageRead      = "message_read"
	EventMessageDeleted   = "message_deleted"
	EventParticipantAdded = "participant_added"
	EventParticipantLeft  = "participant_left"
	EventError            = "error"
)

// Event is the frame exchanged on the live channel in both directions.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// StatusPayload announces a connection joining or leaving a room.
type StatusPayload struct {
	ChatID int    `json:"chat_id"`
	UserID int    `json:"user_id"`
	Action string `json:"action"`
	Msg    string `json:"msg"`
}

// TypingPayload is relayed as-is to the rest of the room.
type TypingPayload struct {
	ChatID   int  `json:"chat_id"`
	UserID   int  `json:"user_id"`
	IsTyping bool `json:"is_typing"`
}

type NewMessagePayload struct {
	ChatID  int     `json:"chat_id"`
	Message Message `json:"message"`
}

type MessageReadPayload struct {
	MessageID int       `json:"message_id"`
	ChatID    int       `json:"chat_id"`
	UserID    int       `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type MessageDeletedPayload struct {
	MessageID int `json:"message_id"`
	ChatID    int `json:"chat_id"`
}

type ParticipantPayload struct {
	ChatID  int  `json:"chat_id"`
	UserID  int  `json:"user_id"`
	IsAdmin bool `json:"is_admin,omitempty"`
	ActorID int  `json:"actor_id,omitempty"`
}

type ErrorPayload struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}
