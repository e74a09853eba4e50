package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"unipulse-chat/internal/models"
	"unipulse-chat/internal/observability"
	"unipulse-chat/internal/repositories"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomRequest struct {
	ChatID int `json:"chat_id"`
}

type typingRequest struct {
	ChatID   int  `json:"chat_id"`
	IsTyping bool `json:"is_typing"`
}

type markAsReadRequest struct {
	ChatID    int `json:"chat_id"`
	MessageID int `json:"message_id"`
}

// clientError is reported back to the offending connection as is.
type clientError struct {
	msg string
}

func (e clientError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return clientError{msg: fmt.Sprintf(format, args...)}
}

type eventHandler func(ctx context.Context, s Subscriber, data json.RawMessage) error

// EventRouter dispatches inbound live-channel frames by event name. The
// acting user is always the session's user; ids sent by the client are
// ignored.
type EventRouter struct {
	hub        *Hub
	dispatcher *Dispatcher
	chats      repositories.ChatRepository
	messages   repositories.MessageRepository
	handlers   map[string]eventHandler
}

func NewEventRouter(hub *Hub, dispatcher *Dispatcher, chats repositories.ChatRepository, messages repositories.MessageRepository) *EventRouter {
	r := &EventRouter{
		hub:        hub,
		dispatcher: dispatcher,
		chats:      chats,
		messages:   messages,
	}
	r.handlers = map[string]eventHandler{
		models.EventJoinChat:   r.joinChat,
		models.EventLeaveChat:  r.leaveChat,
		models.EventTyping:     r.typing,
		models.EventMarkAsRead: r.markAsRead,
	}
	return r
}

// Handle decodes and routes one inbound frame. Failures are reported to the
// session as an error event.
func (r *EventRouter) Handle(ctx context.Context, s Subscriber, frame []byte) {
	var in inboundFrame
	if err := json.Unmarshal(frame, &in); err != nil {
		r.reject(s, "", clientError{msg: "malformed frame"})
		return
	}

	handler, ok := r.handlers[in.Event]
	if !ok {
		r.reject(s, in.Event, badRequest("unknown event %q", in.Event))
		return
	}
	observability.IncWSEvent(in.Event)

	if err := handler(ctx, s, in.Data); err != nil {
		r.reject(s, in.Event, err)
	}
}

// Disconnect drops the session from every room and tells each room it left.
func (r *EventRouter) Disconnect(ctx context.Context, s Subscriber) []int {
	rooms := r.hub.RemoveConnection(s.ID())
	for _, chatID := range rooms {
		r.dispatcher.Publish(ctx, chatID, models.EventStatus, leftStatus(chatID, s.UserID()), "")
	}
	return rooms
}

func (r *EventRouter) reject(s Subscriber, event string, err error) {
	msg := "internal error"
	var ce clientError
	if errors.As(err, &ce) {
		msg = ce.msg
	} else {
		zap.L().Error("live event failed",
			zap.String("event", event), zap.String("conn_id", s.ID()), zap.Int("user_id", s.UserID()), zap.Error(err))
	}
	r.dispatcher.SendTo(s, models.EventError, models.ErrorPayload{Event: event, Error: msg})
}

func (r *EventRouter) joinChat(ctx context.Context, s Subscriber, data json.RawMessage) error {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	member, err := r.chats.IsParticipant(ctx, req.ChatID, s.UserID())
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !member {
		return badRequest("not a participant of chat %d", req.ChatID)
	}

	status := models.StatusPayload{
		ChatID: req.ChatID,
		UserID: s.UserID(),
		Action: "joined",
		Msg:    fmt.Sprintf("user %d joined chat %d", s.UserID(), req.ChatID),
	}
	if !r.hub.Join(req.ChatID, s) {
		r.dispatcher.SendTo(s, models.EventStatus, status)
		return nil
	}
	r.dispatcher.Publish(ctx, req.ChatID, models.EventStatus, status, "")
	return nil
}

func (r *EventRouter) leaveChat(ctx context.Context, s Subscriber, data json.RawMessage) error {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return err
	}

	status := leftStatus(req.ChatID, s.UserID())
	r.dispatcher.SendTo(s, models.EventStatus, status)
	if r.hub.Leave(req.ChatID, s.ID()) {
		r.dispatcher.Publish(ctx, req.ChatID, models.EventStatus, status, "")
	}
	return nil
}

func (r *EventRouter) typing(ctx context.Context, s Subscriber, data json.RawMessage) error {
	var req typingRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if !r.inRoom(req.ChatID, s.ID()) {
		return badRequest("join chat %d first", req.ChatID)
	}

	r.dispatcher.Publish(ctx, req.ChatID, models.EventTyping, models.TypingPayload{
		ChatID:   req.ChatID,
		UserID:   s.UserID(),
		IsTyping: req.IsTyping,
	}, s.ID())
	return nil
}

func (r *EventRouter) markAsRead(ctx context.Context, s Subscriber, data json.RawMessage) error {
	var req markAsReadRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.MessageID <= 0 {
		return badRequest("message_id is required")
	}

	msg, err := r.messages.GetMessage(ctx, req.MessageID)
	if errors.Is(err, repositories.ErrMessageNotFound) || (err == nil && msg.ChatID != req.ChatID) {
		return badRequest("message %d not found in chat %d", req.MessageID, req.ChatID)
	}
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}

	readAt, changed, err := r.messages.MarkRead(ctx, req.MessageID, s.UserID())
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if !changed {
		return nil
	}

	r.dispatcher.Publish(ctx, msg.ChatID, models.EventMessageRead, models.MessageReadPayload{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		UserID:    s.UserID(),
		ReadAt:    readAt,
	}, "")
	return nil
}

func (r *EventRouter) inRoom(chatID int, connID string) bool {
	for _, id := range r.hub.RoomsOf(connID) {
		if id == chatID {
			return true
		}
	}
	return false
}

func leftStatus(chatID, userID int) models.StatusPayload {
	return models.StatusPayload{
		ChatID: chatID,
		UserID: userID,
		Action: "left",
		Msg:    fmt.Sprintf("user %d left chat %d", userID, chatID),
	}
}

// decode reads a room-scoped payload; chat_id must be positive.
func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return badRequest("data is required")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return badRequest("invalid data: %v", err)
	}

	var chatID int
	switch req := dst.(type) {
	case *roomRequest:
		chatID = req.ChatID
	case *typingRequest:
		chatID = req.ChatID
	case *markAsReadRequest:
		chatID = req.ChatID
	}
	if chatID <= 0 {
		return badRequest("chat_id is required")
	}
	return nil
}
