package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"unipulse-chat/internal/models"
	"unipulse-chat/internal/observability"
)

// Relay forwards room events and evictions to every instance of the
// service, including this one.
type Relay interface {
	Publish(ctx context.Context, chatID int, payload []byte, excludeConnID string) error
	Evict(ctx context.Context, chatID, userID int) error
}

// Dispatcher publishes room events. Delivery is best effort to the
// connections in the room at the time of delivery.
type Dispatcher struct {
	hub   *Hub
	relay Relay
}

// NewDispatcher creates a dispatcher. relay may be nil for a single instance.
func NewDispatcher(hub *Hub, relay Relay) *Dispatcher {
	return &Dispatcher{hub: hub, relay: relay}
}

// Publish encodes {event, data} once and delivers it to every member of the
// room except excludeConnID. It never fails the caller.
func (d *Dispatcher) Publish(ctx context.Context, chatID int, kind string, data any, excludeConnID string) {
	payload, err := json.Marshal(models.Event{Event: kind, Data: data})
	if err != nil {
		zap.L().Error("encode event", zap.String("event", kind), zap.Int("chat_id", chatID), zap.Error(err))
		return
	}
	observability.IncEventPublished(kind)

	if d.relay != nil {
		err := d.relay.Publish(ctx, chatID, payload, excludeConnID)
		if err == nil {
			return
		}
		observability.IncRelayError()
		zap.L().Warn("relay publish failed, delivering locally",
			zap.String("event", kind), zap.Int("chat_id", chatID), zap.Error(err))
	}
	d.Deliver(chatID, payload, excludeConnID)
}

// Deliver pushes an encoded event to the local members of a room and returns
// how many connections accepted it.
func (d *Dispatcher) Deliver(chatID int, payload []byte, excludeConnID string) int {
	delivered, dropped := 0, 0
	for _, sub := range d.hub.MembersOf(chatID) {
		if excludeConnID != "" && sub.ID() == excludeConnID {
			continue
		}
		if err := sub.Send(payload); err != nil {
			dropped++
			zap.L().Debug("event dropped", zap.Int("chat_id", chatID), zap.String("conn_id", sub.ID()), zap.Error(err))
			continue
		}
		delivered++
	}
	observability.AddDeliveries(delivered, dropped)
	return delivered
}

// EvictUser unsubscribes every live connection of userID from the room, on
// every instance when a relay is set.
func (d *Dispatcher) EvictUser(ctx context.Context, chatID, userID int) {
	if d.relay != nil {
		err := d.relay.Evict(ctx, chatID, userID)
		if err == nil {
			return
		}
		observability.IncRelayError()
		zap.L().Warn("relay evict failed, evicting locally",
			zap.Int("chat_id", chatID), zap.Int("user_id", userID), zap.Error(err))
	}
	d.Evict(chatID, userID)
}

// Evict removes the local connections of userID from the room and tells each
// of them it left. It returns the evicted connection ids.
func (d *Dispatcher) Evict(chatID, userID int) []string {
	removed := d.hub.LeaveUser(chatID, userID)
	ids := make([]string, 0, len(removed))
	for _, sub := range removed {
		ids = append(ids, sub.ID())
		d.SendTo(sub, models.EventStatus, leftStatus(chatID, userID))
	}
	if len(ids) > 0 {
		zap.L().Debug("evicted from room", zap.Int("chat_id", chatID), zap.Int("user_id", userID), zap.Strings("conn_ids", ids))
	}
	return ids
}

// SendTo delivers an event to a single connection, outside any room.
func (d *Dispatcher) SendTo(sub Subscriber, kind string, data any) {
	payload, err := json.Marshal(models.Event{Event: kind, Data: data})
	if err != nil {
		zap.L().Error("encode event", zap.String("event", kind), zap.Error(err))
		return
	}
	if err := sub.Send(payload); err != nil {
		zap.L().Debug("direct event dropped", zap.String("conn_id", sub.ID()), zap.Error(err))
	}
}
