package ws

import (
	"context"
	"time"

	"unipulse-chat/internal/observability"
)

const wsRoutingKey = "ws_events.chats"

type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// publishLifecycle counts a connection lifecycle event and forwards it to the
// broker. rooms is the set of chats the connection was in, if known.
func publishLifecycle(ctx context.Context, event string, info ConnInfo, rooms []int, reason string) {
	observability.IncWSEvent(event)

	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	if rooms == nil {
		rooms = []int{}
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "chat",
			"rooms":       rooms,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
