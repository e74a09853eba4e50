package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"unipulse-chat/internal/auth"
	"unipulse-chat/internal/middleware"
	"unipulse-chat/internal/observability"
)

// ChatWebSocketHandler upgrades authenticated requests to the live channel.
type ChatWebSocketHandler struct {
	router    *EventRouter
	validator auth.TokenValidator
	upgrader  websocket.Upgrader
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(router *EventRouter, validator auth.TokenValidator) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		router:    router,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates, upgrades and serves one connection. Rooms are joined
// afterwards with join_chat frames.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-service/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	span.SetAttributes(attribute.Int("user.id", userID))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Int("user_id", userID), zap.Error(err))
		return
	}

	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)
	client.Start()

	observability.IncWSActive()
	publishLifecycle(ctx, "ws_connect", info, nil, "")
	zap.L().Info("websocket connected", zap.String("conn_id", info.ConnID), zap.Int("user_id", userID))

	// the request context ends when the handler returns
	go h.serve(context.WithoutCancel(ctx), client)
}

func (h *ChatWebSocketHandler) serve(ctx context.Context, client *Client) {
	info := client.Info()
	err := client.ReadLoop(func(frame []byte) {
		h.router.Handle(ctx, client, frame)
	})

	reason := err.Error()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		publishLifecycle(ctx, "ws_error", info, h.router.hub.RoomsOf(info.ConnID), reason)
	}

	rooms := h.router.Disconnect(ctx, client)
	client.Close(websocket.CloseNormalClosure, "")

	observability.DecWSActive()
	publishLifecycle(ctx, "ws_disconnect", info, rooms, reason)
	zap.L().Info("websocket disconnected",
		zap.String("conn_id", info.ConnID), zap.Int("user_id", info.UserID), zap.Ints("rooms", rooms), zap.String("reason", reason))
}
