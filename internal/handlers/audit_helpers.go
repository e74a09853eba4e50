package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unipulse-chat/internal/middleware"
)

// Auditor records audit log entries.
type Auditor interface {
	Emit(ctx context.Context, level, text, requestID string, userID *int64)
}

// Broadcaster publishes live events to a chat room.
type Broadcaster interface {
	Publish(ctx context.Context, chatID int, kind string, data any, excludeConnID string)
}

// RoomEvictor unsubscribes a user's live connections from a chat room.
type RoomEvictor interface {
	EvictUser(ctx context.Context, chatID, userID int)
}

func requestIDFromContext(c *gin.Context) string {
	return c.GetString(middleware.RequestIDKey)
}

func userIDFromContext(c *gin.Context) *int64 {
	if userID := c.GetInt(middleware.UserIDKey); userID != 0 {
		value := int64(userID)
		return &value
	}
	return nil
}

func emitAudit(c *gin.Context, auditor Auditor, level, text string) {
	if auditor == nil {
		return
	}
	auditor.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

// internalError logs and audits a persistence failure and answers 500.
func internalError(c *gin.Context, auditor Auditor, msg string, err error) {
	zap.L().Error(msg,
		zap.String("route", c.FullPath()),
		zap.String("request_id", requestIDFromContext(c)),
		zap.Int("user_id", c.GetInt(middleware.UserIDKey)),
		zap.Error(err))
	emitAudit(c, auditor, "ERROR", msg+": "+err.Error())
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
