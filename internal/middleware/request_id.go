package middleware

import (
	"github.com/gin-gonic/gin"

	"unipulse-chat/internal/observability"
)

const RequestIDKey = "requestID"

// RequestID assigns every request an id, echoes it in the response and makes
// it available on both the gin context and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := observability.RequestIDFromRequest(c.Request)
		c.Set(RequestIDKey, id)
		c.Header(observability.RequestIDHeader, id)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
