package observability

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	DeviceIDHeader  = "X-Device-Id"

	maxRequestIDLen = 128
)

type requestIDKey struct{}

// ClientMeta identifies the caller behind an HTTP request or websocket
// handshake.
type ClientMeta struct {
	RequestID string
	DeviceID  string
	IP        string
}

// RequestIDFromRequest returns the caller supplied request id, or a new one
// when the header is missing or oversized.
func RequestIDFromRequest(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ClientMetaFromRequest collects the caller identity. The request id comes
// from the request context when one was assigned upstream.
func ClientMetaFromRequest(r *http.Request) ClientMeta {
	requestID := RequestIDFromContext(r.Context())
	if requestID == "" {
		requestID = RequestIDFromRequest(r)
	}
	return ClientMeta{
		RequestID: requestID,
		DeviceID:  r.Header.Get(DeviceIDHeader),
		IP:        IPFromRequest(r),
	}
}

// IPFromRequest prefers the first X-Forwarded-For hop over the peer address.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
