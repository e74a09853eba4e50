package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"unipulse-chat/internal/mocks"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	pub := &mocks.PublisherMock{}
	emitter := NewAuditEmitter(pub, "audit.chat", "chat-service", "test")
	emitter.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	userID := int64(5)
	pub.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.OccurredAt == "2024-03-01T12:00:00Z" &&
			env.UserID != nil && *env.UserID == 5 &&
			env.Payload == AuditPayload{Level: "INFO", Text: "message posted"}
	}), map[string]string{"x-request-id": "req-9"}).Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "message posted", "req-9", &userID)

	pub.AssertExpectations(t)
}

func TestAuditEmitterSwallowsPublishErrors(t *testing.T) {
	pub := &mocks.PublisherMock{}
	pub.On("Publish", mock.Anything, "audit.chat", mock.Anything, map[string]string{}).Return(errors.New("down")).Once()

	emitter := NewAuditEmitter(pub, "audit.chat", "chat-service", "test")
	emitter.Emit(context.Background(), "ERROR", "boom", "", nil)
	pub.AssertExpectations(t)

	var nilEmitter *AuditEmitter
	assert.NotPanics(t, func() { nilEmitter.Emit(context.Background(), "INFO", "ignored", "", nil) })
}
