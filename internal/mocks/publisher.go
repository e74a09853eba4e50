package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Publish(ctx context.Context, chatID int, kind string, data any, excludeConnID string) {
	m.Called(ctx, chatID, kind, data, excludeConnID)
}

type RoomEvictorMock struct {
	mock.Mock
}

func (m *RoomEvictorMock) EvictUser(ctx context.Context, chatID, userID int) {
	m.Called(ctx, chatID, userID)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) Emit(ctx context.Context, level, text, requestID string, userID *int64) {
	m.Called(ctx, level, text, requestID, userID)
}
