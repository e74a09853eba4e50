package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"unipulse-chat/internal/models"
	"unipulse-chat/internal/repositories"
	"unipulse-chat/internal/storage"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, in models.NewChat) (models.Chat, error) {
	args := m.Called(ctx, in)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) AddParticipant(ctx context.Context, chatID int, userID int, isAdmin bool) (models.Participant, error) {
	args := m.Called(ctx, chatID, userID, isAdmin)
	var participant models.Participant
	if val := args.Get(0); val != nil {
		participant = val.(models.Participant)
	}
	return participant, args.Error(1)
}

func (m *ChatRepositoryMock) LeaveChat(ctx context.Context, chatID int, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID int, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ListUserChats(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) ListParticipants(ctx context.Context, chatID int) ([]models.ParticipantView, error) {
	args := m.Called(ctx, chatID)
	var list []models.ParticipantView
	if val := args.Get(0); val != nil {
		list = val.([]models.ParticipantView)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) PostMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, chatID int, limit int, beforeID *int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit, beforeID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID int, actorID int) (time.Time, bool, error) {
	args := m.Called(ctx, messageID, actorID)
	var readAt time.Time
	if val := args.Get(0); val != nil {
		readAt = val.(time.Time)
	}
	return readAt, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID int, actorID int) (bool, error) {
	args := m.Called(ctx, messageID, actorID)
	return args.Bool(0), args.Error(1)
}

type AttachmentStoreMock struct {
	mock.Mock
}

func (m *AttachmentStoreMock) Save(ctx context.Context, originalName string, r io.Reader) (storage.Attachment, error) {
	args := m.Called(ctx, originalName, r)
	var att storage.Attachment
	if val := args.Get(0); val != nil {
		att = val.(storage.Attachment)
	}
	return att, args.Error(1)
}

func (m *AttachmentStoreMock) Remove(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

var (
	_ repositories.ChatRepository    = (*ChatRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ storage.AttachmentStore        = (*AttachmentStoreMock)(nil)
)
