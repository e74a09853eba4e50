package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"unipulse-chat/internal/middleware"
	"unipulse-chat/internal/mocks"
	"unipulse-chat/internal/models"
	"unipulse-chat/internal/repositories"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/chats", handler.ListChats)
	r.POST("/chats", handler.CreateChat)
	r.GET("/chats/:chat_id/participants", handler.ListParticipants)
	r.POST("/chats/:chat_id/participants", handler.AddParticipant)
	r.DELETE("/chats/:chat_id/participants/me", handler.LeaveChat)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestListChatsSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(NewChatHandler(chatRepo, nil, nil, nil))

	chatRepo.On("ListUserChats", mock.Anything, 1).Return([]models.ChatSummary{
		{ChatID: 3, Name: "bob", UnreadCount: 2},
		{ChatID: 9, Name: "Study Group", IsGroup: true},
	}, nil).Once()

	rec := serve(router, http.MethodGet, "/chats", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []models.ChatSummary `json:"chats"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "bob", resp.Chats[0].Name)
	assert.Equal(t, 2, resp.Chats[0].UnreadCount)
	chatRepo.AssertExpectations(t)
}

func TestListChatsRepoError(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	audit := new(mocks.AuditorMock)
	router := setupChatRouter(NewChatHandler(chatRepo, nil, nil, audit))

	chatRepo.On("ListUserChats", mock.Anything, 1).Return(([]models.ChatSummary)(nil), assert.AnError).Once()
	audit.On("Emit", mock.Anything, "ERROR", mock.Anything, mock.Anything, mock.Anything).Once()

	rec := serve(router, http.MethodGet, "/chats", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	chatRepo.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestCreateGroupChat(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(NewChatHandler(chatRepo, nil, nil, nil))

	chatRepo.On("CreateChat", mock.Anything, models.NewChat{
		Name:           strPtr("Study Group"),
		IsGroup:        true,
		CreatorID:      intPtr(1),
		ParticipantIDs: []int{2, 3},
	}).Return(models.Chat{ID: 12, Name: strPtr("Study Group"), IsGroup: true}, nil).Once()

	rec := serve(router, http.MethodPost, "/chats", `{"name":" Study Group ","is_group":true,"participants":[2,3]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"chat_id":12}`, rec.Body.String())
	chatRepo.AssertExpectations(t)
}

func TestCreateGroupChatRequiresName(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(NewChatHandler(chatRepo, nil, nil, nil))

	rec := serve(router, http.MethodPost, "/chats", `{"name":"  ","is_group":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/chats", `{"is_group":false,"participants":[0]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	chatRepo.AssertNotCalled(t, "CreateChat", mock.Anything, mock.Anything)
}

func TestAddParticipantBroadcasts(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	events := new(mocks.BroadcasterMock)
	router := setupChatRouter(NewChatHandler(chatRepo, events, nil, nil))

	chatRepo.On("GetChat", mock.Anything, 12).Return(models.Chat{ID: 12}, nil).Once()
	chatRepo.On("IsParticipant", mock.Anything, 12, 1).Return(true, nil).Once()
	chatRepo.On("AddParticipant", mock.Anything, 12, 4, false).Return(models.Participant{ChatID: 12, UserID: 4}, nil).Once()
	events.On("Publish", mock.Anything, 12, models.EventParticipantAdded,
		models.ParticipantPayload{ChatID: 12, UserID: 4, ActorID: 1}, "").Once()

	rec := serve(router, http.MethodPost, "/chats/12/participants", `{"user_id":4}`)

	require.Equal(t, http.StatusOK, rec.Code)
	chatRepo.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestAddParticipantUnknownChat(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	events := new(mocks.BroadcasterMock)
	router := setupChatRouter(NewChatHandler(chatRepo, events, nil, nil))

	chatRepo.On("GetChat", mock.Anything, 99).Return(models.Chat{}, repositories.ErrChatNotFound).Once()

	rec := serve(router, http.MethodPost, "/chats/99/participants", `{"user_id":4}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddParticipantRequiresMembership(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(NewChatHandler(chatRepo, new(mocks.BroadcasterMock), nil, nil))

	chatRepo.On("GetChat", mock.Anything, 12).Return(models.Chat{ID: 12}, nil).Once()
	chatRepo.On("IsParticipant", mock.Anything, 12, 1).Return(false, nil).Once()

	rec := serve(router, http.MethodPost, "/chats/12/participants", `{"user_id":4}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListParticipants(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	router := setupChatRouter(NewChatHandler(chatRepo, nil, nil, nil))

	chatRepo.On("GetChat", mock.Anything, 12).Return(models.Chat{ID: 12}, nil).Once()
	chatRepo.On("IsParticipant", mock.Anything, 12, 1).Return(true, nil).Once()
	chatRepo.On("ListParticipants", mock.Anything, 12).Return([]models.ParticipantView{
		{UserID: 1, Username: "ana", IsAdmin: true},
	}, nil).Once()

	rec := serve(router, http.MethodGet, "/chats/12/participants", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"ana"`)
	chatRepo.AssertExpectations(t)
}

func TestLeaveChat(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	events := new(mocks.BroadcasterMock)
	rooms := new(mocks.RoomEvictorMock)
	router := setupChatRouter(NewChatHandler(chatRepo, events, rooms, nil))

	var order []string
	chatRepo.On("LeaveChat", mock.Anything, 12, 1).Return(true, nil).Once()
	chatRepo.On("LeaveChat", mock.Anything, 12, 1).Return(false, nil).Once()
	events.On("Publish", mock.Anything, 12, models.EventParticipantLeft,
		models.ParticipantPayload{ChatID: 12, UserID: 1}, "").
		Run(func(mock.Arguments) { order = append(order, "publish") }).Once()
	rooms.On("EvictUser", mock.Anything, 12, 1).
		Run(func(mock.Arguments) { order = append(order, "evict") }).Once()

	rec := serve(router, http.MethodDelete, "/chats/12/participants/me", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"publish", "evict"}, order)

	// a second leave finds no membership and evicts nothing
	rec = serve(router, http.MethodDelete, "/chats/12/participants/me", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	events.AssertExpectations(t)
	rooms.AssertExpectations(t)
}

func TestLeaveChatRepoErrorKeepsSubscription(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	rooms := new(mocks.RoomEvictorMock)
	audit := new(mocks.AuditorMock)
	router := setupChatRouter(NewChatHandler(chatRepo, new(mocks.BroadcasterMock), rooms, audit))

	chatRepo.On("LeaveChat", mock.Anything, 12, 1).Return(false, assert.AnError).Once()
	audit.On("Emit", mock.Anything, "ERROR", mock.Anything, mock.Anything, mock.Anything).Once()

	rec := serve(router, http.MethodDelete, "/chats/12/participants/me", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	rooms.AssertNotCalled(t, "EvictUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuditCarriesRequestID(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	audit := new(mocks.AuditorMock)
	handler := NewChatHandler(chatRepo, nil, nil, audit)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Set(middleware.UserIDKey, 1)
		c.Next()
	})
	r.GET("/chats", handler.ListChats)

	chatRepo.On("ListUserChats", mock.Anything, 1).Return(([]models.ChatSummary)(nil), assert.AnError).Once()
	audit.On("Emit", mock.Anything, "ERROR", mock.Anything, "req-42", mock.Anything).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	audit.AssertExpectations(t)
}

func TestInvalidChatID(t *testing.T) {
	router := setupChatRouter(NewChatHandler(new(mocks.ChatRepositoryMock), nil, nil, nil))
	rec := serve(router, http.MethodGet, "/chats/abc/participants", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
