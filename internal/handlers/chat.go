package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"unipulse-chat/internal/middleware"
	"unipulse-chat/internal/models"
	"unipulse-chat/internal/repositories"
)

// ChatHandler manages chat and participant endpoints.
type ChatHandler struct {
	chatRepo repositories.ChatRepository
	events   Broadcaster
	rooms    RoomEvictor
	audit    Auditor
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, events Broadcaster, rooms RoomEvictor, audit Auditor) *ChatHandler {
	return &ChatHandler{
		chatRepo: chatRepo,
		events:   events,
		rooms:    rooms,
		audit:    audit,
	}
}

// ListChats returns the active chats of the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	chats, err := h.chatRepo.ListUserChats(c.Request.Context(), userID)
	if err != nil {
		internalError(c, h.audit, "failed to load chats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats, "count": len(chats)})
}

type createChatRequest struct {
	Name         *string `json:"name"`
	IsGroup      bool    `json:"is_group"`
	Theme        *string `json:"theme"`
	Participants []int   `json:"participants"`
}

// CreateChat creates a chat with the caller as admin and adds the listed
// participants.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
		if trimmed == "" {
			req.Name = nil
		}
	}
	if req.IsGroup && req.Name == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group chats need a name"})
		return
	}
	for _, id := range req.Participants {
		if id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant id"})
			return
		}
	}

	userID := c.GetInt(middleware.UserIDKey)
	chat, err := h.chatRepo.CreateChat(c.Request.Context(), models.NewChat{
		Name:           req.Name,
		IsGroup:        req.IsGroup,
		Theme:          req.Theme,
		CreatorID:      &userID,
		ParticipantIDs: req.Participants,
	})
	if err != nil {
		internalError(c, h.audit, "could not create chat", err)
		return
	}

	emitAudit(c, h.audit, "INFO", "chat "+strconv.Itoa(chat.ID)+" created")
	c.JSON(http.StatusCreated, gin.H{"chat_id": chat.ID})
}

// ListParticipants returns the active members of a chat the caller belongs to.
func (h *ChatHandler) ListParticipants(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}
	if !requireMember(c, h.chatRepo, h.audit, chatID) {
		return
	}

	participants, err := h.chatRepo.ListParticipants(c.Request.Context(), chatID)
	if err != nil {
		internalError(c, h.audit, "failed to load participants", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

// AddParticipant adds or re-activates a member and announces it to the room.
func (h *ChatHandler) AddParticipant(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var req struct {
		UserID  int  `json:"user_id" binding:"required,gt=0"`
		IsAdmin bool `json:"is_admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireMember(c, h.chatRepo, h.audit, chatID) {
		return
	}

	participant, err := h.chatRepo.AddParticipant(c.Request.Context(), chatID, req.UserID, req.IsAdmin)
	if errors.Is(err, repositories.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if err != nil {
		internalError(c, h.audit, "could not add participant", err)
		return
	}

	h.events.Publish(c.Request.Context(), chatID, models.EventParticipantAdded, models.ParticipantPayload{
		ChatID:  chatID,
		UserID:  participant.UserID,
		IsAdmin: participant.IsAdmin,
		ActorID: c.GetInt(middleware.UserIDKey),
	}, "")
	c.JSON(http.StatusOK, gin.H{"participant": participant})
}

// LeaveChat ends the caller's membership and drops the caller's live
// connections from the room after the departure is announced.
func (h *ChatHandler) LeaveChat(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	left, err := h.chatRepo.LeaveChat(c.Request.Context(), chatID, userID)
	if err != nil {
		internalError(c, h.audit, "could not leave chat", err)
		return
	}
	if !left {
		c.JSON(http.StatusNotFound, gin.H{"error": "not a chat member"})
		return
	}

	h.events.Publish(c.Request.Context(), chatID, models.EventParticipantLeft, models.ParticipantPayload{
		ChatID: chatID,
		UserID: userID,
	}, "")
	h.rooms.EvictUser(c.Request.Context(), chatID, userID)
	c.Status(http.StatusNoContent)
}

// requireMember answers 404 for an unknown chat and 403 for a non-member.
func requireMember(c *gin.Context, chatRepo repositories.ChatRepository, audit Auditor, chatID int) bool {
	if _, err := chatRepo.GetChat(c.Request.Context(), chatID); err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return false
		}
		internalError(c, audit, "failed to load chat", err)
		return false
	}

	member, err := chatRepo.IsParticipant(c.Request.Context(), chatID, c.GetInt(middleware.UserIDKey))
	if err != nil {
		internalError(c, audit, "failed to verify membership", err)
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return false
	}
	return true
}

func parseChatID(c *gin.Context) (int, bool) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return 0, false
	}
	return chatID, true
}

func parseIDs(c *gin.Context) (int, int, bool) {
	chatID, ok := parseChatID(c)
	if !ok {
		return 0, 0, false
	}
	msgID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil || msgID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, 0, false
	}
	return chatID, msgID, true
}
