package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"unipulse-chat/internal/middleware"
	"unipulse-chat/internal/models"
	"unipulse-chat/internal/observability"
	"unipulse-chat/internal/repositories"
	"unipulse-chat/internal/storage"
)

// MessageHandler manages message history, posting and receipts.
type MessageHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	attachments storage.AttachmentStore
	events      Broadcaster
	audit       Auditor
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, attachments storage.AttachmentStore, events Broadcaster, audit Auditor) *MessageHandler {
	return &MessageHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		attachments: attachments,
		events:      events,
		audit:       audit,
	}
}

// GetChatMessages returns visible messages newest first. ?before=<id> pages
// backwards and ?limit caps the page size.
func (h *MessageHandler) GetChatMessages(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var before *int
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		before = &id
	}
	limit := repositories.DefaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, repositories.MaxMessageLimit)
	}

	if !requireMember(c, h.chatRepo, h.audit, chatID) {
		return
	}

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), chatID, limit, before)
	if err != nil {
		internalError(c, h.audit, "failed to load messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage stores a text message (JSON) or an attachment (multipart
// field "file", caption in "message") and broadcasts it.
func (h *MessageHandler) PostChatMessage(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}
	userID := c.GetInt(middleware.UserIDKey)

	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		h.postAttachment(c, chatID, userID)
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !requireMember(c, h.chatRepo, h.audit, chatID) {
		return
	}

	msg, err := h.messageRepo.PostMessage(c.Request.Context(), models.NewMessage{
		ChatID:   chatID,
		SenderID: userID,
		Content:  req.Content,
		Kind:     models.KindText,
	})
	if err != nil {
		h.postFailed(c, err)
		return
	}
	h.posted(c, msg)
}

func (h *MessageHandler) postAttachment(c *gin.Context, chatID, userID int) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if _, err := storage.ValidateName(header.Filename); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File type not allowed"})
		return
	}
	if !requireMember(c, h.chatRepo, h.audit, chatID) {
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	att, err := h.attachments.Save(ctx, header.Filename, file)
	if err != nil {
		internalError(c, h.audit, "failed to store attachment", err)
		return
	}

	url := att.URL
	msg, err := h.messageRepo.PostMessage(ctx, models.NewMessage{
		ChatID:        chatID,
		SenderID:      userID,
		Content:       c.PostForm("message"),
		Kind:          storage.KindForContentType(header.Header.Get("Content-Type")),
		AttachmentURL: &url,
	})
	if err != nil {
		if rmErr := h.attachments.Remove(ctx, att.Name); rmErr != nil {
			zap.L().Warn("orphaned attachment", zap.String("name", att.Name), zap.Error(rmErr))
		}
		h.postFailed(c, err)
		return
	}
	h.posted(c, msg)
}

func (h *MessageHandler) postFailed(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrChatNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	internalError(c, h.audit, "failed to store message", err)
}

func (h *MessageHandler) posted(c *gin.Context, msg models.Message) {
	observability.IncMessagePosted(msg.Kind)
	h.events.Publish(c.Request.Context(), msg.ChatID, models.EventNewMessage, models.NewMessagePayload{
		ChatID:  msg.ChatID,
		Message: msg,
	}, "")
	c.JSON(http.StatusCreated, gin.H{"message_id": msg.ID, "message": msg})
}

// MarkMessageRead records the caller's read receipt. Only the first read by a
// non-author is broadcast.
func (h *MessageHandler) MarkMessageRead(c *gin.Context) {
	chatID, messageID, ok := parseIDs(c)
	if !ok {
		return
	}
	if !requireMember(c, h.chatRepo, h.audit, chatID) {
		return
	}
	if _, ok := h.loadMessage(c, chatID, messageID); !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	readAt, changed, err := h.messageRepo.MarkRead(c.Request.Context(), messageID, userID)
	if err != nil {
		internalError(c, h.audit, "could not mark message read", err)
		return
	}

	if changed {
		h.events.Publish(c.Request.Context(), chatID, models.EventMessageRead, models.MessageReadPayload{
			MessageID: messageID,
			ChatID:    chatID,
			UserID:    userID,
			ReadAt:    readAt,
		}, "")
	}
	c.JSON(http.StatusOK, gin.H{"updated": changed})
}

// DeleteMessage soft-deletes the caller's own message.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	chatID, messageID, ok := parseIDs(c)
	if !ok {
		return
	}
	if !requireMember(c, h.chatRepo, h.audit, chatID) {
		return
	}
	msg, ok := h.loadMessage(c, chatID, messageID)
	if !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete a message"})
		return
	}

	deleted, err := h.messageRepo.SoftDelete(c.Request.Context(), messageID, userID)
	if err != nil {
		internalError(c, h.audit, "could not delete message", err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}

	emitAudit(c, h.audit, "INFO", "message "+strconv.Itoa(messageID)+" deleted")
	h.events.Publish(c.Request.Context(), chatID, models.EventMessageDeleted, models.MessageDeletedPayload{
		MessageID: messageID,
		ChatID:    chatID,
	}, "")
	c.Status(http.StatusNoContent)
}

// loadMessage answers 404 unless the message exists, is visible and belongs
// to chatID.
func (h *MessageHandler) loadMessage(c *gin.Context, chatID, messageID int) (models.Message, bool) {
	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) || (err == nil && (msg.ChatID != chatID || msg.DeletedAt != nil)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return models.Message{}, false
	}
	if err != nil {
		internalError(c, h.audit, "failed to load message", err)
		return models.Message{}, false
	}
	return msg, true
}
