package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/storage"
	"messaging-service/internal/ws"
	apperrors "messaging-service/pkg/errors"
)

// MessageHandler serves the message ledger endpoints.
type MessageHandler struct {
	messageRepo      repositories.MessageRepository
	conversationRepo repositories.ConversationRepository
	store            storage.Store
	hub              *ws.Hub
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messageRepo repositories.MessageRepository, conversationRepo repositories.ConversationRepository, store storage.Store, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		store:            store,
		hub:              hub,
	}
}

// SendDirect sends a message by recipient, resolving or creating the
// conversation in the same transaction as the append.
func (h *MessageHandler) SendDirect(c *gin.Context) {
	var req struct {
		RecipientID int    `json:"recipient_id" binding:"required"`
		Content     string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messageRepo.SendDirect(c.Request.Context(), userID, req.RecipientID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	observability.IncMessageSent()
	h.hub.NotifyDirectMessage(userID, req.RecipientID, msg)
	c.JSON(http.StatusCreated, msg)
}

// PostMessage appends a message to a conversation. It accepts plain JSON
// or multipart form data with attachment files.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt("userID")
	if _, err := h.conversationRepo.GetForParticipant(c.Request.Context(), conversationID, userID); err != nil {
		respondError(c, err)
		return
	}

	var content string
	var attachments []models.AttachmentInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		content = c.PostForm("content")
		attachments, err = h.saveAttachments(form.File["files"])
		if err != nil {
			respondError(c, err)
			return
		}
	} else {
		var req struct {
			Content string `json:"content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		content = req.Content
	}

	msg, err := h.messageRepo.Send(c.Request.Context(), conversationID, userID, content, attachments)
	if err != nil {
		for _, a := range attachments {
			_ = h.store.Delete(a.FileName)
		}
		respondError(c, err)
		return
	}

	observability.IncMessageSent()
	// Conversation-addressed sends deliver to the shared topic only; the
	// private channels are reserved for recipient-addressed sends.
	h.hub.NotifyConversationMessage(conversationID, msg)
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) saveAttachments(files []*multipart.FileHeader) ([]models.AttachmentInput, error) {
	var saved []models.AttachmentInput
	cleanup := func() {
		for _, a := range saved {
			_ = h.store.Delete(a.FileName)
		}
	}

	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			cleanup()
			return nil, apperrors.Wrap(apperrors.CodeInternal, "open upload", err)
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			cleanup()
			return nil, apperrors.Wrap(apperrors.CodeInternal, "read upload", err)
		}

		ref, err := h.store.Save(data, header.Filename)
		if err != nil {
			cleanup()
			return nil, apperrors.Wrap(apperrors.CodeInternal, "store upload", err)
		}

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		saved = append(saved, models.AttachmentInput{
			FileName:         ref,
			OriginalFileName: header.Filename,
			MimeType:         mimeType,
			FileSize:         header.Size,
			AttachmentType:   storage.ClassifyMIME(mimeType),
		})
	}
	return saved, nil
}

// GetMessages returns one page of a conversation, newest first.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))

	msgs, err := h.messageRepo.Page(c.Request.Context(), conversationID, c.GetInt("userID"), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetMessagesBefore returns messages strictly older than a reference
// message, for scrollback.
func (h *MessageHandler) GetMessagesBefore(c *gin.Context) {
	conversationID, messageID, ok := parseMessagePath(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	msgs, err := h.messageRepo.Before(c.Request.Context(), conversationID, c.GetInt("userID"), messageID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetMessagesAfter returns messages newer than a reference message, for
// catch-up after reconnect.
func (h *MessageHandler) GetMessagesAfter(c *gin.Context) {
	conversationID, messageID, ok := parseMessagePath(c)
	if !ok {
		return
	}

	msgs, err := h.messageRepo.After(c.Request.Context(), conversationID, c.GetInt("userID"), messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead marks the counterpart's messages as read and pushes a read
// receipt to the conversation topic when anything changed.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req struct {
		MessageIDs []int `json:"message_ids"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	userID := c.GetInt("userID")
	count, err := h.messageRepo.MarkRead(c.Request.Context(), conversationID, userID, req.MessageIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now().UTC()
	if count > 0 {
		h.hub.NotifyReadReceipt(conversationID, models.ReadReceipt{UserID: userID, Count: count, Timestamp: now})
	}
	c.JSON(http.StatusOK, gin.H{"count": count, "timestamp": now})
}

// MarkDelivered flags a single message as delivered to its recipient.
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	delivered, err := h.messageRepo.MarkDelivered(c.Request.Context(), messageID, c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

// DeleteMessage soft-deletes the caller's own message and notifies topic
// subscribers.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	conversationID, messageID, ok := parseMessagePath(c)
	if !ok {
		return
	}

	msg, err := h.messageRepo.Get(c.Request.Context(), messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg.ConversationID != conversationID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to conversation"})
		return
	}

	deleted, err := h.messageRepo.SoftDelete(c.Request.Context(), messageID, c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}

	if deleted {
		h.hub.NotifyMessageDeleted(conversationID, messageID)
	}
	c.Status(http.StatusNoContent)
}

func parseMessagePath(c *gin.Context) (int, int, bool) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, 0, false
	}
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, 0, false
	}
	return conversationID, messageID, true
}
