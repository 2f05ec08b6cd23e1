package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
	"messaging-service/internal/storage"
)

// AttachmentHandler streams attachment bytes to conversation participants.
type AttachmentHandler struct {
	messageRepo      repositories.MessageRepository
	conversationRepo repositories.ConversationRepository
	store            storage.Store
}

// NewAttachmentHandler builds an AttachmentHandler.
func NewAttachmentHandler(messageRepo repositories.MessageRepository, conversationRepo repositories.ConversationRepository, store storage.Store) *AttachmentHandler {
	return &AttachmentHandler{messageRepo: messageRepo, conversationRepo: conversationRepo, store: store}
}

// Download serves the attachment file after checking that the caller
// participates in the owning conversation.
func (h *AttachmentHandler) Download(c *gin.Context) {
	attachmentID, err := strconv.Atoi(c.Param("attachment_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment id"})
		return
	}

	attachment, err := h.messageRepo.GetAttachment(c.Request.Context(), attachmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.messageRepo.Get(c.Request.Context(), attachment.MessageID)
	if err != nil {
		respondError(c, err)
		return
	}

	member, err := h.conversationRepo.IsParticipant(c.Request.Context(), msg.ConversationID, c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for attachment"})
		return
	}

	file, err := h.store.Open(attachment.FileName)
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.OriginalFileName))
	c.DataFromReader(http.StatusOK, attachment.FileSize, attachment.MimeType, file, nil)
}
