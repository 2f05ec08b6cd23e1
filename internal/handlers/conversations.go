package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
)

// ConversationHandler serves the conversation registry endpoints.
type ConversationHandler struct {
	conversationRepo repositories.ConversationRepository
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversationRepo repositories.ConversationRepository) *ConversationHandler {
	return &ConversationHandler{conversationRepo: conversationRepo}
}

// List returns the caller's conversations, newest activity first, with
// preview and unread count.
func (h *ConversationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	summaries, err := h.conversationRepo.ListForUser(c.Request.Context(), c.GetInt("userID"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// Start creates or returns the conversation with another user.
func (h *ConversationHandler) Start(c *gin.Context) {
	var req struct {
		FriendID int `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.conversationRepo.GetOrCreate(c.Request.Context(), c.GetInt("userID"), req.FriendID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Get returns one conversation the caller participates in.
func (h *ConversationHandler) Get(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	conv, err := h.conversationRepo.GetForParticipant(c.Request.Context(), conversationID, c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}
