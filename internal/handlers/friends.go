package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// FriendHandler serves the friend request and friendship endpoints.
type FriendHandler struct {
	friendshipRepo repositories.FriendshipRepository
	audit          *telemetry.AuditEmitter
}

// NewFriendHandler builds a FriendHandler.
func NewFriendHandler(friendshipRepo repositories.FriendshipRepository, audit *telemetry.AuditEmitter) *FriendHandler {
	return &FriendHandler{friendshipRepo: friendshipRepo, audit: audit}
}

// SendRequest creates a pending friend request.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req struct {
		ReceiverID int `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.friendshipRepo.SendRequest(c.Request.Context(), c.GetInt("userID"), req.ReceiverID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

// Accept accepts a pending request addressed to the caller.
func (h *FriendHandler) Accept(c *gin.Context) {
	requestID, err := strconv.Atoi(c.Param("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	friendship, err := h.friendshipRepo.Accept(c.Request.Context(), requestID, c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, friendship)
}

// Reject declines a pending request addressed to the caller.
func (h *FriendHandler) Reject(c *gin.Context) {
	requestID, err := strconv.Atoi(c.Param("request_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	request, err := h.friendshipRepo.Reject(c.Request.Context(), requestID, c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// ListReceived returns pending requests addressed to the caller.
func (h *FriendHandler) ListReceived(c *gin.Context) {
	requests, err := h.friendshipRepo.ListReceived(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// ListSent returns pending requests the caller created.
func (h *FriendHandler) ListSent(c *gin.Context) {
	requests, err := h.friendshipRepo.ListSent(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// ListFriends returns the caller's friends.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	friends, err := h.friendshipRepo.ListFriends(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// CheckRelationship classifies the relationship between the caller and
// another user.
func (h *FriendHandler) CheckRelationship(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	status, err := h.friendshipRepo.CheckRelationship(c.Request.Context(), c.GetInt("userID"), otherID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// Remove ends a friendship and clears the request history so either side
// can start over later.
func (h *FriendHandler) Remove(c *gin.Context) {
	friendID, err := strconv.Atoi(c.Param("friend_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friend id"})
		return
	}

	userID := c.GetInt("userID")
	if err := h.friendshipRepo.Remove(c.Request.Context(), userID, friendID); err != nil {
		respondError(c, err)
		return
	}

	auditUserID := int64(userID)
	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("friendship removed with user %d", friendID),
		requestIDFromContext(c), &auditUserID)
	c.Status(http.StatusNoContent)
}
