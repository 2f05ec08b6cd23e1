package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	apperrors "messaging-service/pkg/errors"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	userRepo repositories.UserRepository
	tokens   *auth.TokenManager
	audit    *telemetry.AuditEmitter
	log      *zap.SugaredLogger
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(userRepo repositories.UserRepository, tokens *auth.TokenManager, audit *telemetry.AuditEmitter, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{userRepo: userRepo, tokens: tokens, audit: audit, log: log}
}

// Register creates a user account and returns a fresh token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username" binding:"required,min=3,max=32"`
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required,min=8"`
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.CodeInternal, "hash password", err))
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	user, err := h.userRepo.Create(c.Request.Context(), models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  displayName,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.CodeInternal, "issue token", err))
		return
	}

	userID := int64(user.ID)
	h.audit.Emit(c.Request.Context(), "INFO", "user registered", requestIDFromContext(c), &userID)
	h.log.Infow("user registered", "user_id", user.ID, "username", user.Username)

	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userRepo.GetByUsername(c.Request.Context(), req.Username)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same response for unknown user and bad password.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.CodeInternal, "issue token", err))
		return
	}

	userID := int64(user.ID)
	h.audit.Emit(c.Request.Context(), "INFO", "user logged in", requestIDFromContext(c), &userID)

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}
