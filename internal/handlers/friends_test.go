package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/telemetry"
	apperrors "messaging-service/pkg/errors"
)

func setupFriendRouter(repo *mocks.FriendshipRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	audit := telemetry.NewAuditEmitter("audit_log.test", "messaging-service", "test", zap.NewNop().Sugar())
	handler := NewFriendHandler(repo, audit)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/friends/requests", handler.SendRequest)
	r.GET("/friends/requests/received", handler.ListReceived)
	r.GET("/friends/requests/sent", handler.ListSent)
	r.POST("/friends/requests/:request_id/accept", handler.Accept)
	r.POST("/friends/requests/:request_id/reject", handler.Reject)
	r.GET("/friends", handler.ListFriends)
	r.GET("/friends/relationship/:user_id", handler.CheckRelationship)
	r.DELETE("/friends/:friend_id", handler.Remove)
	return r
}

func TestSendFriendRequestSuccess(t *testing.T) {
	repo := new(mocks.FriendshipRepositoryMock)
	router := setupFriendRouter(repo)

	repo.On("SendRequest", mock.Anything, 1, 2).
		Return(models.FriendRequest{ID: 4, SenderID: 1, ReceiverID: 2, Status: models.RequestPending}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friends/requests", bytes.NewBufferString(`{"receiver_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	repo.AssertExpectations(t)
}

func TestSendFriendRequestConflict(t *testing.T) {
	repo := new(mocks.FriendshipRepositoryMock)
	router := setupFriendRouter(repo)

	repo.On("SendRequest", mock.Anything, 1, 2).
		Return(models.FriendRequest{}, apperrors.AlreadyExists("users are already friends")).Once()

	req := httptest.NewRequest(http.MethodPost, "/friends/requests", bytes.NewBufferString(`{"receiver_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	repo.AssertExpectations(t)
}

func TestAcceptFriendRequestSuccess(t *testing.T) {
	repo := new(mocks.FriendshipRepositoryMock)
	router := setupFriendRouter(repo)

	repo.On("Accept", mock.Anything, 4, 1).Return(models.Friendship{ID: 9, User1ID: 1, User2ID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/friends/requests/4/accept", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestAcceptFriendRequestNotReceiver(t *testing.T) {
	repo := new(mocks.FriendshipRepositoryMock)
	router := setupFriendRouter(repo)

	repo.On("Accept", mock.Anything, 4, 1).
		Return(models.Friendship{}, apperrors.Forbidden("only the receiver can accept a friend request")).Once()

	req := httptest.NewRequest(http.MethodPost, "/friends/requests/4/accept", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	repo.AssertExpectations(t)
}

func TestRejectNonPendingRequest(t *testing.T) {
	repo := new(mocks.FriendshipRepositoryMock)
	router := setupFriendRouter(repo)

	repo.On("Reject", mock.Anything, 4, 1).
		Return(models.FriendRequest{}, apperrors.FailedPrecondition("friend request is not pending")).Once()

	req := httptest.NewRequest(http.MethodPost, "/friends/requests/4/reject", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	repo.AssertExpectations(t)
}

func TestCheckRelationship(t *testing.T) {
	repo := new(mocks.FriendshipRepositoryMock)
	router := setupFriendRouter(repo)

	repo.On("CheckRelationship", mock.Anything, 1, 2).Return("REVERSE_PENDING", nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/friends/relationship/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "REVERSE_PENDING")
	repo.AssertExpectations(t)
}

func TestRemoveFriendSuccess(t *testing.T) {
	repo := new(mocks.FriendshipRepositoryMock)
	router := setupFriendRouter(repo)

	repo.On("Remove", mock.Anything, 1, 2).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/friends/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	repo.AssertExpectations(t)
}

func TestRemoveFriendNotFound(t *testing.T) {
	repo := new(mocks.FriendshipRepositoryMock)
	router := setupFriendRouter(repo)

	repo.On("Remove", mock.Anything, 1, 2).Return(apperrors.NotFound("friendship not found")).Once()

	req := httptest.NewRequest(http.MethodDelete, "/friends/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	repo.AssertExpectations(t)
}

func TestListFriends(t *testing.T) {
	repo := new(mocks.FriendshipRepositoryMock)
	router := setupFriendRouter(repo)

	repo.On("ListFriends", mock.Anything, 1).Return([]models.FriendEntry{
		{Friendship: models.Friendship{ID: 9, User1ID: 1, User2ID: 2}, Friend: models.User{ID: 2, Username: "bob"}},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/friends", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bob")
	repo.AssertExpectations(t)
}
