package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/ws"
	apperrors "messaging-service/pkg/errors"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/messages", handler.SendDirect)
	r.POST("/messages/:message_id/delivered", handler.MarkDelivered)
	r.GET("/conversations/:conversation_id/messages", handler.GetMessages)
	r.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	r.GET("/conversations/:conversation_id/messages/before/:message_id", handler.GetMessagesBefore)
	r.GET("/conversations/:conversation_id/messages/after/:message_id", handler.GetMessagesAfter)
	r.POST("/conversations/:conversation_id/read", handler.MarkRead)
	r.DELETE("/conversations/:conversation_id/messages/:message_id", handler.DeleteMessage)
	return r
}

func TestSendDirectSuccess(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.ConversationRepositoryMock), nil, ws.NewHub())
	router := setupMessageRouter(handler)

	msgRepo.On("SendDirect", mock.Anything, 1, 2, "hi").
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hi"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"recipient_id":2,"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestSendDirectUnknownRecipient(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.ConversationRepositoryMock), nil, ws.NewHub())
	router := setupMessageRouter(handler)

	msgRepo.On("SendDirect", mock.Anything, 1, 99, "hi").
		Return(models.Message{}, apperrors.NotFound("user with id 99 not found")).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"recipient_id":99,"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestPostMessageSuccess(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewMessageHandler(msgRepo, convRepo, nil, ws.NewHub())
	router := setupMessageRouter(handler)

	convRepo.On("GetForParticipant", mock.Anything, 5, 1).
		Return(models.Conversation{ID: 5, User1ID: 1, User2ID: 2}, nil).Once()
	msgRepo.On("Send", mock.Anything, 5, 1, "hello", ([]models.AttachmentInput)(nil)).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hello"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

func TestPostMessageTooLong(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewMessageHandler(msgRepo, convRepo, nil, ws.NewHub())
	router := setupMessageRouter(handler)

	convRepo.On("GetForParticipant", mock.Anything, 5, 1).
		Return(models.Conversation{ID: 5, User1ID: 1, User2ID: 2}, nil).Once()
	msgRepo.On("Send", mock.Anything, 5, 1, "way too long", ([]models.AttachmentInput)(nil)).
		Return(models.Message{}, apperrors.InvalidArg("message content exceeds maximum length")).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"way too long"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestGetMessagesPassesPaging(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.ConversationRepositoryMock), nil, ws.NewHub())
	router := setupMessageRouter(handler)

	msgRepo.On("Page", mock.Anything, 5, 1, 2, 10).Return([]models.Message{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/messages?page=2&size=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestGetMessagesBefore(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.ConversationRepositoryMock), nil, ws.NewHub())
	router := setupMessageRouter(handler)

	msgRepo.On("Before", mock.Anything, 5, 1, 40, 20).Return([]models.Message{{ID: 39}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/messages/before/40", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestMarkReadPushesReceipt(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.ConversationRepositoryMock), nil, ws.NewHub())
	router := setupMessageRouter(handler)

	msgRepo.On("MarkRead", mock.Anything, 5, 1, ([]int)(nil)).Return(3, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":3`)
	msgRepo.AssertExpectations(t)
}

func TestMarkDelivered(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.ConversationRepositoryMock), nil, ws.NewHub())
	router := setupMessageRouter(handler)

	msgRepo.On("MarkDelivered", mock.Anything, 7, 1).Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/7/delivered", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"delivered":true`)
	msgRepo.AssertExpectations(t)
}

func TestDeleteMessageSuccess(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.ConversationRepositoryMock), nil, ws.NewHub())
	router := setupMessageRouter(handler)

	msgRepo.On("Get", mock.Anything, 7).Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1}, nil).Once()
	msgRepo.On("SoftDelete", mock.Anything, 7, 1).Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/conversations/5/messages/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestDeleteMessageWrongConversation(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.ConversationRepositoryMock), nil, ws.NewHub())
	router := setupMessageRouter(handler)

	msgRepo.On("Get", mock.Anything, 7).Return(models.Message{ID: 7, ConversationID: 8, SenderID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/conversations/5/messages/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestDeleteMessageNotSender(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(msgRepo, new(mocks.ConversationRepositoryMock), nil, ws.NewHub())
	router := setupMessageRouter(handler)

	msgRepo.On("Get", mock.Anything, 7).Return(models.Message{ID: 7, ConversationID: 5, SenderID: 2}, nil).Once()
	msgRepo.On("SoftDelete", mock.Anything, 7, 1).
		Return(false, apperrors.Forbidden("only the sender can delete their message")).Once()

	req := httptest.NewRequest(http.MethodDelete, "/conversations/5/messages/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	msgRepo.AssertExpectations(t)
}

func wsConnPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-serverCh:
	case <-time.After(time.Second):
		t.Fatalf("server side never upgraded")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestPostMessageDeliversToTopicOnly(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	convRepo := new(mocks.ConversationRepositoryMock)
	hub := ws.NewHub()
	handler := NewMessageHandler(msgRepo, convRepo, nil, hub)
	router := setupMessageRouter(handler)

	privServer, privClient := wsConnPair(t)
	hub.Register(1, privServer, ws.ConnInfo{UserID: 1})
	topicServer, topicClient := wsConnPair(t)
	hub.Subscribe(5, topicServer, ws.ConnInfo{UserID: 2})

	convRepo.On("GetForParticipant", mock.Anything, 5, 1).
		Return(models.Conversation{ID: 5, User1ID: 1, User2ID: 2}, nil).Once()
	msgRepo.On("Send", mock.Anything, 5, 1, "hello", ([]models.AttachmentInput)(nil)).
		Return(models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hello"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/5/messages", bytes.NewBufferString(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	topicClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event models.Event
	require.NoError(t, topicClient.ReadJSON(&event))
	assert.Equal(t, models.EventMessage, event.Type)

	// The sender's private channel stays quiet for conversation-addressed
	// sends; only the shared topic carries them.
	privClient.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var stray models.Event
	require.Error(t, privClient.ReadJSON(&stray))
	msgRepo.AssertExpectations(t)
	convRepo.AssertExpectations(t)
}
