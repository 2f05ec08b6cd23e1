package ws

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// ConversationWebSocketHandler serves read-only topic subscriptions for a
// single conversation. Clients that only watch one thread use this instead
// of the user endpoint's subscribe frame.
type ConversationWebSocketHandler struct {
	hub              *Hub
	conversationRepo repositories.ConversationRepository
	tokens           *auth.TokenManager
}

// NewConversationWebSocketHandler constructs a ConversationWebSocketHandler.
func NewConversationWebSocketHandler(hub *Hub, conversationRepo repositories.ConversationRepository, tokens *auth.TokenManager) *ConversationWebSocketHandler {
	return &ConversationWebSocketHandler{hub: hub, conversationRepo: conversationRepo, tokens: tokens}
}

// Handle upgrades the connection and subscribes it to the conversation
// topic after a participant check.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := authenticate(c, h.tokens)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.conversationRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := newConnInfo(userID, c.Request, requestID, traceID)
	h.hub.Subscribe(conversationID, conn, info)

	observability.IncWSActive("conversation")
	observability.IncWSEvent("conversation", "ws_connect")
	_ = observability.PublishEvent(ctx, wsRoutingKey("conversation"),
		observability.NewEventEnvelope("ws_events", "ws_connect", connPayload("conversation", conversationID, "ws_connect", info, 0, "")),
		observability.BuildHeaders(requestID, traceID))

	// Drain the connection so pings and close frames are handled; inbound
	// frames on this endpoint are ignored. The loop outlives the request
	// context, so the disconnect events publish on a detached copy.
	loopCtx := context.WithoutCancel(ctx)
	go func() {
		var closeReason string
		defer func() {
			h.hub.Unsubscribe(conversationID, conn)
			observability.DecWSActive("conversation")
			observability.IncWSEvent("conversation", "ws_disconnect")
			_ = observability.PublishEvent(loopCtx, wsRoutingKey("conversation"),
				observability.NewEventEnvelope("ws_events", "ws_disconnect", connPayload("conversation", conversationID, "ws_disconnect", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason)),
				observability.BuildHeaders(requestID, traceID))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("conversation", "ws_error")
					_ = observability.PublishEvent(loopCtx, wsRoutingKey("conversation"),
						observability.NewEventEnvelope("ws_events", "ws_error", connPayload("conversation", conversationID, "ws_error", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason)),
						observability.BuildHeaders(requestID, traceID))
				}
				return
			}
		}
	}()
}
