package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	apperrors "messaging-service/pkg/errors"
)

// clientFrame is the inbound message format on the user endpoint.
type clientFrame struct {
	Type           string `json:"type"`
	RecipientID    int    `json:"recipient_id,omitempty"`
	ConversationID int    `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageIDs     []int  `json:"message_ids,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
}

// UserWebSocketHandler serves the per-user websocket endpoint. One
// connection carries the user's private channel and accepts frames for
// sending, read receipts, typing, and topic subscriptions.
type UserWebSocketHandler struct {
	hub              *Hub
	messageRepo      repositories.MessageRepository
	conversationRepo repositories.ConversationRepository
	tokens           *auth.TokenManager
}

// NewUserWebSocketHandler constructs a UserWebSocketHandler.
func NewUserWebSocketHandler(hub *Hub, messageRepo repositories.MessageRepository, conversationRepo repositories.ConversationRepository, tokens *auth.TokenManager) *UserWebSocketHandler {
	return &UserWebSocketHandler{hub: hub, messageRepo: messageRepo, conversationRepo: conversationRepo, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the user's private channel,
// and runs the frame loop until the peer disconnects.
func (h *UserWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := authenticate(c, h.tokens)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := newConnInfo(userID, c.Request, requestID, traceID)
	h.hub.Register(userID, conn, info)

	observability.IncWSActive("user")
	observability.IncWSEvent("user", "ws_connect")
	_ = observability.PublishEvent(ctx, wsRoutingKey("user"),
		observability.NewEventEnvelope("ws_events", "ws_connect", connPayload("user", userID, "ws_connect", info, 0, "")),
		observability.BuildHeaders(requestID, traceID))

	// The request context dies as soon as this handler returns, hijacked
	// connection or not. The loop keeps a detached copy so repository
	// calls made for client frames stay valid for the connection's life.
	go h.readLoop(context.WithoutCancel(ctx), conn, userID, info)
}

func (h *UserWebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, userID int, info ConnInfo) {
	subscribed := map[int]bool{}
	var closeReason string
	defer func() {
		for conversationID := range subscribed {
			h.hub.Unsubscribe(conversationID, conn)
		}
		h.hub.Unregister(userID, conn)
		observability.DecWSActive("user")
		observability.IncWSEvent("user", "ws_disconnect")
		_ = observability.PublishEvent(ctx, wsRoutingKey("user"),
			observability.NewEventEnvelope("ws_events", "ws_disconnect", connPayload("user", userID, "ws_disconnect", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason)),
			observability.BuildHeaders(info.RequestID, info.TraceID))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("user", "ws_error")
				_ = observability.PublishEvent(ctx, wsRoutingKey("user"),
					observability.NewEventEnvelope("ws_events", "ws_error", connPayload("user", userID, "ws_error", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason)),
					observability.BuildHeaders(info.RequestID, info.TraceID))
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.hub.NotifyError(userID, "malformed frame")
			continue
		}
		if err := h.handleFrame(ctx, conn, userID, frame, subscribed, info); err != nil {
			h.hub.NotifyError(userID, err.Error())
		}
	}
}

func (h *UserWebSocketHandler) handleFrame(ctx context.Context, conn *websocket.Conn, userID int, frame clientFrame, subscribed map[int]bool, info ConnInfo) error {
	switch frame.Type {
	case "send_message":
		var msg models.Message
		var err error
		if frame.RecipientID != 0 {
			msg, err = h.messageRepo.SendDirect(ctx, userID, frame.RecipientID, frame.Content)
		} else {
			msg, err = h.messageRepo.Send(ctx, frame.ConversationID, userID, frame.Content, nil)
		}
		if err != nil {
			return err
		}
		observability.IncMessageSent()
		observability.IncWSEvent("user", "send_message")
		// Recipient-addressed messages go to both private channels,
		// conversation-addressed ones to the shared topic. Using both
		// planes for one message would double-deliver to clients that
		// are registered and subscribed at the same time.
		if frame.RecipientID != 0 {
			h.hub.NotifyDirectMessage(userID, frame.RecipientID, msg)
		} else {
			h.hub.NotifyConversationMessage(msg.ConversationID, msg)
		}
		return nil

	case "mark_read":
		count, err := h.messageRepo.MarkRead(ctx, frame.ConversationID, userID, frame.MessageIDs)
		if err != nil {
			return err
		}
		observability.IncWSEvent("user", "mark_read")
		if count > 0 {
			h.hub.NotifyReadReceipt(frame.ConversationID, models.ReadReceipt{
				UserID:    userID,
				Count:     count,
				Timestamp: time.Now().UTC(),
			})
		}
		return nil

	case "typing":
		if err := h.requireParticipant(ctx, frame.ConversationID, userID); err != nil {
			return err
		}
		observability.IncWSEvent("user", "typing")
		h.hub.NotifyTyping(frame.ConversationID, models.TypingEvent{
			UserID:    userID,
			IsTyping:  frame.IsTyping,
			Timestamp: time.Now().UTC(),
		})
		return nil

	case "subscribe":
		if err := h.requireParticipant(ctx, frame.ConversationID, userID); err != nil {
			return err
		}
		h.hub.Subscribe(frame.ConversationID, conn, info)
		subscribed[frame.ConversationID] = true
		observability.IncWSEvent("user", "subscribe")
		return nil

	case "unsubscribe":
		h.hub.Unsubscribe(frame.ConversationID, conn)
		delete(subscribed, frame.ConversationID)
		observability.IncWSEvent("user", "unsubscribe")
		return nil

	default:
		return fmt.Errorf("unknown frame type %q", frame.Type)
	}
}

func (h *UserWebSocketHandler) requireParticipant(ctx context.Context, conversationID, userID int) error {
	member, err := h.conversationRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !member {
		return apperrors.Forbidden("user is not a participant in this conversation")
	}
	return nil
}

// authenticate resolves the user id from the Authorization header or the
// token query parameter, which browsers need since they cannot set headers
// on websocket upgrades.
func authenticate(c *gin.Context, tokens *auth.TokenManager) (int, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		token := c.Query("token")
		if token != "" {
			header = "Bearer " + token
		}
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid token")
	}
	return tokens.Parse(parts[1])
}

func connPayload(kind string, resourceID int, event string, info ConnInfo, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": resourceID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
