package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Hub tracks live websocket connections on two planes: a private channel
// per user id, and a topic per conversation id. Direct events go to the
// two users' private channels, conversation events to the topic.
type Hub struct {
	userChans map[int]map[*websocket.Conn]ConnInfo
	topics    map[int]map[*websocket.Conn]ConnInfo
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		userChans: make(map[int]map[*websocket.Conn]ConnInfo),
		topics:    make(map[int]map[*websocket.Conn]ConnInfo),
	}
}

// Register attaches a connection to the user's private channel.
func (h *Hub) Register(userID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.userChans[userID]; !ok {
		h.userChans[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.userChans[userID][conn] = info
}

// Unregister detaches a connection from the user's private channel.
func (h *Hub) Unregister(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.userChans[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.userChans, userID)
		}
	}
}

// Subscribe attaches a connection to a conversation topic.
func (h *Hub) Subscribe(conversationID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[conversationID]; !ok {
		h.topics[conversationID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.topics[conversationID][conn] = info
}

// Unsubscribe detaches a connection from a conversation topic.
func (h *Hub) Unsubscribe(conversationID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.topics[conversationID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.topics, conversationID)
		}
	}
}

// NotifyDirectMessage pushes a new message to both participants' private
// channels, sender included so their other devices stay in sync.
func (h *Hub) NotifyDirectMessage(senderID, recipientID int, msg models.Message) {
	event := models.Event{Type: models.EventMessage, ConversationID: msg.ConversationID, Message: &msg}
	h.sendToUser(senderID, event)
	if recipientID != senderID {
		h.sendToUser(recipientID, event)
	}
}

// NotifyConversationMessage pushes a new message to the conversation topic.
func (h *Hub) NotifyConversationMessage(conversationID int, msg models.Message) {
	h.sendToTopic(conversationID, models.Event{
		Type:           models.EventMessage,
		ConversationID: conversationID,
		Message:        &msg,
	})
}

// NotifyMessageDeleted tells topic subscribers that a message was removed.
func (h *Hub) NotifyMessageDeleted(conversationID, messageID int) {
	h.sendToTopic(conversationID, models.Event{
		Type:           models.EventMessageDeleted,
		ConversationID: conversationID,
		MessageID:      messageID,
	})
}

// NotifyReadReceipt tells topic subscribers that a participant caught up.
func (h *Hub) NotifyReadReceipt(conversationID int, receipt models.ReadReceipt) {
	h.sendToTopic(conversationID, models.Event{
		Type:           models.EventReadReceipt,
		ConversationID: conversationID,
		Receipt:        &receipt,
	})
}

// NotifyTyping relays a typing indicator to topic subscribers.
func (h *Hub) NotifyTyping(conversationID int, typing models.TypingEvent) {
	h.sendToTopic(conversationID, models.Event{
		Type:           models.EventTyping,
		ConversationID: conversationID,
		Typing:         &typing,
	})
}

// NotifyError reports a processing failure back to the user's own channel.
func (h *Hub) NotifyError(userID int, message string) {
	h.sendToUser(userID, models.Event{Type: models.EventError, Error: message})
}

// wsTarget pairs a connection with its write lock for fan-out outside the
// hub mutex. REST handlers and frame loops can notify the same connection
// at once, and gorilla conns permit only one concurrent writer.
type wsTarget struct {
	conn    *websocket.Conn
	writeMu *sync.Mutex
}

func (t wsTarget) write(payload []byte) error {
	if t.writeMu != nil {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *Hub) sendToUser(userID int, event models.Event) {
	h.mu.RLock()
	targets := make([]wsTarget, 0, len(h.userChans[userID]))
	for conn, info := range h.userChans[userID] {
		targets = append(targets, wsTarget{conn: conn, writeMu: info.writeMu})
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, target := range targets {
		if err := target.write(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			target.conn.Close()
			h.publishWSError("user", userID, target.conn, err)
			h.Unregister(userID, target.conn)
		}
	}
}

func (h *Hub) sendToTopic(conversationID int, event models.Event) {
	h.mu.RLock()
	targets := make([]wsTarget, 0, len(h.topics[conversationID]))
	for conn, info := range h.topics[conversationID] {
		targets = append(targets, wsTarget{conn: conn, writeMu: info.writeMu})
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, target := range targets {
		if err := target.write(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			target.conn.Close()
			h.publishWSError("conversation", conversationID, target.conn, err)
			h.Unsubscribe(conversationID, target.conn)
		}
	}
}

func (h *Hub) publishWSError(kind string, resourceID int, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(kind, resourceID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": resourceID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey(kind),
		observability.NewEventEnvelope("ws_events", "ws_error", payload), headers)
	observability.IncWSEvent(kind, "ws_error")
}

func (h *Hub) getConnInfo(kind string, resourceID int, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if kind == "user" {
		if infos, ok := h.userChans[resourceID]; ok {
			info, exists := infos[conn]
			return info, exists
		}
		return ConnInfo{}, false
	}
	if infos, ok := h.topics[resourceID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}

func wsRoutingKey(kind string) string {
	if kind == "conversation" {
		return "ws_events.conversations"
	}
	return "ws_events.users"
}
