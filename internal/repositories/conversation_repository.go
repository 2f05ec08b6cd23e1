package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
	apperrors "messaging-service/pkg/errors"
)

const conversationColumns = `id, user1_id, user2_id, last_message_text, last_message_time, last_message_sender_id, created_at, updated_at`

// ConversationRepository canonicalizes a two-user pair into exactly one
// conversation and serves participant-scoped reads.
type ConversationRepository interface {
	GetOrCreate(ctx context.Context, userX, userY int) (models.Conversation, error)
	GetForParticipant(ctx context.Context, conversationID, userID int) (models.Conversation, error)
	ListForUser(ctx context.Context, userID, limit int) ([]models.ConversationSummary, error)
	IsParticipant(ctx context.Context, conversationID, userID int) (bool, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// canonicalPair orders an unordered user pair lower id first. Both the
// conversations and friendships tables store pairs this way, so the unique
// constraint on (user1_id, user2_id) is the dedup key.
func canonicalPair(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetOrCreate returns the conversation for the pair, creating it when
// missing. Concurrent calls for the same pair are serialized by the unique
// constraint: the insert is a no-op on conflict and the follow-up read
// returns whichever row won.
func (r *ConversationRepo) GetOrCreate(ctx context.Context, userX, userY int) (models.Conversation, error) {
	return ensureConversation(ctx, r.db, userX, userY)
}

// GetForParticipant fetches a conversation, distinguishing a missing row
// from a caller who is not one of the two participants.
func (r *ConversationRepo) GetForParticipant(ctx context.Context, conversationID, userID int) (models.Conversation, error) {
	conv, err := getConversation(ctx, r.db, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, apperrors.Forbidden("user is not a participant in this conversation")
	}
	return conv, nil
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ? AND (user1_id = ? OR user2_id = ?))`),
		conversationID, userID, userID)
	return exists, err
}

// ListForUser returns the user's conversations ordered by last activity,
// newest first, with the unread count computed from the message ledger.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID, limit int) ([]models.ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, r.db.Rebind(`SELECT `+conversationColumns+` FROM conversations
        WHERE user1_id = ? OR user2_id = ?
        ORDER BY COALESCE(last_message_time, created_at) DESC
        LIMIT ?`), userID, userID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list conversations", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		var unread int
		err := r.db.GetContext(ctx, &unread, r.db.Rebind(`SELECT COUNT(*) FROM messages
            WHERE conversation_id = ? AND sender_id <> ? AND is_read = FALSE AND deleted = FALSE`),
			conv.ID, userID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "count unread messages", err)
		}
		summaries = append(summaries, models.ConversationSummary{
			ConversationID:      conv.ID,
			FriendID:            conv.OtherParticipant(userID),
			LastMessageText:     conv.LastMessageText,
			LastMessageTime:     conv.LastMessageTime,
			LastMessageSenderID: conv.LastMessageSenderID,
			IsLastMessageFromMe: conv.LastMessageSenderID != nil && *conv.LastMessageSenderID == userID,
			UnreadCount:         unread,
			CreatedAt:           conv.CreatedAt,
		})
	}
	return summaries, nil
}

// ensureConversation resolves or creates the canonical conversation for a
// pair inside any queryer, so message sends can run it in their own
// transaction.
func ensureConversation(ctx context.Context, q sqlx.ExtContext, userX, userY int) (models.Conversation, error) {
	if userX == userY {
		return models.Conversation{}, apperrors.InvalidArg("cannot start a conversation with yourself")
	}
	for _, id := range []int{userX, userY} {
		exists, err := userExists(ctx, q, id)
		if err != nil {
			return models.Conversation{}, apperrors.Wrap(apperrors.CodeInternal, "check user", err)
		}
		if !exists {
			return models.Conversation{}, apperrors.NotFound(fmt.Sprintf("user with id %d not found", id))
		}
	}

	user1, user2 := canonicalPair(userX, userY)
	now := time.Now().UTC()
	if _, err := q.ExecContext(ctx, q.Rebind(`INSERT INTO conversations (user1_id, user2_id, created_at, updated_at)
        VALUES (?, ?, ?, ?) ON CONFLICT (user1_id, user2_id) DO NOTHING`), user1, user2, now, now); err != nil {
		return models.Conversation{}, apperrors.Wrap(apperrors.CodeInternal, "create conversation", err)
	}

	var conv models.Conversation
	err := sqlx.GetContext(ctx, q, &conv,
		q.Rebind(`SELECT `+conversationColumns+` FROM conversations WHERE user1_id = ? AND user2_id = ?`),
		user1, user2)
	if err != nil {
		return models.Conversation{}, apperrors.Wrap(apperrors.CodeInternal, "load conversation", err)
	}
	return conv, nil
}

// getConversation fetches a conversation by id from any queryer.
func getConversation(ctx context.Context, q sqlx.ExtContext, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := sqlx.GetContext(ctx, q, &conv,
		q.Rebind(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`), conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, apperrors.NotFound("conversation not found")
	}
	if err != nil {
		return models.Conversation{}, apperrors.Wrap(apperrors.CodeInternal, "get conversation", err)
	}
	return conv, nil
}
