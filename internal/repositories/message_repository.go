package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
	apperrors "messaging-service/pkg/errors"
)

const (
	// MaxContentLength bounds message text. Longer writes are rejected even
	// if a caller skipped its own validation.
	MaxContentLength = 2000

	// afterCap bounds the unpaginated catch-up query.
	afterCap = 500

	attachmentPreview = "Sent an attachment"
)

const messageColumns = `id, conversation_id, sender_id, content, delivered, delivered_at, is_read, read_at, deleted, sent_at`

const attachmentColumns = `id, message_id, file_name, original_file_name, mime_type, file_size, attachment_type, thumbnail_name`

// MessageRepository is the append-only ledger for conversation messages.
// Every append updates the owning conversation's preview cache in the same
// transaction.
type MessageRepository interface {
	Send(ctx context.Context, conversationID, senderID int, content string, attachments []models.AttachmentInput) (models.Message, error)
	SendDirect(ctx context.Context, senderID, recipientID int, content string) (models.Message, error)
	Page(ctx context.Context, conversationID, requesterID, page, size int) ([]models.Message, error)
	Before(ctx context.Context, conversationID, requesterID, messageID, limit int) ([]models.Message, error)
	After(ctx context.Context, conversationID, requesterID, messageID int) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, userID int, messageIDs []int) (int, error)
	MarkDelivered(ctx context.Context, messageID, userID int) (bool, error)
	SoftDelete(ctx context.Context, messageID, userID int) (bool, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
	GetAttachment(ctx context.Context, attachmentID int) (models.Attachment, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Send appends a message to an existing conversation.
func (r *MessageRepo) Send(ctx context.Context, conversationID, senderID int, content string, attachments []models.AttachmentInput) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, apperrors.Wrap(apperrors.CodeInternal, "begin send transaction", err)
	}
	defer tx.Rollback()

	msg, err := appendMessage(ctx, tx, conversationID, senderID, content, attachments)
	if err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, apperrors.Wrap(apperrors.CodeInternal, "commit send transaction", err)
	}
	return msg, nil
}

// SendDirect resolves (or creates) the conversation for the pair and
// appends the message, all in one transaction.
func (r *MessageRepo) SendDirect(ctx context.Context, senderID, recipientID int, content string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, apperrors.Wrap(apperrors.CodeInternal, "begin send transaction", err)
	}
	defer tx.Rollback()

	conv, err := ensureConversation(ctx, tx, senderID, recipientID)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := appendMessage(ctx, tx, conv.ID, senderID, content, nil)
	if err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, apperrors.Wrap(apperrors.CodeInternal, "commit send transaction", err)
	}
	return msg, nil
}

// appendMessage validates the send, inserts the message and its
// attachments, and co-updates the conversation preview cache. The caller
// owns the transaction.
func appendMessage(ctx context.Context, tx *sqlx.Tx, conversationID, senderID int, content string, attachments []models.AttachmentInput) (models.Message, error) {
	conv, err := getConversation(ctx, tx, conversationID)
	if err != nil {
		return models.Message{}, err
	}
	exists, err := userExists(ctx, tx, senderID)
	if err != nil {
		return models.Message{}, apperrors.Wrap(apperrors.CodeInternal, "check sender", err)
	}
	if !exists {
		return models.Message{}, apperrors.NotFound("sender not found")
	}
	if !conv.HasParticipant(senderID) {
		return models.Message{}, apperrors.Forbidden("sender is not a participant in this conversation")
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" && len(attachments) == 0 {
		return models.Message{}, apperrors.InvalidArg("message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return models.Message{}, apperrors.InvalidArg("message content exceeds maximum length")
	}

	// The server clock is clamped to the cached last-message time so sentAt
	// never decreases within one conversation.
	sentAt := time.Now().UTC()
	if conv.LastMessageTime != nil && sentAt.Before(*conv.LastMessageTime) {
		sentAt = *conv.LastMessageTime
	}

	msg := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         sentAt,
	}
	err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO messages (conversation_id, sender_id, content, sent_at)
        VALUES (?, ?, ?, ?) RETURNING id`), conversationID, senderID, content, sentAt).Scan(&msg.ID)
	if err != nil {
		return models.Message{}, apperrors.Wrap(apperrors.CodeInternal, "insert message", err)
	}

	for _, in := range attachments {
		att := models.Attachment{
			MessageID:        msg.ID,
			FileName:         in.FileName,
			OriginalFileName: in.OriginalFileName,
			MimeType:         in.MimeType,
			FileSize:         in.FileSize,
			AttachmentType:   in.AttachmentType,
		}
		err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO message_attachments
            (message_id, file_name, original_file_name, mime_type, file_size, attachment_type)
            VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
			att.MessageID, att.FileName, att.OriginalFileName, att.MimeType, att.FileSize, att.AttachmentType).Scan(&att.ID)
		if err != nil {
			return models.Message{}, apperrors.Wrap(apperrors.CodeInternal, "insert attachment", err)
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	preview := content
	if trimmed == "" {
		preview = attachmentPreview
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations
        SET last_message_text = ?, last_message_time = ?, last_message_sender_id = ?, updated_at = ?
        WHERE id = ?`), preview, sentAt, senderID, sentAt, conversationID); err != nil {
		return models.Message{}, apperrors.Wrap(apperrors.CodeInternal, "update conversation preview", err)
	}
	return msg, nil
}

// Page returns non-deleted messages newest first with offset pagination.
func (r *MessageRepo) Page(ctx context.Context, conversationID, requesterID, page, size int) ([]models.Message, error) {
	if err := r.requireParticipant(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 50
	}
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE conversation_id = ? AND deleted = FALSE
        ORDER BY sent_at DESC, id DESC
        LIMIT ? OFFSET ?`), conversationID, size, page*size)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "page messages", err)
	}
	if err := r.loadAttachments(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Before returns up to limit non-deleted messages sent strictly before the
// reference message, newest first.
func (r *MessageRepo) Before(ctx context.Context, conversationID, requesterID, messageID, limit int) ([]models.Message, error) {
	ref, err := r.reference(ctx, conversationID, requesterID, messageID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	var msgs []models.Message
	err = r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE conversation_id = ? AND deleted = FALSE AND sent_at < ?
        ORDER BY sent_at DESC, id DESC
        LIMIT ?`), conversationID, ref.SentAt, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "load older messages", err)
	}
	if err := r.loadAttachments(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// After returns non-deleted messages sent strictly after the reference
// message, oldest first. Clients use it to catch up on missed events.
func (r *MessageRepo) After(ctx context.Context, conversationID, requesterID, messageID int) ([]models.Message, error) {
	ref, err := r.reference(ctx, conversationID, requesterID, messageID)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	err = r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE conversation_id = ? AND deleted = FALSE AND sent_at > ?
        ORDER BY sent_at ASC, id ASC
        LIMIT ?`), conversationID, ref.SentAt, afterCap)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "load newer messages", err)
	}
	if err := r.loadAttachments(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead flips unread messages addressed to userID and returns how many
// rows actually changed. Re-marking read messages is a zero-count success.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, userID int, messageIDs []int) (int, error) {
	if err := r.requireParticipant(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	query := `UPDATE messages SET is_read = TRUE, read_at = ?
        WHERE conversation_id = ? AND sender_id <> ? AND is_read = FALSE AND deleted = FALSE`
	args := []interface{}{time.Now().UTC(), conversationID, userID}
	if len(messageIDs) > 0 {
		var err error
		query, args, err = sqlx.In(query+` AND id IN (?)`, args[0], args[1], args[2], messageIDs)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.CodeInternal, "expand message ids", err)
		}
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "mark messages read", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInternal, "mark messages read", err)
	}
	return int(count), nil
}

// MarkDelivered flips the delivered flag once. The sender cannot ack their
// own message and repeat acks return false without error.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID, userID int) (bool, error) {
	msg, err := r.Get(ctx, messageID)
	if err != nil {
		return false, err
	}
	if err := r.requireParticipant(ctx, msg.ConversationID, userID); err != nil {
		return false, err
	}
	if msg.SenderID == userID {
		return false, nil
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET delivered = TRUE, delivered_at = ?
        WHERE id = ? AND delivered = FALSE`), time.Now().UTC(), messageID)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "mark message delivered", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "mark message delivered", err)
	}
	return count > 0, nil
}

// SoftDelete hides a message from all read paths without removing the row.
// Only the sender may delete; deleting twice is a no-op success.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, userID int) (bool, error) {
	msg, err := r.Get(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg.SenderID != userID {
		return false, apperrors.Forbidden("only the sender can delete their message")
	}
	if msg.Deleted {
		return true, nil
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE messages SET deleted = TRUE WHERE id = ?`), messageID); err != nil {
		return false, apperrors.Wrap(apperrors.CodeInternal, "delete message", err)
	}
	return true, nil
}

// Get retrieves a single message with its attachments, deleted or not.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, apperrors.NotFound("message not found")
	}
	if err != nil {
		return models.Message{}, apperrors.Wrap(apperrors.CodeInternal, "get message", err)
	}
	msgs := []models.Message{msg}
	if err := r.loadAttachments(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// GetAttachment retrieves attachment metadata by id.
func (r *MessageRepo) GetAttachment(ctx context.Context, attachmentID int) (models.Attachment, error) {
	var att models.Attachment
	err := r.db.GetContext(ctx, &att,
		r.db.Rebind(`SELECT `+attachmentColumns+` FROM message_attachments WHERE id = ?`), attachmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Attachment{}, apperrors.NotFound("attachment not found")
	}
	if err != nil {
		return models.Attachment{}, apperrors.Wrap(apperrors.CodeInternal, "get attachment", err)
	}
	return att, nil
}

// reference loads and validates the reference message for before/after
// queries. A reference from another conversation is treated as missing.
func (r *MessageRepo) reference(ctx context.Context, conversationID, requesterID, messageID int) (models.Message, error) {
	if err := r.requireParticipant(ctx, conversationID, requesterID); err != nil {
		return models.Message{}, err
	}
	ref, err := r.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if ref.ConversationID != conversationID {
		return models.Message{}, apperrors.NotFound("referenced message is not part of the specified conversation")
	}
	return ref, nil
}

func (r *MessageRepo) requireParticipant(ctx context.Context, conversationID, userID int) error {
	conv, err := getConversation(ctx, r.db, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return apperrors.Forbidden("user is not a participant in this conversation")
	}
	return nil
}

// loadAttachments fills the Attachments slice for a batch of messages.
func (r *MessageRepo) loadAttachments(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	query, args, err := sqlx.In(`SELECT `+attachmentColumns+` FROM message_attachments WHERE message_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "expand attachment query", err)
	}
	var atts []models.Attachment
	if err := r.db.SelectContext(ctx, &atts, r.db.Rebind(query), args...); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "load attachments", err)
	}
	if len(atts) == 0 {
		return nil
	}
	byMessage := make(map[int][]models.Attachment, len(msgs))
	for _, att := range atts {
		byMessage[att.MessageID] = append(byMessage[att.MessageID], att)
	}
	for i := range msgs {
		msgs[i].Attachments = byMessage[msgs[i].ID]
	}
	return nil
}
