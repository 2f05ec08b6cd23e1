package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
	apperrors "messaging-service/pkg/errors"
)

const requestColumns = `id, sender_id, receiver_id, status, created_at`

const friendshipColumns = `id, user1_id, user2_id, created_at`

// FriendshipRepository owns the friend-request lifecycle and the symmetric
// friendship graph.
//
// Request state machine: PENDING -> ACCEPTED (terminal) or
// PENDING -> REJECTED, where a rejected request is reused on resend
// instead of creating a second row.
type FriendshipRepository interface {
	SendRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error)
	Accept(ctx context.Context, requestID, userID int) (models.Friendship, error)
	Reject(ctx context.Context, requestID, userID int) (models.FriendRequest, error)
	ListReceived(ctx context.Context, userID int) ([]models.FriendRequest, error)
	ListSent(ctx context.Context, userID int) ([]models.FriendRequest, error)
	ListFriends(ctx context.Context, userID int) ([]models.FriendEntry, error)
	CheckRelationship(ctx context.Context, userA, userB int) (string, error)
	Remove(ctx context.Context, userID, friendID int) error
}

// FriendshipRepo is a sqlx implementation of FriendshipRepository.
type FriendshipRepo struct {
	db *sqlx.DB
}

// NewFriendshipRepo constructs a FriendshipRepo.
func NewFriendshipRepo(db *sqlx.DB) *FriendshipRepo {
	return &FriendshipRepo{db: db}
}

// SendRequest creates a pending request from sender to receiver. A request
// previously rejected transitions back to pending on the same row. A
// pending request in the opposite direction blocks the send so crossed
// simultaneous requests cannot produce two rows for one relationship.
func (r *FriendshipRepo) SendRequest(ctx context.Context, senderID, receiverID int) (models.FriendRequest, error) {
	if senderID == receiverID {
		return models.FriendRequest{}, apperrors.InvalidArg("cannot send friend request to yourself")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.FriendRequest{}, apperrors.Wrap(apperrors.CodeInternal, "begin request transaction", err)
	}
	defer tx.Rollback()

	for _, id := range []int{senderID, receiverID} {
		exists, err := userExists(ctx, tx, id)
		if err != nil {
			return models.FriendRequest{}, apperrors.Wrap(apperrors.CodeInternal, "check user", err)
		}
		if !exists {
			return models.FriendRequest{}, apperrors.NotFound("user not found")
		}
	}

	friends, err := areFriends(ctx, tx, senderID, receiverID)
	if err != nil {
		return models.FriendRequest{}, apperrors.Wrap(apperrors.CodeInternal, "check friendship", err)
	}
	if friends {
		return models.FriendRequest{}, apperrors.AlreadyExists("users are already friends")
	}

	if existing, ok, err := getRequest(ctx, tx, senderID, receiverID); err != nil {
		return models.FriendRequest{}, err
	} else if ok {
		switch existing.Status {
		case models.RequestPending:
			return models.FriendRequest{}, apperrors.AlreadyExists("friend request already sent and pending")
		case models.RequestAccepted:
			return models.FriendRequest{}, apperrors.AlreadyExists("friend request already accepted")
		default:
			// Rejected before: resend reuses the row.
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE friend_requests SET status = ? WHERE id = ?`),
				models.RequestPending, existing.ID); err != nil {
				return models.FriendRequest{}, apperrors.Wrap(apperrors.CodeInternal, "resend friend request", err)
			}
			existing.Status = models.RequestPending
			if err := tx.Commit(); err != nil {
				return models.FriendRequest{}, apperrors.Wrap(apperrors.CodeInternal, "commit request transaction", err)
			}
			return existing, nil
		}
	}

	if reverse, ok, err := getRequest(ctx, tx, receiverID, senderID); err != nil {
		return models.FriendRequest{}, err
	} else if ok && reverse.Status == models.RequestPending {
		return models.FriendRequest{}, apperrors.AlreadyExists("there is already a pending request from the receiver")
	}

	req := models.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.RequestPending,
		CreatedAt:  time.Now().UTC(),
	}
	err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO friend_requests (sender_id, receiver_id, status, created_at)
        VALUES (?, ?, ?, ?) RETURNING id`), req.SenderID, req.ReceiverID, req.Status, req.CreatedAt).Scan(&req.ID)
	if err != nil {
		return models.FriendRequest{}, apperrors.Wrap(apperrors.CodeInternal, "create friend request", err)
	}
	if err := tx.Commit(); err != nil {
		return models.FriendRequest{}, apperrors.Wrap(apperrors.CodeInternal, "commit request transaction", err)
	}
	return req, nil
}

// Accept transitions a pending request to accepted and creates the
// canonical friendship row in the same transaction. The conflict-ignoring
// insert keeps the pair unique even under concurrent acceptance paths.
func (r *FriendshipRepo) Accept(ctx context.Context, requestID, userID int) (models.Friendship, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Friendship{}, apperrors.Wrap(apperrors.CodeInternal, "begin accept transaction", err)
	}
	defer tx.Rollback()

	req, err := getRequestByID(ctx, tx, requestID)
	if err != nil {
		return models.Friendship{}, err
	}
	if req.ReceiverID != userID {
		return models.Friendship{}, apperrors.Forbidden("only the receiver can accept a friend request")
	}
	if req.Status != models.RequestPending {
		return models.Friendship{}, apperrors.FailedPrecondition("friend request is not pending")
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE friend_requests SET status = ? WHERE id = ?`),
		models.RequestAccepted, requestID); err != nil {
		return models.Friendship{}, apperrors.Wrap(apperrors.CodeInternal, "accept friend request", err)
	}

	user1, user2 := canonicalPair(req.SenderID, req.ReceiverID)
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO friendships (user1_id, user2_id, created_at)
        VALUES (?, ?, ?) ON CONFLICT (user1_id, user2_id) DO NOTHING`), user1, user2, time.Now().UTC()); err != nil {
		return models.Friendship{}, apperrors.Wrap(apperrors.CodeInternal, "create friendship", err)
	}

	var friendship models.Friendship
	err = sqlx.GetContext(ctx, tx, &friendship,
		tx.Rebind(`SELECT `+friendshipColumns+` FROM friendships WHERE user1_id = ? AND user2_id = ?`), user1, user2)
	if err != nil {
		return models.Friendship{}, apperrors.Wrap(apperrors.CodeInternal, "load friendship", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Friendship{}, apperrors.Wrap(apperrors.CodeInternal, "commit accept transaction", err)
	}
	return friendship, nil
}

// Reject transitions a pending request to rejected. No friendship is
// created and the sender may resend later.
func (r *FriendshipRepo) Reject(ctx context.Context, requestID, userID int) (models.FriendRequest, error) {
	req, err := getRequestByID(ctx, r.db, requestID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if req.ReceiverID != userID {
		return models.FriendRequest{}, apperrors.Forbidden("only the receiver can reject a friend request")
	}
	if req.Status != models.RequestPending {
		return models.FriendRequest{}, apperrors.FailedPrecondition("friend request is not pending")
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE friend_requests SET status = ? WHERE id = ?`),
		models.RequestRejected, requestID); err != nil {
		return models.FriendRequest{}, apperrors.Wrap(apperrors.CodeInternal, "reject friend request", err)
	}
	req.Status = models.RequestRejected
	return req, nil
}

// ListReceived returns pending requests addressed to the user.
func (r *FriendshipRepo) ListReceived(ctx context.Context, userID int) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	err := r.db.SelectContext(ctx, &reqs, r.db.Rebind(`SELECT `+requestColumns+` FROM friend_requests
        WHERE receiver_id = ? AND status = ? ORDER BY created_at DESC`), userID, models.RequestPending)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list received requests", err)
	}
	return reqs, nil
}

// ListSent returns pending requests created by the user.
func (r *FriendshipRepo) ListSent(ctx context.Context, userID int) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	err := r.db.SelectContext(ctx, &reqs, r.db.Rebind(`SELECT `+requestColumns+` FROM friend_requests
        WHERE sender_id = ? AND status = ? ORDER BY created_at DESC`), userID, models.RequestPending)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list sent requests", err)
	}
	return reqs, nil
}

// ListFriends returns the user's friendships with the other user's details,
// covering both canonical-order roles.
func (r *FriendshipRepo) ListFriends(ctx context.Context, userID int) ([]models.FriendEntry, error) {
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(`SELECT
            f.id, f.user1_id, f.user2_id, f.created_at,
            u.id, u.username, u.email, u.password_hash, u.display_name, u.about, u.avatar_url, u.created_at
        FROM friendships f
        JOIN users u ON u.id = CASE WHEN f.user1_id = ? THEN f.user2_id ELSE f.user1_id END
        WHERE f.user1_id = ? OR f.user2_id = ?
        ORDER BY f.created_at DESC`), userID, userID, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list friends", err)
	}
	defer rows.Close()

	var entries []models.FriendEntry
	for rows.Next() {
		var entry models.FriendEntry
		if err := rows.Scan(
			&entry.Friendship.ID, &entry.Friendship.User1ID, &entry.Friendship.User2ID, &entry.Friendship.CreatedAt,
			&entry.Friend.ID, &entry.Friend.Username, &entry.Friend.Email, &entry.Friend.PasswordHash,
			&entry.Friend.DisplayName, &entry.Friend.About, &entry.Friend.AvatarURL, &entry.Friend.CreatedAt,
		); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "scan friend entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list friends", err)
	}
	return entries, nil
}

// CheckRelationship classifies the state between two users. Friendship
// short-circuits; otherwise the forward request status is reported bare
// and the reverse one with the REVERSE_ prefix.
func (r *FriendshipRepo) CheckRelationship(ctx context.Context, userA, userB int) (string, error) {
	friends, err := areFriends(ctx, r.db, userA, userB)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "check friendship", err)
	}
	if friends {
		return models.RelationFriends, nil
	}
	if forward, ok, err := getRequest(ctx, r.db, userA, userB); err != nil {
		return "", err
	} else if ok {
		return string(forward.Status), nil
	}
	if reverse, ok, err := getRequest(ctx, r.db, userB, userA); err != nil {
		return "", err
	} else if ok {
		return models.RelationReversePrefix + string(reverse.Status), nil
	}
	return models.RelationNone, nil
}

// Remove deletes the friendship and both request rows between the pair so
// a later SendRequest is not blocked by stale history.
func (r *FriendshipRepo) Remove(ctx context.Context, userID, friendID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "begin remove transaction", err)
	}
	defer tx.Rollback()

	user1, user2 := canonicalPair(userID, friendID)
	var friendshipID int
	err = sqlx.GetContext(ctx, tx, &friendshipID,
		tx.Rebind(`SELECT id FROM friendships WHERE user1_id = ? AND user2_id = ?`), user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("friendship not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "find friendship", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM friendships WHERE id = ?`), friendshipID); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "delete friendship", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM friend_requests
        WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)`),
		userID, friendID, friendID, userID); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "delete friend requests", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "commit remove transaction", err)
	}
	return nil
}

func getRequest(ctx context.Context, q sqlx.ExtContext, senderID, receiverID int) (models.FriendRequest, bool, error) {
	var req models.FriendRequest
	err := sqlx.GetContext(ctx, q, &req,
		q.Rebind(`SELECT `+requestColumns+` FROM friend_requests WHERE sender_id = ? AND receiver_id = ?`),
		senderID, receiverID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, false, nil
	}
	if err != nil {
		return models.FriendRequest{}, false, apperrors.Wrap(apperrors.CodeInternal, "get friend request", err)
	}
	return req, true, nil
}

func getRequestByID(ctx context.Context, q sqlx.ExtContext, requestID int) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := sqlx.GetContext(ctx, q, &req,
		q.Rebind(`SELECT `+requestColumns+` FROM friend_requests WHERE id = ?`), requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, apperrors.NotFound("friend request not found")
	}
	if err != nil {
		return models.FriendRequest{}, apperrors.Wrap(apperrors.CodeInternal, "get friend request", err)
	}
	return req, nil
}

func areFriends(ctx context.Context, q sqlx.ExtContext, a, b int) (bool, error) {
	user1, user2 := canonicalPair(a, b)
	var exists bool
	err := sqlx.GetContext(ctx, q, &exists,
		q.Rebind(`SELECT EXISTS(SELECT 1 FROM friendships WHERE user1_id = ? AND user2_id = ?)`), user1, user2)
	return exists, err
}
