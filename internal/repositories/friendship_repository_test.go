package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
	apperrors "messaging-service/pkg/errors"
)

func TestFriendRequestRoundTrip(t *testing.T) {
	conn := newTestDB(t)
	alice := createUser(t, conn, "alice")
	bob := createUser(t, conn, "bob")
	repo := NewFriendshipRepo(conn)
	ctx := context.Background()

	req, err := repo.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, req.Status)

	friendship, err := repo.Accept(ctx, req.ID, bob.ID)
	require.NoError(t, err)
	assert.Less(t, friendship.User1ID, friendship.User2ID)

	status, err := repo.CheckRelationship(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RelationFriends, status)

	friends, err := repo.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, bob.ID, friends[0].Friend.ID)

	// Established friendship blocks a fresh request in either direction.
	_, err = repo.SendRequest(ctx, alice.ID, bob.ID)
	assert.Equal(t, apperrors.CodeAlreadyExists, apperrors.CodeOf(err))
	_, err = repo.SendRequest(ctx, bob.ID, alice.ID)
	assert.Equal(t, apperrors.CodeAlreadyExists, apperrors.CodeOf(err))
}

func TestSendRequestValidation(t *testing.T) {
	conn := newTestDB(t)
	alice := createUser(t, conn, "alice")
	bob := createUser(t, conn, "bob")
	repo := NewFriendshipRepo(conn)
	ctx := context.Background()

	_, err := repo.SendRequest(ctx, alice.ID, alice.ID)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))

	_, err = repo.SendRequest(ctx, alice.ID, 999)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = repo.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	// Duplicate pending request.
	_, err = repo.SendRequest(ctx, alice.ID, bob.ID)
	assert.Equal(t, apperrors.CodeAlreadyExists, apperrors.CodeOf(err))

	// A pending request from the other side blocks the forward send.
	_, err = repo.SendRequest(ctx, bob.ID, alice.ID)
	assert.Equal(t, apperrors.CodeAlreadyExists, apperrors.CodeOf(err))
}

func TestRejectedRequestIsReusedOnResend(t *testing.T) {
	conn := newTestDB(t)
	alice := createUser(t, conn, "alice")
	bob := createUser(t, conn, "bob")
	repo := NewFriendshipRepo(conn)
	ctx := context.Background()

	req, err := repo.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	rejected, err := repo.Reject(ctx, req.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)

	status, err := repo.CheckRelationship(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.RequestRejected), status)

	resent, err := repo.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, resent.ID)
	assert.Equal(t, models.RequestPending, resent.Status)
}

func TestAcceptGuards(t *testing.T) {
	conn := newTestDB(t)
	alice := createUser(t, conn, "alice")
	bob := createUser(t, conn, "bob")
	repo := NewFriendshipRepo(conn)
	ctx := context.Background()

	req, err := repo.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	// Only the receiver may accept.
	_, err = repo.Accept(ctx, req.ID, alice.ID)
	assert.Equal(t, apperrors.CodePermissionDenied, apperrors.CodeOf(err))

	_, err = repo.Accept(ctx, 999, bob.ID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = repo.Accept(ctx, req.ID, bob.ID)
	require.NoError(t, err)

	// A non-pending request cannot be accepted again.
	_, err = repo.Accept(ctx, req.ID, bob.ID)
	assert.Equal(t, apperrors.CodeFailedPrecondition, apperrors.CodeOf(err))
}

func TestCheckRelationshipStates(t *testing.T) {
	conn := newTestDB(t)
	alice := createUser(t, conn, "alice")
	bob := createUser(t, conn, "bob")
	repo := NewFriendshipRepo(conn)
	ctx := context.Background()

	status, err := repo.CheckRelationship(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RelationNone, status)

	_, err = repo.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	status, err = repo.CheckRelationship(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.RequestPending), status)

	status, err = repo.CheckRelationship(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RelationReversePrefix+string(models.RequestPending), status)
}

func TestRemoveClearsHistory(t *testing.T) {
	conn := newTestDB(t)
	alice := createUser(t, conn, "alice")
	bob := createUser(t, conn, "bob")
	repo := NewFriendshipRepo(conn)
	ctx := context.Background()

	req, err := repo.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = repo.Accept(ctx, req.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Remove(ctx, bob.ID, alice.ID))

	status, err := repo.CheckRelationship(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RelationNone, status)

	// With the history cleared either side can start over.
	fresh, err := repo.SendRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, fresh.Status)

	err = repo.Remove(ctx, bob.ID, alice.ID)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestListReceivedAndSentShowPendingOnly(t *testing.T) {
	conn := newTestDB(t)
	alice := createUser(t, conn, "alice")
	bob := createUser(t, conn, "bob")
	carol := createUser(t, conn, "carol")
	repo := NewFriendshipRepo(conn)
	ctx := context.Background()

	reqFromAlice, err := repo.SendRequest(ctx, alice.ID, carol.ID)
	require.NoError(t, err)
	reqFromBob, err := repo.SendRequest(ctx, bob.ID, carol.ID)
	require.NoError(t, err)

	_, err = repo.Accept(ctx, reqFromBob.ID, carol.ID)
	require.NoError(t, err)

	received, err := repo.ListReceived(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, reqFromAlice.ID, received[0].ID)

	sent, err := repo.ListSent(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sent, 1)

	sent, err = repo.ListSent(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, sent)
}
