package repositories

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/db"
	"messaging-service/internal/models"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A second pooled connection would see its own empty in-memory database.
	conn.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func createUser(t *testing.T, conn *sqlx.DB, username string) models.User {
	t.Helper()
	repo := NewUserRepo(conn)
	user, err := repo.Create(context.Background(), models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "not-a-real-hash",
		DisplayName:  username,
	})
	require.NoError(t, err)
	return user
}
