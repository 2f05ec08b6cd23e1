package db

import "testing"

// A plain :memory: DSN gives every pooled connection its own database, so
// the tests use named shared-cache databases instead.

func TestConnectAppliesSchema(t *testing.T) {
	database, err := Connect("sqlite3", "file:connect_schema?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer database.Close()

	// Connect runs the migrations itself; the tables must exist without
	// a separate Migrate call.
	var count int
	if err := database.Get(&count, "SELECT COUNT(*) FROM users"); err != nil {
		t.Fatalf("users table missing after connect: %v", err)
	}
	if err := database.Get(&count, "SELECT COUNT(*) FROM friendships"); err != nil {
		t.Fatalf("friendships table missing after connect: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database, err := Connect("sqlite3", "file:migrate_twice?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
