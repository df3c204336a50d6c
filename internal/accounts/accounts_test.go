package accounts

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("unexpected error opening db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndGetAccount(t *testing.T) {
	db := openTestDB(t)

	acc, err := db.CreateAccount("alice", []byte("hashed"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.ID == "" {
		t.Fatal("expected a generated id")
	}

	got, err := db.GetByUsername("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != acc.ID || got.Username != "alice" {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestCreateAccountDuplicateUsername(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.CreateAccount("alice", []byte("hashed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := db.CreateAccount("alice", []byte("other")); err != ErrUsernameTaken {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestGetByUsernameNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetByUsername("nobody"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
