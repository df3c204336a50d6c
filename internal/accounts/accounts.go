// Package accounts provides durable storage for player profiles
// (username/password identifiers only — sessions and world state stay
// in-memory per spec.md's Non-goals). Backed by modernc.org/sqlite, a
// pure-Go SQLite driver, so the server needs no cgo toolchain to persist
// accounts across restarts.
package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrUsernameTaken is returned by CreateAccount when the username is
// already registered.
var ErrUsernameTaken = errors.New("accounts: username already registered")

// ErrNotFound is returned when no account matches the lookup.
var ErrNotFound = errors.New("accounts: not found")

// Account is a durably stored player identity.
type Account struct {
	ID           string
	Username     string
	PasswordHash []byte
}

// DB wraps a sqlite-backed accounts table.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures the accounts table exists.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("accounts: open %s: %w", path, err)
	}
	// modernc.org/sqlite does not support concurrent writers well;
	// serialize all access through a single connection.
	sqlDB.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash BLOB NOT NULL
);`
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("accounts: migrate schema: %w", err)
	}
	return &DB{sql: sqlDB}, nil
}

func (db *DB) Close() error {
	return db.sql.Close()
}

// CreateAccount inserts a new account with a freshly generated id.
func (db *DB) CreateAccount(username string, passwordHash []byte) (*Account, error) {
	id := uuid.NewString()
	_, err := db.sql.Exec(
		`INSERT INTO accounts (id, username, password_hash) VALUES (?, ?, ?)`,
		id, username, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("accounts: create account: %w", err)
	}
	return &Account{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

// GetByUsername looks up an account by username.
func (db *DB) GetByUsername(username string) (*Account, error) {
	row := db.sql.QueryRow(`SELECT id, username, password_hash FROM accounts WHERE username = ?`, username)
	var a Account
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("accounts: get by username: %w", err)
	}
	return &a, nil
}

// isUniqueViolation reports whether err represents a SQLite UNIQUE
// constraint failure. modernc.org/sqlite surfaces these as plain errors
// whose text names the constraint, so a substring check is the portable
// option across driver versions.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
