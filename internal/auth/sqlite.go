// File: internal/auth/sqlite.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package auth

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	login           TEXT NOT NULL UNIQUE,
	password_hash   TEXT NOT NULL,
	pseudonym       TEXT NOT NULL UNIQUE,
	chat_admin      INTEGER NOT NULL DEFAULT 0,
	websocket_admin INTEGER NOT NULL DEFAULT 0
);`

// SQLiteProvider implements Provider on top of a sqlite users table.
type SQLiteProvider struct {
	db *sql.DB
}

// OpenDB opens (or creates) the sqlite database file shared by the auth
// provider and the rights store.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// NewSQLiteProvider ensures the users schema and returns a provider.
func NewSQLiteProvider(db *sql.DB) (*SQLiteProvider, error) {
	if _, err := db.Exec(usersSchema); err != nil {
		return nil, fmt.Errorf("ensure users schema: %w", err)
	}
	return &SQLiteProvider{db: db}, nil
}

// Authenticate validates login/password against the bcrypt hash on record.
func (p *SQLiteProvider) Authenticate(login, password string) (*Identity, error) {
	var (
		id        Identity
		hash      string
		chatAdmin int
		wsAdmin   int
	)
	row := p.db.QueryRow(
		`SELECT id, login, password_hash, pseudonym, chat_admin, websocket_admin FROM users WHERE login = ?`, login)
	if err := row.Scan(&id.ID, &id.Login, &hash, &id.Pseudonym, &chatAdmin, &wsAdmin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user %q: %w", login, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	id.ChatAdmin = chatAdmin == 1
	id.WebSocketAdmin = wsAdmin == 1
	return &id, nil
}

// PseudonymExists reports whether a registered account owns the pseudonym.
func (p *SQLiteProvider) PseudonymExists(pseudonym string) (bool, error) {
	var n int
	row := p.db.QueryRow(`SELECT COUNT(1) FROM users WHERE pseudonym = ?`, pseudonym)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("query pseudonym %q: %w", pseudonym, err)
	}
	return n > 0, nil
}

// UserIDByPseudonym resolves the user id behind a pseudonym.
func (p *SQLiteProvider) UserIDByPseudonym(pseudonym string) (int64, error) {
	var id int64
	row := p.db.QueryRow(`SELECT id FROM users WHERE pseudonym = ?`, pseudonym)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("no user with pseudonym %q", pseudonym)
		}
		return 0, fmt.Errorf("query pseudonym %q: %w", pseudonym, err)
	}
	return id, nil
}

// CreateUser inserts a user with a bcrypt-hashed password. Used by
// provisioning and tests.
func (p *SQLiteProvider) CreateUser(login, password, pseudonym string, chatAdmin, wsAdmin bool) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	res, err := p.db.Exec(
		`INSERT INTO users (login, password_hash, pseudonym, chat_admin, websocket_admin) VALUES (?, ?, ?, ?, ?)`,
		login, string(hash), pseudonym, boolToInt(chatAdmin), boolToInt(wsAdmin))
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", login, err)
	}
	return res.LastInsertId()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
