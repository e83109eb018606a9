// File: internal/rights/sqlite.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package rights

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// "grant" is an SQL keyword, so every column list quotes the right columns.
const rightsSchema = `
CREATE TABLE IF NOT EXISTS users_chat_rights (
	user_id    INTEGER NOT NULL,
	room_name  TEXT NOT NULL,
	"kick"     INTEGER NOT NULL DEFAULT 0,
	"ban"      INTEGER NOT NULL DEFAULT 0,
	"grant"    INTEGER NOT NULL DEFAULT 0,
	"rename"   INTEGER NOT NULL DEFAULT 0,
	"password" INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, room_name)
);`

// SQLiteStore implements Store on the users_chat_rights table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore ensures the schema and returns a store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(rightsSchema); err != nil {
		return nil, fmt.Errorf("ensure rights schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load fetches one rights row; absent rows read as all-false.
func (s *SQLiteStore) Load(userID int64, room string) (*Record, error) {
	rec := &Record{UserID: userID, RoomName: room}
	var kick, ban, grant, rename, password int
	row := s.db.QueryRow(
		`SELECT "kick", "ban", "grant", "rename", "password" FROM users_chat_rights WHERE user_id = ? AND room_name = ?`,
		userID, room)
	err := row.Scan(&kick, &ban, &grant, &rename, &password)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rights (%d, %q): %w", userID, room, err)
	}
	rec.Kick = kick == 1
	rec.Ban = ban == 1
	rec.Grant = grant == 1
	rec.Rename = rename == 1
	rec.Password = password == 1
	return rec, nil
}

// Save upserts a rights row.
func (s *SQLiteStore) Save(rec *Record) error {
	_, err := s.db.Exec(
		`INSERT INTO users_chat_rights (user_id, room_name, "kick", "ban", "grant", "rename", "password")
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, room_name) DO UPDATE SET
		 "kick" = excluded."kick", "ban" = excluded."ban", "grant" = excluded."grant",
		 "rename" = excluded."rename", "password" = excluded."password"`,
		rec.UserID, rec.RoomName,
		boolToInt(rec.Kick), boolToInt(rec.Ban), boolToInt(rec.Grant),
		boolToInt(rec.Rename), boolToInt(rec.Password))
	if err != nil {
		return fmt.Errorf("save rights (%d, %q): %w", rec.UserID, rec.RoomName, err)
	}
	return nil
}

// RenameRoom repoints all rows of a room.
func (s *SQLiteStore) RenameRoom(oldName, newName string) error {
	if _, err := s.db.Exec(
		`UPDATE users_chat_rights SET room_name = ? WHERE room_name = ?`, newName, oldName); err != nil {
		return fmt.Errorf("rename rights rows %q -> %q: %w", oldName, newName, err)
	}
	return nil
}

// AddRoomRow seeds a zero-rights row for every user.
func (s *SQLiteStore) AddRoomRow(room string) error {
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO users_chat_rights (user_id, room_name) SELECT id, ? FROM users`, room); err != nil {
		return fmt.Errorf("seed rights rows for %q: %w", room, err)
	}
	return nil
}

// RemoveRoomRow drops all rows for a room.
func (s *SQLiteStore) RemoveRoomRow(room string) error {
	if _, err := s.db.Exec(
		`DELETE FROM users_chat_rights WHERE room_name = ?`, room); err != nil {
		return fmt.Errorf("remove rights rows for %q: %w", room, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
