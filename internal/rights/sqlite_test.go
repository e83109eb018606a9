package rights

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newTestStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	// The seed query joins against the users table.
	if _, err := db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, pseudonym TEXT)`); err != nil {
		t.Fatal(err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return s, db
}

func TestLoadMissingRowIsZero(t *testing.T) {
	s, _ := newTestStore(t)
	rec, err := s.Load(7, "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Kick || rec.Ban || rec.Grant || rec.Rename || rec.Password {
		t.Errorf("missing row loaded non-zero: %+v", rec)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s, _ := newTestStore(t)
	rec := &Record{UserID: 1, RoomName: "lobby"}
	rec.GrantAll()
	if err := s.Save(rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(1, "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Kick || !got.Ban || !got.Grant || !got.Rename || !got.Password {
		t.Errorf("loaded %+v, want all granted", got)
	}

	got.Set("kick", false)
	if err := s.Save(got); err != nil {
		t.Fatal(err)
	}
	again, err := s.Load(1, "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if again.Kick || !again.Ban {
		t.Errorf("updated row = %+v", again)
	}
}

func TestRenameRoom(t *testing.T) {
	s, _ := newTestStore(t)
	rec := &Record{UserID: 1, RoomName: "old", Ban: true}
	if err := s.Save(rec); err != nil {
		t.Fatal(err)
	}
	if err := s.RenameRoom("old", "new"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(1, "new")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Ban {
		t.Error("rights row did not follow the rename")
	}
}

func TestAddRoomRowSeedsAllUsers(t *testing.T) {
	s, db := newTestStore(t)
	if _, err := db.Exec(`INSERT INTO users (id, pseudonym) VALUES (1, 'a'), (2, 'b')`); err != nil {
		t.Fatal(err)
	}
	if err := s.AddRoomRow("lobby"); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(1) FROM users_chat_rights WHERE room_name = 'lobby'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("seeded %d rows, want 2", n)
	}

	if err := s.RemoveRoomRow("lobby"); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow(`SELECT COUNT(1) FROM users_chat_rights`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d rows remain after removal", n)
	}
}

func TestRecordSetUnknownRight(t *testing.T) {
	var rec Record
	if rec.Set("fly", true) {
		t.Error("unknown right accepted")
	}
	if !rec.Set("rename", true) || !rec.Rename {
		t.Error("rename right not set")
	}
}
