package historic

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRoomNamesSurviveReopen(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root)
	if err != nil {
		t.Fatal(err)
	}
	names, err := s.RoomNames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("fresh store has names %v", names)
	}

	if err := s.SaveRoomNames([]string{"default", "lobby"}); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(root)
	if err != nil {
		t.Fatal(err)
	}
	names, err = reopened.RoomNames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "default" || names[1] != "lobby" {
		t.Errorf("names after reopen = %v", names)
	}
}

func TestCreateRoomLayout(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	snap := &Snapshot{Type: "public", MaxUsers: 10, CreationDate: time.Now(), UsersBanned: []Ban{}}
	if err := s.CreateRoom("lobby", snap); err != nil {
		t.Fatal(err)
	}

	for _, f := range []string{"room.json", "historic-part-0.json", "historic-last-part"} {
		if _, err := os.Stat(filepath.Join(s.Root(), "lobby", f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}

	part, err := s.LastPart("lobby")
	if err != nil || part != 0 {
		t.Errorf("LastPart = %d, %v", part, err)
	}
	page, err := s.LoadPage("lobby", 0)
	if err != nil || len(page.Conversations) != 0 {
		t.Errorf("page 0 = %+v, %v", page, err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	snap := &Snapshot{
		Type:         "private",
		Password:     "hunter2",
		Creator:      "alice@example.com",
		CreationDate: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		MaxUsers:     5,
		UsersBanned:  []Ban{{IP: "10.0.0.9", Pseudonym: "mallory", Admin: "Alice", Reason: "spam", Date: "2025-03-01 12:30:00"}},
	}
	if err := s.CreateRoom("vault", snap); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadRoom("vault")
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "private" || got.Password != "hunter2" || got.MaxUsers != 5 {
		t.Errorf("snapshot = %+v", got)
	}
	if len(got.UsersBanned) != 1 || got.UsersBanned[0].IP != "10.0.0.9" {
		t.Errorf("bans = %+v", got.UsersBanned)
	}
}

func TestPagesAndCounter(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateRoom("lobby", &Snapshot{Type: "public", MaxUsers: 10}); err != nil {
		t.Fatal(err)
	}

	page := &Page{Part: 1, Conversations: []Entry{
		{Text: "hi", Time: "2025-03-01 10:00:00", From: "bob", To: "all"},
		{Text: "psst", Time: "2025-03-01 10:00:05", From: "bob", To: "alice"},
	}}
	if err := s.SavePage("lobby", page); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastPart("lobby", 1); err != nil {
		t.Fatal(err)
	}

	part, err := s.LastPart("lobby")
	if err != nil || part != 1 {
		t.Fatalf("LastPart = %d, %v", part, err)
	}
	got, err := s.LoadPage("lobby", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Conversations) != 2 || got.Conversations[1].To != "alice" {
		t.Errorf("page = %+v", got)
	}
}

func TestRenameRoomRelocatesStorage(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateRoom("old", &Snapshot{Type: "public", MaxUsers: 3}); err != nil {
		t.Fatal(err)
	}
	if err := s.RenameRoom("old", "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadRoom("new"); err != nil {
		t.Errorf("snapshot unreachable under new name: %v", err)
	}
	if _, err := s.LoadRoom("old"); err == nil {
		t.Error("snapshot still reachable under old name")
	}
}
