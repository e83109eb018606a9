// File: internal/chat/historic/store.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package historic persists room snapshots and paginated conversation
// history under a configured root directory:
//
//	<root>/rooms_name               JSON array of every known room name
//	<root>/<room>/room.json         room metadata snapshot (no live state)
//	<root>/<room>/historic-part-N.json  one immutable page of entries
//	<root>/<room>/historic-last-part    plain integer, highest page number
//
// Pages are append-only: the room engine buffers entries in memory and the
// store only ever sees whole pages at rotation or eviction time.
package historic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Entry is one immutable conversation line.
type Entry struct {
	Text string `json:"text"`
	Time string `json:"time"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Page is one persisted batch of entries.
type Page struct {
	Part          int     `json:"part"`
	Conversations []Entry `json:"conversations"`
}

// Ban is one ban-list record, keyed by IP.
type Ban struct {
	IP        string `json:"ip"`
	Pseudonym string `json:"pseudonym"`
	Admin     string `json:"admin"`
	Reason    string `json:"reason"`
	Date      string `json:"date"`
}

// Snapshot is the persisted shape of a room: everything except live
// sockets, pseudonyms and the in-memory historic buffer.
type Snapshot struct {
	Type         string    `json:"type"`
	Password     string    `json:"password"`
	Creator      string    `json:"creator,omitempty"`
	CreationDate time.Time `json:"creationDate"`
	MaxUsers     int       `json:"maxUsers"`
	UsersBanned  []Ban     `json:"usersBanned"`
}

// Store reads and writes the on-disk layout.
type Store struct {
	root string
}

// NewStore ensures the root directory and the room-name index exist.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create historic root %s: %w", root, err)
	}
	s := &Store{root: root}
	if _, err := os.Stat(s.namesPath()); os.IsNotExist(err) {
		if err := s.SaveRoomNames(nil); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) namesPath() string {
	return filepath.Join(s.root, "rooms_name")
}

func (s *Store) roomDir(room string) string {
	return filepath.Join(s.root, room)
}

// RoomNames reads the global room-name index.
func (s *Store) RoomNames() ([]string, error) {
	raw, err := os.ReadFile(s.namesPath())
	if err != nil {
		return nil, fmt.Errorf("read rooms_name: %w", err)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decode rooms_name: %w", err)
	}
	return names, nil
}

// SaveRoomNames rewrites the global room-name index.
func (s *Store) SaveRoomNames(names []string) error {
	if names == nil {
		names = []string{}
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode rooms_name: %w", err)
	}
	if err := os.WriteFile(s.namesPath(), raw, 0o644); err != nil {
		return fmt.Errorf("write rooms_name: %w", err)
	}
	return nil
}

// CreateRoom provisions a room directory with its snapshot, an empty page 0
// and a zero last-part counter.
func (s *Store) CreateRoom(room string, snap *Snapshot) error {
	if err := os.MkdirAll(s.roomDir(room), 0o755); err != nil {
		return fmt.Errorf("create room dir %q: %w", room, err)
	}
	if err := s.SaveRoom(room, snap); err != nil {
		return err
	}
	if err := s.SavePage(room, &Page{Part: 0, Conversations: []Entry{}}); err != nil {
		return err
	}
	return s.SetLastPart(room, 0)
}

// SaveRoom writes the room metadata snapshot.
func (s *Store) SaveRoom(room string, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode room %q: %w", room, err)
	}
	path := filepath.Join(s.roomDir(room), "room.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write room %q: %w", room, err)
	}
	return nil
}

// LoadRoom reads the room metadata snapshot.
func (s *Store) LoadRoom(room string) (*Snapshot, error) {
	raw, err := os.ReadFile(filepath.Join(s.roomDir(room), "room.json"))
	if err != nil {
		return nil, fmt.Errorf("read room %q: %w", room, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode room %q: %w", room, err)
	}
	return &snap, nil
}

// SavePage writes one historic page.
func (s *Store) SavePage(room string, page *Page) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode page %d of %q: %w", page.Part, room, err)
	}
	path := filepath.Join(s.roomDir(room), fmt.Sprintf("historic-part-%d.json", page.Part))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write page %d of %q: %w", page.Part, room, err)
	}
	return nil
}

// LoadPage reads one historic page.
func (s *Store) LoadPage(room string, part int) (*Page, error) {
	path := filepath.Join(s.roomDir(room), fmt.Sprintf("historic-part-%d.json", part))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page %d of %q: %w", part, room, err)
	}
	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode page %d of %q: %w", part, room, err)
	}
	return &page, nil
}

// LastPart reads the highest page number of a room.
func (s *Store) LastPart(room string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(s.roomDir(room), "historic-last-part"))
	if err != nil {
		return 0, fmt.Errorf("read last part of %q: %w", room, err)
	}
	part, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("decode last part of %q: %w", room, err)
	}
	return part, nil
}

// SetLastPart persists the highest page number of a room.
func (s *Store) SetLastPart(room string, part int) error {
	path := filepath.Join(s.roomDir(room), "historic-last-part")
	if err := os.WriteFile(path, []byte(strconv.Itoa(part)), 0o644); err != nil {
		return fmt.Errorf("write last part of %q: %w", room, err)
	}
	return nil
}

// RenameRoom relocates a room's storage directory.
func (s *Store) RenameRoom(oldName, newName string) error {
	if err := os.Rename(s.roomDir(oldName), s.roomDir(newName)); err != nil {
		return fmt.Errorf("rename room dir %q -> %q: %w", oldName, newName, err)
	}
	return nil
}
