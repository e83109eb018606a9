// File: internal/rights/rights.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package rights persists the five per-(user, room) chat grants: kick, ban,
// grant, rename and password-change. A missing row reads as all-false,
// matching the behavior of a freshly provisioned room.
package rights

// Record is one user's grants in one room.
type Record struct {
	UserID   int64  `json:"-"`
	RoomName string `json:"-"`
	Kick     bool   `json:"kick"`
	Ban      bool   `json:"ban"`
	Grant    bool   `json:"grant"`
	Rename   bool   `json:"rename"`
	Password bool   `json:"password"`
}

// GrantAll flips every right on, the way room creators are provisioned.
func (r *Record) GrantAll() {
	r.Kick = true
	r.Ban = true
	r.Grant = true
	r.Rename = true
	r.Password = true
}

// Set flips one named right. Unknown names report false.
func (r *Record) Set(name string, value bool) bool {
	switch name {
	case "kick":
		r.Kick = value
	case "ban":
		r.Ban = value
	case "grant":
		r.Grant = value
	case "rename":
		r.Rename = value
	case "password":
		r.Password = value
	default:
		return false
	}
	return true
}

// Store is the chat-rights persistence contract.
type Store interface {
	// Load returns the rights row for (userID, room); a zero Record when no
	// row exists.
	Load(userID int64, room string) (*Record, error)

	// Save upserts a rights row.
	Save(rec *Record) error

	// RenameRoom repoints every row of a room to a new name.
	RenameRoom(oldName, newName string) error

	// AddRoomRow seeds a zero-rights row for every known user of a new room.
	AddRoomRow(room string) error

	// RemoveRoomRow drops all rows for a room.
	RemoveRoomRow(room string) error
}
