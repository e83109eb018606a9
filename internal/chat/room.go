// File: internal/chat/room.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package chat

import (
	"fmt"
	"slices"
	"time"

	"github.com/momentics/chatwire/internal/chat/historic"
	"github.com/momentics/chatwire/internal/rights"
)

// room is the live state of one chat room. Rooms are loaded on first use
// and evicted when the last member leaves; the name stays in the index.
type room struct {
	name         string
	roomType     string
	password     string
	creator      string
	creationDate time.Time
	maxUsers     int
	banned       []historic.Ban

	// members maps connection IDs to pseudonyms; rights holds the panel of
	// currently connected registered members keyed by pseudonym.
	members map[string]string
	rights  map[string]*rights.Record

	part    int
	entries []historic.Entry
}

func (r *room) snapshot() *historic.Snapshot {
	return &historic.Snapshot{
		Type:         r.roomType,
		Password:     r.password,
		Creator:      r.creator,
		CreationDate: r.creationDate,
		MaxUsers:     r.maxUsers,
		UsersBanned:  r.banned,
	}
}

func (r *room) pseudonyms() []string {
	names := make([]string, 0, len(r.members))
	for _, p := range r.members {
		names = append(names, p)
	}
	slices.Sort(names)
	return names
}

// connByPseudonym resolves a member pseudonym to its connection ID.
func (r *room) connByPseudonym(pseudonym string) (string, bool) {
	for connID, p := range r.members {
		if p == pseudonym {
			return connID, true
		}
	}
	return "", false
}

func (r *room) isRegistered(pseudonym string) bool {
	_, ok := r.rights[pseudonym]
	return ok
}

func (r *room) isBannedIP(ip string) bool {
	for _, b := range r.banned {
		if b.IP == ip {
			return true
		}
	}
	return false
}

func (r *room) allowed(roomPassword string) bool {
	return r.roomType != "private" || r.password == roomPassword
}

// liveRoom returns the live state of a known room, loading the snapshot and
// the current historic page from disk on first use.
func (s *Service) liveRoom(name string) (*room, error) {
	if r, ok := s.rooms[name]; ok {
		return r, nil
	}
	snap, err := s.store.LoadRoom(name)
	if err != nil {
		return nil, err
	}
	part, err := s.store.LastPart(name)
	if err != nil {
		return nil, err
	}
	r := &room{
		name:         name,
		roomType:     snap.Type,
		password:     snap.Password,
		creator:      snap.Creator,
		creationDate: snap.CreationDate,
		maxUsers:     snap.MaxUsers,
		banned:       snap.UsersBanned,
		members:      make(map[string]string),
		rights:       make(map[string]*rights.Record),
		part:         part,
	}
	if page, err := s.store.LoadPage(name, part); err == nil {
		r.entries = page.Conversations
	} else {
		s.log.Warn().Err(err).Str("room", name).Msg("historic page unreadable, starting empty")
	}
	s.rooms[name] = r
	return r, nil
}

// joinRoom adds a member and notifies the whole room: rights panels when the
// joiner is registered, the member list, and a public server notice.
func (s *Service) joinRoom(r *room, connID, pseudonym string) {
	r.members[connID] = pseudonym
	s.connRooms[connID] = append(s.connRooms[connID], r.name)

	registered := r.isRegistered(pseudonym)
	for memberID := range r.members {
		if registered {
			s.pushRights(memberID, r)
		}
		s.pushMembers(memberID, r)
		s.serverMessage(memberID, r.name, fmt.Sprintf(`User "%s" connected`, pseudonym))
	}
	s.log.Info().Str("room", r.name).Str("pseudonym", pseudonym).Msg("user joined")
}

// leaveRoom removes a member. The last leaver flushes the historic page and
// the snapshot to disk and evicts the room from memory.
func (s *Service) leaveRoom(r *room, connID string) {
	pseudonym, ok := r.members[connID]
	if !ok {
		return
	}
	delete(r.members, connID)
	registered := r.isRegistered(pseudonym)
	delete(r.rights, pseudonym)

	if len(r.members) == 0 {
		s.flushRoom(r)
		delete(s.rooms, r.name)
		return
	}
	for memberID := range r.members {
		if registered {
			s.pushRights(memberID, r)
		}
		s.pushMembers(memberID, r)
		s.serverMessage(memberID, r.name, fmt.Sprintf(`User "%s" disconnected`, pseudonym))
	}
}

func (s *Service) flushRoom(r *room) {
	if err := s.store.SavePage(r.name, &historic.Page{Part: r.part, Conversations: r.entries}); err != nil {
		s.log.Error().Err(err).Str("room", r.name).Msg("historic flush failed")
	}
	if err := s.store.SaveRoom(r.name, r.snapshot()); err != nil {
		s.log.Error().Err(err).Str("room", r.name).Msg("snapshot flush failed")
	}
}

// rotateIfNeeded persists the full current page and opens the next one.
// Called before a message is delivered so a storage failure rejects the
// message instead of losing it.
func (s *Service) rotateIfNeeded(r *room) error {
	if len(r.entries) < s.cfg.MaxMessagesPerFile {
		return nil
	}
	if err := s.store.SavePage(r.name, &historic.Page{Part: r.part, Conversations: r.entries}); err != nil {
		return err
	}
	if err := s.store.SetLastPart(r.name, r.part+1); err != nil {
		return err
	}
	r.part++
	r.entries = nil
	return nil
}

// filteredEntry is the client-facing shape of one historic line.
type filteredEntry struct {
	Pseudonym string `json:"pseudonym"`
	Time      string `json:"time"`
	Text      string `json:"text"`
	Type      string `json:"type"`
}

// filterConversations hides private lines from everyone but their author.
// Public lines pass through for any viewer.
func filterConversations(entries []historic.Entry, viewer string) []filteredEntry {
	filtered := make([]filteredEntry, 0, len(entries))
	for _, e := range entries {
		out := filteredEntry{Pseudonym: e.From, Time: e.Time, Text: e.Text}
		if e.To == "all" {
			out.Type = "public"
			filtered = append(filtered, out)
		} else if e.From == viewer {
			out.Type = "private"
			filtered = append(filtered, out)
		}
	}
	return filtered
}

func (s *Service) pushMembers(connID string, r *room) {
	s.sendTo(connID, map[string]any{
		"service":    s.cfg.ServiceName,
		"action":     "updateRoomUsers",
		"roomName":   r.name,
		"pseudonyms": r.pseudonyms(),
	})
}

func (s *Service) pushRights(connID string, r *room) {
	s.sendTo(connID, map[string]any{
		"service":     s.cfg.ServiceName,
		"action":      "updateRoomUsersRights",
		"roomName":    r.name,
		"usersRights": r.rights,
	})
}

func (s *Service) pushBanned(connID string, r *room) {
	s.sendTo(connID, map[string]any{
		"service":     s.cfg.ServiceName,
		"action":      "updateRoomUsersBanned",
		"roomName":    r.name,
		"usersBanned": r.banned,
	})
}

// deliverMessage pushes one conversation line to a member.
func (s *Service) deliverMessage(connID, fromPseudonym, roomName, msgType, text, when string) {
	s.sendTo(connID, map[string]any{
		"service":   s.cfg.ServiceName,
		"action":    "recieveMessage",
		"pseudonym": fromPseudonym,
		"time":      when,
		"roomName":  roomName,
		"type":      msgType,
		"text":      text,
	})
}

// serverMessage pushes one public line authored by the server.
func (s *Service) serverMessage(connID, roomName, text string) {
	s.deliverMessage(connID, "SERVER", roomName, "public", text, s.timestamp())
}

// serverMessageToRoom broadcasts one public server line to a whole room.
func (s *Service) serverMessageToRoom(r *room, text string) {
	for memberID := range r.members {
		s.serverMessage(memberID, r.name, text)
	}
}
