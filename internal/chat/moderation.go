// File: internal/chat/moderation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package chat

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/momentics/chatwire/internal/auth"
	"github.com/momentics/chatwire/internal/chat/historic"
	"github.com/momentics/chatwire/internal/server"
)

// moderationRequest is the common payload of kickUser, banUser and
// unbanUser.
type moderationRequest struct {
	User      credentials `json:"user"`
	RoomName  string      `json:"roomName"`
	Pseudonym string      `json:"pseudonym"`
	Reason    string      `json:"reason"`
}

func parseModeration(raw []byte) moderationRequest {
	var req moderationRequest
	json.Unmarshal(raw, &req)
	req.RoomName = strings.TrimSpace(req.RoomName)
	req.Pseudonym = strings.TrimSpace(req.Pseudonym)
	req.Reason = strings.TrimSpace(req.Reason)
	return req
}

// authenticateModerator resolves the caller identity or nil when the
// credentials are absent or wrong.
func (s *Service) authenticateModerator(creds credentials) *auth.Identity {
	if !creds.provided() {
		return nil
	}
	ident, err := s.auth.Authenticate(*creds.Email, *creds.Password)
	if err != nil {
		return nil
	}
	return ident
}

// hasRight reports whether the identity may perform a moderation action in
// a room: platform chat admins always can, others need the named per-room
// right.
func (s *Service) hasRight(ident *auth.Identity, roomName, rightName string) bool {
	if ident.ChatAdmin {
		return true
	}
	rec, err := s.rights.Load(ident.ID, roomName)
	if err != nil {
		s.log.Error().Err(err).Str("room", roomName).Msg("rights load failed")
		return false
	}
	switch rightName {
	case "kick":
		return rec.Kick
	case "ban":
		return rec.Ban
	case "grant":
		return rec.Grant
	case "rename":
		return rec.Rename
	case "password":
		return rec.Password
	}
	return false
}

// callerPseudonym names the acting moderator inside a room, falling back to
// the account pseudonym when the moderator is not a member.
func callerPseudonym(r *room, connID string, ident *auth.Identity) string {
	if p, ok := r.members[connID]; ok {
		return p
	}
	return ident.Pseudonym
}

func (s *Service) kickUser(conn server.Conn, raw []byte) {
	req := parseModeration(raw)
	success := false
	var message string

	ident := s.authenticateModerator(req.User)
	switch {
	case ident == nil:
		message = "Authentication failed"
	case !s.hasRight(ident, req.RoomName, "kick"):
		message = "You do not have the right to kick a user on this room"
	default:
		r, live := s.rooms[req.RoomName]
		var targetID string
		var found bool
		if live {
			targetID, found = r.connByPseudonym(req.Pseudonym)
		}
		if !found {
			message = fmt.Sprintf(`The user "%s" cannot be found in the room "%s"`, req.Pseudonym, req.RoomName)
			break
		}
		reason := ""
		if req.Reason != "" {
			reason = fmt.Sprintf(" because %s", req.Reason)
		}
		admin := callerPseudonym(r, conn.ID(), ident)

		s.sendTo(targetID, map[string]any{
			"service":  s.cfg.ServiceName,
			"action":   "getKicked",
			"text":     fmt.Sprintf(`You got kicked from the room by "%s"`, admin) + reason,
			"roomName": req.RoomName,
		})
		s.removeConnFromAllRooms(targetID)
		s.serverMessageToRoom(r, fmt.Sprintf(`The user "%s" got kicked by "%s"`, req.Pseudonym, admin)+reason)

		success = true
		message = fmt.Sprintf(`You kicked "%s" from the room "%s"`, req.Pseudonym, req.RoomName) + reason
		s.log.Info().Str("room", req.RoomName).Str("target", req.Pseudonym).Str("admin", admin).Msg("user kicked")
	}

	s.reply(conn, map[string]any{
		"action":   "kickUser",
		"success":  success,
		"text":     message,
		"roomName": req.RoomName,
	})
}

func (s *Service) banUser(conn server.Conn, raw []byte) {
	req := parseModeration(raw)
	success := false
	var message string

	ident := s.authenticateModerator(req.User)
	switch {
	case ident == nil:
		message = "Authentication failed"
	case !s.hasRight(ident, req.RoomName, "ban"):
		message = "You do not have the right to ban a user on this room"
	default:
		r, live := s.rooms[req.RoomName]
		var targetID string
		var found bool
		if live {
			targetID, found = r.connByPseudonym(req.Pseudonym)
		}
		if !found {
			message = fmt.Sprintf(`The user "%s" cannot be found in the room "%s"`, req.Pseudonym, req.RoomName)
			break
		}
		reason := ""
		if req.Reason != "" {
			reason = fmt.Sprintf(" for the reason %s", req.Reason)
		}
		admin := callerPseudonym(r, conn.ID(), ident)

		s.sendTo(targetID, map[string]any{
			"service":  s.cfg.ServiceName,
			"action":   "getBanned",
			"text":     fmt.Sprintf(`You got banned from the room by "%s"`, admin) + reason,
			"roomName": req.RoomName,
		})
		r.banned = append(r.banned, historic.Ban{
			IP:        s.push.IP(targetID),
			Pseudonym: req.Pseudonym,
			Admin:     admin,
			Reason:    req.Reason,
			Date:      s.timestamp(),
		})
		if err := s.store.SaveRoom(r.name, r.snapshot()); err != nil {
			s.log.Error().Err(err).Str("room", r.name).Msg("ban list save failed")
		}
		s.removeConnFromAllRooms(targetID)

		for memberID, pseudonym := range r.members {
			if r.isRegistered(pseudonym) {
				s.pushBanned(memberID, r)
			}
		}
		s.serverMessageToRoom(r, fmt.Sprintf(`The user "%s" got banned by "%s"`, req.Pseudonym, admin)+reason)

		success = true
		message = fmt.Sprintf(`You banned "%s" from the room "%s"`, req.Pseudonym, req.RoomName) + reason
		s.log.Info().Str("room", req.RoomName).Str("target", req.Pseudonym).Str("admin", admin).Msg("user banned")
	}

	s.reply(conn, map[string]any{
		"action":   "banUser",
		"success":  success,
		"text":     message,
		"roomName": req.RoomName,
	})
}

func (s *Service) unbanUser(conn server.Conn, raw []byte) {
	req := parseModeration(raw)
	success := false
	var message string

	ident := s.authenticateModerator(req.User)
	switch {
	case ident == nil:
		message = "Authentication failed"
	case req.RoomName == "":
		message = "The room name is required"
	case !slices.Contains(s.roomNames, req.RoomName):
		message = fmt.Sprintf(`The chat room name "%s" does not exists`, req.RoomName)
	case !s.hasRight(ident, req.RoomName, "ban"):
		message = "You do not have the right to ban a user on this room"
	default:
		r, err := s.liveRoom(req.RoomName)
		if err != nil {
			s.log.Error().Err(err).Str("room", req.RoomName).Msg("room load failed")
			message = "The room could not be loaded"
			break
		}
		before := len(r.banned)
		r.banned = slices.DeleteFunc(r.banned, func(b historic.Ban) bool {
			return b.Pseudonym == req.Pseudonym
		})
		if len(r.banned) == before {
			message = fmt.Sprintf(`The user "%s" is not banned from the room "%s"`, req.Pseudonym, req.RoomName)
			break
		}
		if err := s.store.SaveRoom(r.name, r.snapshot()); err != nil {
			s.log.Error().Err(err).Str("room", r.name).Msg("ban list save failed")
			message = "The ban list could not be saved"
			break
		}
		admin := callerPseudonym(r, conn.ID(), ident)
		for memberID, pseudonym := range r.members {
			if r.isRegistered(pseudonym) {
				s.pushBanned(memberID, r)
			}
		}
		s.serverMessageToRoom(r, fmt.Sprintf(`The user "%s" got unbanned by "%s"`, req.Pseudonym, admin))

		success = true
		message = fmt.Sprintf(`You unbanned "%s" from the room "%s"`, req.Pseudonym, req.RoomName)
		s.log.Info().Str("room", req.RoomName).Str("target", req.Pseudonym).Str("admin", admin).Msg("user unbanned")
	}

	s.reply(conn, map[string]any{
		"action":   "unbanUser",
		"success":  success,
		"text":     message,
		"roomName": req.RoomName,
	})
}

// removeConnFromAllRooms is the moderation-side disconnect: the target is
// evicted from every room but the socket stays open so the client can see
// the getKicked/getBanned notice and reconnect elsewhere.
func (s *Service) removeConnFromAllRooms(connID string) {
	for _, roomName := range s.connRooms[connID] {
		if r, ok := s.rooms[roomName]; ok {
			s.leaveRoom(r, connID)
		}
	}
	delete(s.connRooms, connID)
}

func (s *Service) updateRoomUserRight(conn server.Conn, raw []byte) {
	var req struct {
		User       credentials `json:"user"`
		RoomName   string      `json:"roomName"`
		Pseudonym  string      `json:"pseudonym"`
		RightName  string      `json:"rightName"`
		RightValue any         `json:"rightValue"`
	}
	json.Unmarshal(raw, &req)
	req.RoomName = strings.TrimSpace(req.RoomName)
	req.Pseudonym = strings.TrimSpace(req.Pseudonym)
	req.RightName = strings.TrimSpace(req.RightName)

	success := false
	var message string
	value := asBool(req.RightValue)

	ident := s.authenticateModerator(req.User)
	switch {
	case req.RoomName == "":
		message = "The room name is required"
	case !slices.Contains(s.roomNames, req.RoomName):
		message = fmt.Sprintf(`The chat room name "%s" does not exists`, req.RoomName)
	case ident == nil:
		message = "Authentication failed"
	case !s.hasRight(ident, req.RoomName, "grant"):
		message = "You do not have the right to grant a user right on this room"
	default:
		targetID, err := s.auth.UserIDByPseudonym(req.Pseudonym)
		if err != nil {
			message = fmt.Sprintf(`The user "%s" cannot be found`, req.Pseudonym)
			break
		}
		rec, err := s.rights.Load(targetID, req.RoomName)
		if err != nil {
			s.log.Error().Err(err).Str("room", req.RoomName).Msg("rights load failed")
			message = "The user right could not be updated"
			break
		}
		if !rec.Set(req.RightName, value) {
			message = fmt.Sprintf(`The right "%s" does not exist`, req.RightName)
			break
		}
		if err := s.rights.Save(rec); err != nil {
			s.log.Error().Err(err).Str("room", req.RoomName).Msg("rights save failed")
			message = "The user right could not be updated"
			break
		}

		r, live := s.rooms[req.RoomName]
		if live && r.isRegistered(req.Pseudonym) {
			r.rights[req.Pseudonym] = rec
			for memberID := range r.members {
				if memberID != conn.ID() {
					s.pushRights(memberID, r)
				}
			}
		}
		not := ""
		if !value {
			not = "not "
		}
		if live {
			s.serverMessageToRoom(r, fmt.Sprintf(
				"The user %s has now %sthe right to %s in the room %s",
				req.Pseudonym, not, req.RightName, req.RoomName))
		}

		success = true
		message = "User right successfully updated"
	}

	s.reply(conn, map[string]any{
		"action":   "updateRoomUserRight",
		"success":  success,
		"text":     message,
		"roomName": req.RoomName,
	})
}

func (s *Service) setRoomInfo(conn server.Conn, raw []byte) {
	var req struct {
		User            credentials `json:"user"`
		OldRoomName     string      `json:"oldRoomName"`
		NewRoomName     string      `json:"newRoomName"`
		OldRoomPassword string      `json:"oldRoomPassword"`
		NewRoomPassword string      `json:"newRoomPassword"`
	}
	json.Unmarshal(raw, &req)
	req.OldRoomName = strings.TrimSpace(req.OldRoomName)
	req.NewRoomName = strings.TrimSpace(req.NewRoomName)

	success := false
	var messages []string
	var messagesToUsers []string

	ident := s.authenticateModerator(req.User)
	switch {
	case req.OldRoomName == "":
		messages = append(messages, "The room name is required")
	case req.NewRoomName == "":
		messages = append(messages, "The new room name is required")
	case !slices.Contains(s.roomNames, req.OldRoomName):
		messages = append(messages, fmt.Sprintf(`The chat room name "%s" does not exists`, req.OldRoomName))
	case req.OldRoomName != req.NewRoomName && slices.Contains(s.roomNames, req.NewRoomName):
		messages = append(messages, fmt.Sprintf(`The chat room name "%s" already exists`, req.NewRoomName))
	case ident == nil:
		messages = append(messages, "Authentication failed")
	default:
		r, err := s.liveRoom(req.OldRoomName)
		if err != nil {
			s.log.Error().Err(err).Str("room", req.OldRoomName).Msg("room load failed")
			messages = append(messages, "The room could not be loaded")
			break
		}

		if req.OldRoomPassword != req.NewRoomPassword {
			if s.hasRight(ident, req.OldRoomName, "password") {
				success = true
				r.password = req.NewRoomPassword
				if req.NewRoomPassword == "" {
					r.roomType = "public"
				} else {
					r.roomType = "private"
				}
				messages = append(messages, "The room password has been successfully updated")
				messagesToUsers = append(messagesToUsers, fmt.Sprintf(
					`The room password has been updated from "%s" to "%s"`,
					req.OldRoomPassword, req.NewRoomPassword))
			} else {
				messages = append(messages, "You do not have the right to change the room password")
			}
		}

		if req.OldRoomName != req.NewRoomName {
			if s.hasRight(ident, req.OldRoomName, "rename") {
				if err := s.renameRoom(r, req.OldRoomName, req.NewRoomName); err != nil {
					s.log.Error().Err(err).Str("room", req.OldRoomName).Msg("room rename failed")
					messages = append(messages, "The room name could not be updated")
				} else {
					success = true
					messages = append(messages, "The room name has been successfully updated")
					messagesToUsers = append(messagesToUsers, fmt.Sprintf(
						`The room name has been updated from "%s" to "%s"`,
						req.OldRoomName, req.NewRoomName))
				}
			} else {
				messages = append(messages, "You do not have the right to change the room name")
			}
		}

		if err := s.store.SaveRoom(r.name, r.snapshot()); err != nil {
			s.log.Error().Err(err).Str("room", r.name).Msg("snapshot save failed")
		}
		for memberID := range r.members {
			s.sendTo(memberID, map[string]any{
				"service":         s.cfg.ServiceName,
				"action":          "changeRoomInfo",
				"oldRoomName":     req.OldRoomName,
				"newRoomName":     req.NewRoomName,
				"oldRoomPassword": req.OldRoomPassword,
				"newRoomPassword": req.NewRoomPassword,
				"pseudonym":       "SERVER",
				"time":            s.timestamp(),
				"roomName":        r.name,
				"type":            "public",
				"text":            messagesToUsers,
			})
		}
	}

	s.reply(conn, map[string]any{
		"action":          "setRoomInfo",
		"success":         success,
		"text":            strings.Join(messages, ". "),
		"oldRoomName":     req.OldRoomName,
		"newRoomName":     req.NewRoomName,
		"oldRoomPassword": req.OldRoomPassword,
		"newRoomPassword": req.NewRoomPassword,
	})
}

// renameRoom repoints the live maps, the room-name index, every member's
// room list, the storage directory and the rights rows.
func (s *Service) renameRoom(r *room, oldName, newName string) error {
	if err := s.store.RenameRoom(oldName, newName); err != nil {
		return err
	}
	if err := s.rights.RenameRoom(oldName, newName); err != nil {
		return err
	}
	delete(s.rooms, oldName)
	r.name = newName
	s.rooms[newName] = r
	if i := slices.Index(s.roomNames, oldName); i >= 0 {
		s.roomNames[i] = newName
	}
	for connID, names := range s.connRooms {
		for i, name := range names {
			if name == oldName {
				names[i] = newName
			}
		}
		s.connRooms[connID] = names
	}
	return s.store.SaveRoomNames(s.roomNames)
}

func (s *Service) getRoomsInfo(conn server.Conn) {
	roomsInfo := make([]map[string]any, 0, len(s.roomNames))
	for _, name := range s.roomNames {
		if r, ok := s.rooms[name]; ok {
			roomsInfo = append(roomsInfo, map[string]any{
				"name":           name,
				"type":           r.roomType,
				"maxUsers":       r.maxUsers,
				"usersConnected": len(r.members),
			})
			continue
		}
		snap, err := s.store.LoadRoom(name)
		if err != nil {
			s.log.Error().Err(err).Str("room", name).Msg("room info load failed")
			continue
		}
		roomsInfo = append(roomsInfo, map[string]any{
			"name":           name,
			"type":           snap.Type,
			"maxUsers":       snap.MaxUsers,
			"usersConnected": 0,
		})
	}

	s.reply(conn, map[string]any{
		"action":    "getRoomsInfo",
		"roomsInfo": roomsInfo,
	})
}
