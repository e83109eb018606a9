// File: internal/chat/actions.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package chat

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/momentics/chatwire/internal/chat/historic"
	"github.com/momentics/chatwire/internal/rights"
	"github.com/momentics/chatwire/internal/server"
)

func (s *Service) createRoom(conn server.Conn, raw []byte) {
	var req struct {
		RoomName     string `json:"roomName"`
		Type         string `json:"type"`
		Login        string `json:"login"`
		Password     string `json:"password"`
		RoomPassword string `json:"roomPassword"`
		MaxUsers     any    `json:"maxUsers"`
	}
	json.Unmarshal(raw, &req)
	req.RoomName = strings.TrimSpace(req.RoomName)
	req.Type = strings.TrimSpace(req.Type)

	success := false
	var message string
	maxUsers, numeric := asInt(req.MaxUsers)

	switch {
	case req.RoomName == "":
		message = "The room name is required"
	case slices.Contains(s.roomNames, req.RoomName):
		message = fmt.Sprintf(`The chat room name "%s" already exists`, req.RoomName)
	case req.Type != "public" && req.Type != "private":
		message = `The room type must be "public" or "private"`
	case req.Type == "private" && req.Password == "":
		message = "The password is required and must not be empty"
	case !numeric || maxUsers < 2:
		message = "The max number of users must be a number and must no be less than 2"
	default:
		ident, err := s.auth.Authenticate(req.Login, req.Password)
		if err != nil {
			message = "Authentication failed"
			break
		}
		r := &room{
			name:         req.RoomName,
			roomType:     req.Type,
			password:     req.RoomPassword,
			creator:      ident.Login,
			creationDate: s.now(),
			maxUsers:     maxUsers,
			banned:       []historic.Ban{},
			members:      make(map[string]string),
			rights:       make(map[string]*rights.Record),
		}
		if err := s.store.CreateRoom(req.RoomName, r.snapshot()); err != nil {
			s.log.Error().Err(err).Str("room", req.RoomName).Msg("room creation failed")
			message = "The room could not be created"
			break
		}
		if err := s.rights.AddRoomRow(req.RoomName); err != nil {
			s.log.Error().Err(err).Str("room", req.RoomName).Msg("rights rows seed failed")
			message = "The room could not be created"
			break
		}
		rec, err := s.rights.Load(ident.ID, req.RoomName)
		if err == nil {
			rec.GrantAll()
			err = s.rights.Save(rec)
		}
		if err != nil {
			s.log.Error().Err(err).Str("room", req.RoomName).Msg("creator rights grant failed")
			message = "The room could not be created"
			break
		}

		s.rooms[req.RoomName] = r
		s.roomNames = append(s.roomNames, req.RoomName)
		if err := s.store.SaveRoomNames(s.roomNames); err != nil {
			s.log.Error().Err(err).Msg("room index save failed")
		}
		r.rights[ident.Pseudonym] = rec
		s.joinRoom(r, conn.ID(), ident.Pseudonym)

		success = true
		message = fmt.Sprintf(`The chat room name "%s" is successfully created !`, req.RoomName)
		s.log.Info().
			Str("room", req.RoomName).
			Str("type", req.Type).
			Int("maxUsers", maxUsers).
			Str("creator", ident.Pseudonym).
			Msg("room created")
	}

	s.reply(conn, map[string]any{
		"action":   "createRoom",
		"success":  success,
		"roomName": req.RoomName,
		"type":     req.Type,
		"maxUsers": req.MaxUsers,
		"password": req.RoomPassword,
		"text":     message,
	})
}

func (s *Service) connectRoom(conn server.Conn, raw []byte) {
	var req struct {
		RoomName  string      `json:"roomName"`
		Password  string      `json:"password"`
		Pseudonym string      `json:"pseudonym"`
		User      credentials `json:"user"`
	}
	json.Unmarshal(raw, &req)
	req.RoomName = strings.TrimSpace(req.RoomName)
	req.Pseudonym = strings.TrimSpace(req.Pseudonym)

	success := false
	registered := false
	var message string
	pseudonym := req.Pseudonym
	response := map[string]any{}

	var r *room
	switch {
	case req.RoomName == "":
		message = "The chat room name cannot be empty"
	case !slices.Contains(s.roomNames, req.RoomName):
		message = fmt.Sprintf(`The chat room "%s" does not exist`, req.RoomName)
	default:
		var err error
		r, err = s.liveRoom(req.RoomName)
		if err != nil {
			s.log.Error().Err(err).Str("room", req.RoomName).Msg("room load failed")
			message = "The room could not be loaded"
			break
		}
		switch {
		case len(r.members) >= r.maxUsers:
			message = "The room is full"
		case !r.allowed(req.Password):
			message = "You cannot access to this room or the password is incorrect"
		case r.isBannedIP(conn.IP()):
			message = "You are banned from this room"
		case req.User.provided():
			ident, err := s.auth.Authenticate(*req.User.Email, *req.User.Password)
			if err != nil {
				message = "The authentication failed"
				break
			}
			rec, err := s.rights.Load(ident.ID, req.RoomName)
			if err != nil {
				s.log.Error().Err(err).Str("room", req.RoomName).Msg("rights load failed")
				message = "The room could not be loaded"
				break
			}
			pseudonym = ident.Pseudonym
			r.rights[pseudonym] = rec
			registered = true
			success = true
		case pseudonym != "":
			if usable, err := s.pseudonymUsable(r, pseudonym); err != nil {
				s.log.Error().Err(err).Msg("pseudonym lookup failed")
				message = "The room could not be loaded"
			} else if usable {
				success = true
			} else {
				message = fmt.Sprintf(`The pseudonym "%s" is already used`, pseudonym)
			}
		default:
			message = "The pseudonym can't be empty"
		}
	}

	if success {
		s.joinRoom(r, conn.ID(), pseudonym)
		message = fmt.Sprintf(`You're connected to the chat room "%s" !`, req.RoomName)
		response["roomName"] = r.name
		response["type"] = r.roomType
		response["pseudonym"] = pseudonym
		response["maxUsers"] = r.maxUsers
		response["password"] = r.password
		response["pseudonyms"] = r.pseudonyms()
		response["historic"] = filterConversations(r.entries, pseudonym)
		if registered {
			response["usersRights"] = r.rights
			response["usersBanned"] = r.banned
		}
	}
	response["action"] = "connectRoom"
	response["success"] = success
	response["text"] = message
	s.reply(conn, response)
}

// pseudonymUsable reports whether a guest pseudonym is free: not taken in
// the room and not owned by a registered account.
func (s *Service) pseudonymUsable(r *room, pseudonym string) (bool, error) {
	if _, taken := r.connByPseudonym(pseudonym); taken {
		return false, nil
	}
	exists, err := s.auth.PseudonymExists(pseudonym)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *Service) sendMessage(conn server.Conn, raw []byte) {
	var req struct {
		RoomName  string `json:"roomName"`
		Password  string `json:"password"`
		Recievers string `json:"recievers"`
		Message   string `json:"message"`
	}
	json.Unmarshal(raw, &req)
	req.RoomName = strings.TrimSpace(req.RoomName)
	req.Recievers = strings.TrimSpace(req.Recievers)
	text := strings.TrimSpace(req.Message)

	success := false
	message := "Message successfully sent !"
	response := map[string]any{}
	r, live := s.rooms[req.RoomName]

	switch {
	case text == "":
		message = "The message cannot be empty"
	case req.RoomName == "":
		message = "The chat room name cannot be empty"
	case !live:
		message = fmt.Sprintf("You are not connected to the room %s", req.RoomName)
	case r.roomType == "private" && req.Password != r.password:
		message = "Incorrect password"
	case r.members[conn.ID()] == "":
		message = fmt.Sprintf("You are not connected to the room %s", req.RoomName)
	case req.Recievers == "":
		message = "You must precise a reciever for your message (all or a pseudonym)"
	default:
		pseudonym := r.members[conn.ID()]
		targetID, inRoom := r.connByPseudonym(req.Recievers)
		if req.Recievers != "all" && !inRoom {
			message = fmt.Sprintf(`The user "%s" is not connected to the room "%s"`, req.Recievers, req.RoomName)
			break
		}
		if err := s.rotateIfNeeded(r); err != nil {
			s.log.Error().Err(err).Str("room", r.name).Msg("historic rotation failed")
			message = "The message could not be saved"
			break
		}

		now := s.timestamp()
		if req.Recievers == "all" {
			for memberID := range r.members {
				s.deliverMessage(memberID, pseudonym, r.name, "public", text, now)
			}
		} else {
			s.deliverMessage(targetID, pseudonym, r.name, "private", text, now)
			s.deliverMessage(conn.ID(), pseudonym, r.name, "private", text, now)
			response["message"] = text
			response["type"] = "private"
		}

		r.entries = append(r.entries, historic.Entry{
			Text: text,
			Time: now,
			From: pseudonym,
			To:   req.Recievers,
		})
		s.log.Debug().
			Str("room", r.name).
			Str("from", pseudonym).
			Str("to", req.Recievers).
			Msg("message sent")
		success = true
	}

	response["action"] = "sendMessage"
	response["success"] = success
	response["text"] = message
	s.reply(conn, response)
}

func (s *Service) getHistoric(conn server.Conn, raw []byte) {
	var req struct {
		RoomName       string `json:"roomName"`
		RoomPassword   string `json:"roomPassword"`
		HistoricLoaded any    `json:"historicLoaded"`
	}
	json.Unmarshal(raw, &req)
	req.RoomName = strings.TrimSpace(req.RoomName)

	success := false
	message := "Historic successfully loaded !"
	historicOut := []filteredEntry{}
	loaded, numeric := asInt(req.HistoricLoaded)

	switch {
	case req.RoomName == "":
		message = "The room name is required"
	case !slices.Contains(s.roomNames, req.RoomName):
		message = fmt.Sprintf(`The chat room name "%s" does not exists`, req.RoomName)
	default:
		r, err := s.liveRoom(req.RoomName)
		if err != nil {
			s.log.Error().Err(err).Str("room", req.RoomName).Msg("room load failed")
			message = "The room could not be loaded"
			break
		}
		if r.roomType == "private" && r.password != req.RoomPassword {
			message = "You cannot access to this room or the password is incorrect"
			break
		}
		if !numeric {
			message = "The part must be numeric"
			break
		}
		success = true
		if r.part < loaded {
			message = "There is no more conversation historic for this chat"
			break
		}
		page, err := s.store.LoadPage(req.RoomName, r.part-loaded)
		if err != nil {
			s.log.Error().Err(err).Str("room", req.RoomName).Msg("historic page load failed")
			success = false
			message = "The historic could not be loaded"
			break
		}
		historicOut = filterConversations(page.Conversations, r.members[conn.ID()])
	}

	s.reply(conn, map[string]any{
		"action":   "getHistoric",
		"success":  success,
		"text":     message,
		"historic": historicOut,
		"roomName": req.RoomName,
	})
}

func (s *Service) disconnectFromRoom(conn server.Conn, raw []byte) {
	var req struct {
		RoomName string `json:"roomName"`
	}
	json.Unmarshal(raw, &req)
	req.RoomName = strings.TrimSpace(req.RoomName)

	success := false
	var message string
	joined, tracked := s.connRooms[conn.ID()]

	switch {
	case !tracked:
		message = "An error occured"
	case !slices.Contains(joined, req.RoomName):
		message = fmt.Sprintf("You are not connected to the room %s", req.RoomName)
	default:
		if r, ok := s.rooms[req.RoomName]; ok {
			s.leaveRoom(r, conn.ID())
		}
		s.connRooms[conn.ID()] = slices.DeleteFunc(joined, func(name string) bool {
			return name == req.RoomName
		})
		message = fmt.Sprintf("You are disconnected from the room %s", req.RoomName)
		success = true
	}

	s.reply(conn, map[string]any{
		"action":   "disconnectFromRoom",
		"success":  success,
		"text":     message,
		"roomName": req.RoomName,
	})
}
