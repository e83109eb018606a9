// File: internal/chat/chat.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package chat is the room engine: multi-room conversations with guest and
// registered members, per-room moderation rights, IP bans and a paginated
// file-backed historic. It runs entirely on the reactor goroutine, so no
// state here is locked.
package chat

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/chatwire/internal/auth"
	"github.com/momentics/chatwire/internal/chat/historic"
	"github.com/momentics/chatwire/internal/rights"
	"github.com/momentics/chatwire/internal/server"
)

// timeLayout is the wire format of every timestamp the service emits.
const timeLayout = "2006-01-02 15:04:05"

// Peers is the push side of the multiplexer as seen by the room engine.
type Peers interface {
	// Send pushes one text payload to a connection by ID.
	Send(connID string, payload []byte)
	// Disconnect closes a connection by ID. Kick and ban never call it:
	// the target keeps the socket open to read the notice and join other
	// rooms. Severing a socket is the engine's call, so the operation
	// stays in the contract.
	Disconnect(connID string)
	// IP resolves a connection ID to its remote IP.
	IP(connID string) string
}

// Config carries the room-engine settings.
type Config struct {
	// ServiceName is stamped on every response envelope.
	ServiceName string
	// MaxMessagesPerFile triggers historic page rotation.
	MaxMessagesPerFile int
	// DefaultRoomMaxUsers caps the always-present default room.
	DefaultRoomMaxUsers int
}

// Service implements server.Handler for the chat service.
type Service struct {
	log    zerolog.Logger
	cfg    Config
	push   Peers
	auth   auth.Provider
	rights rights.Store
	store  *historic.Store

	now func() time.Time

	roomNames []string
	rooms     map[string]*room
	connRooms map[string][]string
}

// New loads the room-name index and guarantees the default room exists.
func New(log zerolog.Logger, cfg Config, push Peers, authp auth.Provider, rightsStore rights.Store, store *historic.Store) (*Service, error) {
	names, err := store.RoomNames()
	if err != nil {
		return nil, err
	}
	s := &Service{
		log:       log.With().Str("component", "chat").Logger(),
		cfg:       cfg,
		push:      push,
		auth:      authp,
		rights:    rightsStore,
		store:     store,
		now:       time.Now,
		roomNames: names,
		rooms:     make(map[string]*room),
		connRooms: make(map[string][]string),
	}
	if err := s.ensureDefaultRoom(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) ensureDefaultRoom() error {
	if !slices.Contains(s.roomNames, "default") {
		snap := &historic.Snapshot{
			Type:         "public",
			CreationDate: s.now(),
			MaxUsers:     s.cfg.DefaultRoomMaxUsers,
			UsersBanned:  []historic.Ban{},
		}
		if err := s.store.CreateRoom("default", snap); err != nil {
			return err
		}
		s.roomNames = append(s.roomNames, "default")
		if err := s.store.SaveRoomNames(s.roomNames); err != nil {
			return err
		}
	}
	_, err := s.liveRoom("default")
	return err
}

// Handle dispatches one decoded client payload.
func (s *Service) Handle(conn server.Conn, raw []byte) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		s.log.Debug().Str("conn", conn.ID()).Msg("undecodable payload ignored")
		return
	}

	switch head.Action {
	case "sendMessage":
		s.sendMessage(conn, raw)
	case "connectRoom":
		s.connectRoom(conn, raw)
	case "disconnect":
		s.removeFromAllRooms(conn)
	case "disconnectFromRoom":
		s.disconnectFromRoom(conn, raw)
	case "createRoom":
		s.createRoom(conn, raw)
	case "getHistoric":
		s.getHistoric(conn, raw)
	case "kickUser":
		s.kickUser(conn, raw)
	case "banUser":
		s.banUser(conn, raw)
	case "unbanUser":
		s.unbanUser(conn, raw)
	case "updateRoomUserRight":
		s.updateRoomUserRight(conn, raw)
	case "setRoomInfo":
		s.setRoomInfo(conn, raw)
	case "getRoomsInfo":
		s.getRoomsInfo(conn)
	default:
		s.reply(conn, map[string]any{
			"success": false,
			"text":    "Unknown action",
		})
	}
}

// HandleDisconnect removes the dead connection from every room it was in.
func (s *Service) HandleDisconnect(conn server.Conn) {
	s.removeFromAllRooms(conn)
}

func (s *Service) removeFromAllRooms(conn server.Conn) {
	s.removeConnFromAllRooms(conn.ID())
}

// reply sends one payload to the calling connection, stamping the service
// name on the envelope.
func (s *Service) reply(conn server.Conn, payload map[string]any) {
	payload["service"] = s.cfg.ServiceName
	s.sendTo(conn.ID(), payload)
}

func (s *Service) sendTo(connID string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("encode payload")
		return
	}
	s.push.Send(connID, raw)
}

func (s *Service) timestamp() string {
	return s.now().Format(timeLayout)
}

// credentials distinguish a registered connection attempt (both fields
// present) from a guest one.
type credentials struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (c credentials) provided() bool {
	return c.Email != nil && c.Password != nil
}

// asInt coerces a decoded JSON value that may be a number or a numeric
// string, the way the historic clients send maxUsers and historicLoaded.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

// asBool coerces a decoded JSON value that may be a bool, a number or a
// string flag.
func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		return b == "1" || strings.EqualFold(b, "true")
	}
	return false
}
