//go:build linux

// File: internal/server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/momentics/chatwire/internal/auth"
	"github.com/momentics/chatwire/internal/transport"
	"github.com/momentics/chatwire/pool"
	"github.com/momentics/chatwire/protocol"
)

// Config carries the multiplexer settings.
type Config struct {
	Address string
	Port    int

	// ServiceKey prefixes log lines pushed by sibling processes over a
	// plain socket instead of a WebSocket upgrade.
	ServiceKey string

	NotificationService string
	WebsocketService    string

	RateLimitEnabled bool
	RatePerSecond    float64
	RateBurst        int
}

type connState int

const (
	stateConnecting connState = iota
	stateOpen
	stateClosed
)

// connection pairs the transport socket with protocol state. It implements
// Conn for handler dispatch.
type connection struct {
	tc      *transport.Conn
	state   connState
	limiter *rate.Limiter
}

func (c *connection) ID() string { return c.tc.ID() }
func (c *connection) IP() string { return c.tc.IP() }

// Server is the single-goroutine connection multiplexer. Everything it owns
// (connection maps, registry, handlers) is touched only from Run.
type Server struct {
	log   zerolog.Logger
	cfg   Config
	reg   *Registry
	authp auth.Provider

	ln     *transport.Listener
	poller *transport.Poller
	bufs   *pool.BytePool

	conns map[int]*connection
	byID  map[string]*connection

	stopR, stopW int
}

// New binds the listener and the poller. Run must be called to serve.
func New(log zerolog.Logger, cfg Config, reg *Registry, authp auth.Provider) (*Server, error) {
	ln, err := transport.Listen(cfg.Address, cfg.Port)
	if err != nil {
		return nil, err
	}
	poller, err := transport.NewPoller(128)
	if err != nil {
		ln.Close()
		return nil, err
	}
	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		poller.Close()
		ln.Close()
		return nil, fmt.Errorf("stop pipe: %w", err)
	}
	unix.SetNonblock(pipe[0], true)
	unix.SetNonblock(pipe[1], true)

	s := &Server{
		log:    log.With().Str("component", "server").Logger(),
		cfg:    cfg,
		reg:    reg,
		authp:  authp,
		ln:     ln,
		poller: poller,
		bufs:   pool.NewBytePool(protocol.MaxFramePayload + protocol.MaxFrameHeaderLen),
		conns:  make(map[int]*connection),
		byID:   make(map[string]*connection),
		stopR:  pipe[0],
		stopW:  pipe[1],
	}
	if err := poller.Add(ln.FD()); err != nil {
		s.closeFDs()
		return nil, err
	}
	if err := poller.Add(s.stopR); err != nil {
		s.closeFDs()
		return nil, err
	}
	return s, nil
}

// Port returns the bound listener port.
func (s *Server) Port() int {
	return s.ln.Port()
}

// Stop wakes the reactor and makes Run return. Safe from any goroutine.
func (s *Server) Stop() {
	unix.Write(s.stopW, []byte{0})
}

// Run drives the reactor until Stop. One frame is consumed per connection
// per readiness pass so no single peer can starve the loop.
func (s *Server) Run() error {
	s.log.Info().Str("address", s.ln.Addr()).Int("port", s.ln.Port()).Msg("listening")
	defer s.shutdown()
	for {
		events, err := s.poller.Wait()
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		for _, ev := range events {
			switch ev.FD {
			case s.stopR:
				s.log.Info().Msg("stop requested")
				return nil
			case s.ln.FD():
				s.acceptReady()
			default:
				s.connReady(ev)
			}
		}
	}
}

func (s *Server) shutdown() {
	for _, c := range s.conns {
		c.state = stateClosed
		c.tc.Close()
	}
	s.conns = make(map[int]*connection)
	s.byID = make(map[string]*connection)
	s.closeFDs()
}

func (s *Server) closeFDs() {
	s.poller.Close()
	s.ln.Close()
	unix.Close(s.stopR)
	unix.Close(s.stopW)
}

func (s *Server) acceptReady() {
	for {
		tc, err := s.ln.Accept()
		if err == transport.ErrWouldBlock {
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("accept failed")
			return
		}
		c := &connection{tc: tc, state: stateConnecting}
		if s.cfg.RateLimitEnabled {
			c.limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.RateBurst)
		}
		if err := s.poller.Add(tc.FD()); err != nil {
			s.log.Error().Err(err).Msg("poller add failed")
			tc.Close()
			continue
		}
		s.conns[tc.FD()] = c
		s.byID[tc.ID()] = c
		s.log.Debug().Str("conn", tc.ID()).Str("addr", tc.RemoteAddr()).Msg("accepted")
	}
}

func (s *Server) connReady(ev transport.Event) {
	c, ok := s.conns[ev.FD]
	if !ok {
		return
	}
	if ev.Closed {
		s.drop(c, "peer closed")
		return
	}
	if ev.Writable {
		done, err := c.tc.Flush()
		if err != nil {
			s.drop(c, "flush failed")
			return
		}
		if done {
			s.poller.ArmWrite(ev.FD, false)
		}
	}
	if ev.Readable {
		s.readOne(c)
	}
}

func (s *Server) readOne(c *connection) {
	buf := s.bufs.Get()
	defer s.bufs.Put(buf)

	n, err := c.tc.Read(buf)
	if err == transport.ErrWouldBlock {
		return
	}
	if err != nil || n == 0 {
		s.drop(c, "read failed")
		return
	}
	if n < protocol.MinFrameSize {
		s.drop(c, "short read")
		return
	}
	data := buf[:n]

	switch c.state {
	case stateConnecting:
		s.handleConnecting(c, data)
	case stateOpen:
		s.handleFrame(c, data)
	}
}

// handleConnecting consumes the first bytes of a fresh socket: either an
// HTTP upgrade request or a service-key log line from a sibling process.
func (s *Server) handleConnecting(c *connection, data []byte) {
	if bytes.HasPrefix(data, []byte("GET ")) {
		key, err := protocol.ParseUpgrade(data)
		if err != nil {
			s.log.Debug().Err(err).Str("conn", c.ID()).Msg("bad upgrade request")
			s.drop(c, "bad handshake")
			return
		}
		s.write(c, protocol.UpgradeResponse(key))
		c.state = stateOpen
		s.log.Info().Str("conn", c.ID()).Str("ip", c.IP()).Msg("websocket open")
		return
	}
	line := strings.TrimSpace(string(data))
	if s.cfg.ServiceKey != "" && strings.HasPrefix(line, s.cfg.ServiceKey) {
		s.log.Info().Str("source", c.IP()).Msg(strings.TrimSpace(strings.TrimPrefix(line, s.cfg.ServiceKey)))
	} else {
		s.log.Debug().Str("conn", c.ID()).Msg("non-websocket data before handshake")
	}
	s.drop(c, "not a websocket client")
}

func (s *Server) handleFrame(c *connection, data []byte) {
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		s.log.Debug().Err(err).Str("conn", c.ID()).Msg("undecodable frame")
		return
	}
	switch frame.Opcode {
	case protocol.OpcodeClose:
		s.drop(c, "close frame")
	case protocol.OpcodePing:
		s.writeFrame(c, frame.Payload, protocol.OpcodePong)
	case protocol.OpcodePong:
		// Unsolicited pong, nothing to do.
	case protocol.OpcodeText, protocol.OpcodeBinary:
		s.handleMessage(c, frame.Payload)
	}
}

func (s *Server) handleMessage(c *connection, payload []byte) {
	if strings.EqualFold(strings.TrimSpace(string(payload)), "ping") {
		s.writeFrame(c, []byte("PONG"), protocol.OpcodeText)
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		s.send(c, Notification{Service: s.cfg.NotificationService, Success: false, Text: "Too many messages, slow down"})
		return
	}
	env, err := parseEnvelope(payload)
	if err != nil {
		s.log.Debug().Str("conn", c.ID()).Msg("non-json message ignored")
		return
	}
	if env.Action == "manageServer" {
		s.manage(c, payload)
		return
	}
	for _, note := range s.reg.Dispatch(c, env.Service, payload) {
		s.send(c, note)
	}
}

// manageRequest is the manageServer sub-protocol payload. Pointer fields
// distinguish absent operations from empty names.
type manageRequest struct {
	Login         string  `json:"login"`
	Password      string  `json:"password"`
	AddService    *string `json:"addService"`
	RemoveService *string `json:"removeService"`
	ListServices  bool    `json:"listServices"`
}

func (s *Server) manage(c *connection, payload []byte) {
	var req manageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.send(c, Notification{Service: s.cfg.NotificationService, Success: false, Text: "Invalid management request"})
		return
	}
	ident, err := s.authp.Authenticate(req.Login, req.Password)
	if err != nil || !ident.WebSocketAdmin {
		s.send(c, Notification{Service: s.cfg.NotificationService, Success: false, Text: "Authentication failed"})
		return
	}
	if req.AddService != nil {
		s.send(c, s.reg.AddService(*req.AddService))
	}
	if req.RemoveService != nil {
		s.send(c, s.reg.RemoveService(*req.RemoveService))
	}
	if req.ListServices {
		s.send(c, s.reg.List())
	}
}

// Send pushes a text frame to a connection by ID. Part of the push contract
// consumed by service handlers.
func (s *Server) Send(connID string, payload []byte) {
	c, ok := s.byID[connID]
	if !ok || c.state != stateOpen {
		return
	}
	s.writeFrame(c, payload, protocol.OpcodeText)
}

// Disconnect closes a connection by ID with the full handler cascade.
func (s *Server) Disconnect(connID string) {
	if c, ok := s.byID[connID]; ok {
		s.drop(c, "service disconnect")
	}
}

// IP resolves a connection ID to its remote IP. Unknown IDs read empty.
func (s *Server) IP(connID string) string {
	if c, ok := s.byID[connID]; ok {
		return c.IP()
	}
	return ""
}

func (s *Server) send(c *connection, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("encode response")
		return
	}
	s.writeFrame(c, raw, protocol.OpcodeText)
}

func (s *Server) writeFrame(c *connection, payload []byte, opcode byte) {
	frame, err := protocol.EncodeFrame(payload, opcode)
	if err != nil {
		s.log.Error().Err(err).Str("conn", c.ID()).Msg("encode frame")
		return
	}
	s.write(c, frame)
}

func (s *Server) write(c *connection, b []byte) {
	queued, err := c.tc.Write(b)
	if err != nil {
		s.drop(c, "write failed")
		return
	}
	if queued {
		s.poller.ArmWrite(c.tc.FD(), true)
	}
}

// drop closes a connection. Handlers are notified before the descriptor
// closes, only for connections that completed the handshake, and exactly
// once.
func (s *Server) drop(c *connection, reason string) {
	if c.state == stateClosed {
		return
	}
	wasOpen := c.state == stateOpen
	c.state = stateClosed
	if wasOpen {
		s.reg.Disconnect(c)
	}
	s.poller.Remove(c.tc.FD())
	delete(s.conns, c.tc.FD())
	delete(s.byID, c.tc.ID())
	c.tc.Close()
	s.log.Debug().Str("conn", c.ID()).Str("reason", reason).Msg("connection closed")
}
