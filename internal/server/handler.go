// File: internal/server/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package server multiplexes every client connection over one epoll-driven
// goroutine and dispatches decoded text frames to registered services. It
// owns the connection lifecycle (Connecting -> Open -> Closed), the
// WebSocket handshake, and the manageServer sub-protocol.
package server

import "encoding/json"

// Conn is the connection view handed to service handlers.
type Conn interface {
	// ID is the stable identifier derived from the remote address.
	ID() string
	// IP is the remote IP without the port.
	IP() string
}

// Handler is one running service. Handle receives the raw payload of a
// decoded text frame; HandleDisconnect fires once when the connection dies,
// whatever the cause.
type Handler interface {
	Handle(conn Conn, raw []byte)
	HandleDisconnect(conn Conn)
}

// HandlerFactory builds a service instance when it is started.
type HandlerFactory func() (Handler, error)

// envelope is the routing header every client message carries.
type envelope struct {
	Service []string `json:"service"`
	Action  string   `json:"action"`
}

func parseEnvelope(raw []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
