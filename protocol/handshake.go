// File: protocol/handshake.go
// Package protocol implements the server side of the RFC6455 HTTP Upgrade
// handshake.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Handshake header names and limits.
const (
	HeaderConnection      = "Connection"
	HeaderUpgrade         = "Upgrade"
	HeaderSecWebSocketKey = "Sec-WebSocket-Key"

	MaxHandshakeSize = 8192
)

var (
	ErrInvalidUpgradeHeaders = fmt.Errorf("invalid WebSocket upgrade headers")
	ErrMissingWebSocketKey   = fmt.Errorf("missing Sec-WebSocket-Key header")
	ErrHandshakeTooLarge     = fmt.Errorf("handshake request too large")
)

// AcceptKey computes the Sec-WebSocket-Accept token: the trimmed client key
// concatenated with the protocol GUID, SHA1-hashed, base64-encoded.
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(strings.TrimSpace(clientKey) + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ParseUpgrade validates a raw HTTP Upgrade request and returns the client
// Sec-WebSocket-Key. The whole request is expected in one buffer, the way
// the multiplexer reads it off the socket.
func ParseUpgrade(raw []byte) (string, error) {
	if len(raw) > MaxHandshakeSize {
		return "", ErrHandshakeTooLarge
	}
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return "", fmt.Errorf("handshake read request: %w", err)
	}
	if !headerContainsToken(req.Header, HeaderConnection, "Upgrade") ||
		!headerContainsToken(req.Header, HeaderUpgrade, "websocket") {
		return "", ErrInvalidUpgradeHeaders
	}
	key := req.Header.Get(HeaderSecWebSocketKey)
	if key == "" {
		return "", ErrMissingWebSocketKey
	}
	return key, nil
}

// UpgradeResponse builds the 101 Switching Protocols response embedding the
// accept token for the given client key.
func UpgradeResponse(clientKey string) []byte {
	var sb strings.Builder
	sb.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("Sec-WebSocket-Accept: " + AcceptKey(clientKey) + "\r\n")
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// headerContainsToken checks if headerName contains the given token
// (case-insensitive, comma-separated values allowed).
func headerContainsToken(h http.Header, headerName, token string) bool {
	token = strings.ToLower(token)
	for _, v := range h[http.CanonicalHeaderKey(headerName)] {
		for _, part := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(part)) == token {
				return true
			}
		}
	}
	return false
}
