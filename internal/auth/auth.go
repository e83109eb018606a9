// File: internal/auth/auth.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package auth defines the authentication provider contract consumed by the
// multiplexer (management sub-protocol) and the room engine (registered
// users), plus a sqlite-backed implementation.
package auth

import "errors"

// ErrInvalidCredentials is returned when the login is unknown or the
// password does not match.
var ErrInvalidCredentials = errors.New("invalid login or password")

// Identity is an authenticated platform user.
type Identity struct {
	ID             int64
	Login          string
	Pseudonym      string
	ChatAdmin      bool
	WebSocketAdmin bool
}

// Provider validates credentials and resolves pseudonym facts.
type Provider interface {
	// Authenticate returns the identity for login/password or
	// ErrInvalidCredentials.
	Authenticate(login, password string) (*Identity, error)

	// PseudonymExists reports whether a registered account already owns the
	// pseudonym. Guests may not shadow registered users.
	PseudonymExists(pseudonym string) (bool, error)

	// UserIDByPseudonym resolves the user behind a chat pseudonym.
	UserIDByPseudonym(pseudonym string) (int64, error)
}
