package auth

import (
	"errors"
	"testing"
)

func newTestProvider(t *testing.T) *SQLiteProvider {
	t.Helper()
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	p, err := NewSQLiteProvider(db)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAuthenticate(t *testing.T) {
	p := newTestProvider(t)
	if _, err := p.CreateUser("alice@example.com", "s3cret", "Alice", true, false); err != nil {
		t.Fatal(err)
	}

	id, err := p.Authenticate("alice@example.com", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if id.Pseudonym != "Alice" || !id.ChatAdmin || id.WebSocketAdmin {
		t.Errorf("identity = %+v", id)
	}

	if _, err := p.Authenticate("alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := p.Authenticate("nobody@example.com", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown login: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestPseudonymLookups(t *testing.T) {
	p := newTestProvider(t)
	uid, err := p.CreateUser("bob@example.com", "pw", "Bob", false, false)
	if err != nil {
		t.Fatal(err)
	}

	exists, err := p.PseudonymExists("Bob")
	if err != nil || !exists {
		t.Errorf("PseudonymExists(Bob) = %v, %v", exists, err)
	}
	exists, err = p.PseudonymExists("Ghost")
	if err != nil || exists {
		t.Errorf("PseudonymExists(Ghost) = %v, %v", exists, err)
	}

	got, err := p.UserIDByPseudonym("Bob")
	if err != nil || got != uid {
		t.Errorf("UserIDByPseudonym(Bob) = %d, %v; want %d", got, err, uid)
	}
}
