package server

import (
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"
)

type recordingHandler struct {
	handled      [][]byte
	disconnected []string
}

func (h *recordingHandler) Handle(conn Conn, raw []byte) {
	h.handled = append(h.handled, raw)
}

func (h *recordingHandler) HandleDisconnect(conn Conn) {
	h.disconnected = append(h.disconnected, conn.ID())
}

type stubConn struct{ id, ip string }

func (c stubConn) ID() string { return c.id }
func (c stubConn) IP() string { return c.ip }

func newTestRegistry() (*Registry, *recordingHandler) {
	h := &recordingHandler{}
	r := NewRegistry(zerolog.Nop(), "notificationService", "websocketService")
	r.RegisterFactory("chatService", func() (Handler, error) { return h, nil })
	return r, h
}

func TestAddRemoveService(t *testing.T) {
	r, _ := newTestRegistry()

	note := r.AddService("chatService")
	if !note.Success || note.Text != `The service "chatService" is now running` {
		t.Errorf("add = %+v", note)
	}
	note = r.AddService("chatService")
	if note.Success || note.Text != `The service "chatService" is already running` {
		t.Errorf("double add = %+v", note)
	}
	note = r.AddService("ghost")
	if note.Success || note.Text != `The service "ghost" does not exist` {
		t.Errorf("unknown add = %+v", note)
	}

	note = r.RemoveService("chatService")
	if !note.Success || note.Text != `The service "chatService" is now stopped` {
		t.Errorf("remove = %+v", note)
	}
	note = r.RemoveService("chatService")
	if note.Success || note.Text != `The service "chatService" is not running` {
		t.Errorf("double remove = %+v", note)
	}
}

func TestFactoryFailure(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), "notificationService", "websocketService")
	r.RegisterFactory("broken", func() (Handler, error) { return nil, errors.New("boom") })

	note := r.AddService("broken")
	if note.Success || note.Text != `The service "broken" could not be started` {
		t.Errorf("broken add = %+v", note)
	}
	if len(r.Services()) != 0 {
		t.Errorf("broken service listed: %v", r.Services())
	}
}

func TestListServices(t *testing.T) {
	r, _ := newTestRegistry()
	r.RegisterFactory("anotherService", func() (Handler, error) { return &recordingHandler{}, nil })
	r.AddService("chatService")
	r.AddService("anotherService")

	list := r.List()
	if list.Service != "websocketService" {
		t.Errorf("list service name = %q", list.Service)
	}
	if !slices.Equal(list.Services, []string{"anotherService", "chatService"}) {
		t.Errorf("services = %v", list.Services)
	}
}

func TestDispatch(t *testing.T) {
	r, h := newTestRegistry()
	r.AddService("chatService")
	conn := stubConn{id: "c1", ip: "10.0.0.1"}
	payload := []byte(`{"service":["chatService"],"action":"x"}`)

	failures := r.Dispatch(conn, []string{"chatService", "ghost"}, payload)
	if len(h.handled) != 1 || string(h.handled[0]) != string(payload) {
		t.Errorf("handled = %v", h.handled)
	}
	if len(failures) != 1 || failures[0].Text != `The service "ghost" is not running` {
		t.Errorf("failures = %+v", failures)
	}
	if failures[0].Service != "notificationService" || failures[0].Success {
		t.Errorf("failure envelope = %+v", failures[0])
	}
}

func TestDisconnectFanOut(t *testing.T) {
	r, h := newTestRegistry()
	r.AddService("chatService")

	r.Disconnect(stubConn{id: "c9", ip: "10.0.0.9"})
	if len(h.disconnected) != 1 || h.disconnected[0] != "c9" {
		t.Errorf("disconnect fan-out = %v", h.disconnected)
	}
}
