//go:build linux

// File: internal/transport/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection descriptor handling. Writes that cannot complete without
// blocking are parked on a FIFO queue and drained in order when the poller
// reports the socket writable, so frame ordering is preserved without ever
// stalling the reactor.

package transport

import (
	"fmt"
	"net"
	"strconv"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Conn is one open client socket identified by a stable connection ID
// derived from the remote address and port.
type Conn struct {
	fd         int
	id         string
	remoteIP   string
	remoteAddr string

	// partial holds the in-flight buffer tail; pending holds whole queued
	// buffers behind it.
	partial []byte
	pending *queue.Queue
}

func newConn(fd int, sa unix.Sockaddr) *Conn {
	ip, port := sockaddrToIPPort(sa)
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	return &Conn{
		fd:         fd,
		id:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(addr)).String(),
		remoteIP:   ip,
		remoteAddr: addr,
		pending:    queue.New(),
	}
}

func sockaddrToIPPort(sa unix.Sockaddr) (string, int) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String(), a.Port
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String(), a.Port
	}
	return "unknown", 0
}

// ID returns the stable connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// IP returns the remote IP without the port.
func (c *Conn) IP() string {
	return c.remoteIP
}

// RemoteAddr returns the remote address as ip:port.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// FD exposes the descriptor for poller bookkeeping.
func (c *Conn) FD() int {
	return c.fd
}

// Read fills buf with whatever the socket has, non-blocking. Returns
// ErrWouldBlock when no data is available.
func (c *Conn) Read(buf []byte) (int, error) {
	n, err := unix.Read(c.fd, buf)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return 0, fmt.Errorf("read fd %d: %w", c.fd, err)
	}
	return n, nil
}

// Write sends b, queueing any remainder the kernel would not take. The
// returned flag is true when bytes were queued and the caller should arm
// write readiness on the poller.
func (c *Conn) Write(b []byte) (queued bool, err error) {
	if len(b) == 0 {
		return c.HasPending(), nil
	}
	if c.HasPending() {
		// Keep strict ordering behind already queued data.
		c.pending.Add(b)
		return true, nil
	}
	n, err := unix.Write(c.fd, b)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		c.partial = b
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("write fd %d: %w", c.fd, err)
	}
	if n < len(b) {
		c.partial = b[n:]
		return true, nil
	}
	return false, nil
}

// Flush drains queued writes in order. Returns done=true once the queue is
// empty; done=false means the socket stopped accepting data and write
// readiness should stay armed.
func (c *Conn) Flush() (done bool, err error) {
	for {
		if c.partial == nil {
			if c.pending.Length() == 0 {
				return true, nil
			}
			c.partial = c.pending.Remove().([]byte)
		}
		n, err := unix.Write(c.fd, c.partial)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("flush fd %d: %w", c.fd, err)
		}
		if n < len(c.partial) {
			c.partial = c.partial[n:]
			return false, nil
		}
		c.partial = nil
	}
}

// HasPending reports whether queued bytes are waiting on write readiness.
func (c *Conn) HasPending() bool {
	return c.partial != nil || c.pending.Length() > 0
}

// Close releases the descriptor. Queued writes are dropped.
func (c *Conn) Close() error {
	c.partial = nil
	c.pending = queue.New()
	return unix.Close(c.fd)
}
