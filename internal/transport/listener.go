//go:build linux

// File: internal/transport/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP listener on a raw descriptor so it can sit in the same
// epoll interest set as the client connections.

package transport

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned when a non-blocking operation has nothing to do.
var ErrWouldBlock = errors.New("operation would block")

// Listener is a non-blocking listening socket.
type Listener struct {
	fd   int
	addr string
	port int
}

// Listen opens a non-blocking TCP listener on address:port. Port 0 binds an
// ephemeral port; Port() reports the bound value.
func Listen(address string, port int) (*Listener, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("listen: invalid address %q", address)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("listen: only IPv4 addresses are supported, got %q", address)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	var sa unix.SockaddrInet4
	sa.Port = port
	copy(sa.Addr[:], ip4)
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s:%d: %w", address, port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen %s:%d: %w", address, port, err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	boundPort := port
	if in4, ok := bound.(*unix.SockaddrInet4); ok {
		boundPort = in4.Port
	}

	return &Listener{fd: fd, addr: address, port: boundPort}, nil
}

// Accept takes one pending connection off the queue. Returns ErrWouldBlock
// when the backlog is drained.
func (l *Listener) Accept() (*Conn, error) {
	fd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return nil, ErrWouldBlock
	}
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return newConn(fd, sa), nil
}

// FD exposes the listening descriptor for poller registration.
func (l *Listener) FD() int {
	return l.fd
}

// Port reports the bound port.
func (l *Listener) Port() int {
	return l.port
}

// Addr reports the listen address as address:port.
func (l *Listener) Addr() string {
	return fmt.Sprintf("%s:%d", l.addr, l.port)
}

// Close shuts the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}
