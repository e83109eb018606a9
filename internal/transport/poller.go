//go:build linux

// File: internal/transport/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Level-triggered epoll demultiplexer. Level triggering keeps the reactor
// honest about processing one message per ready connection per pass: a
// connection with more buffered data simply shows up ready again on the
// next wait.

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Event reports readiness for one registered descriptor.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Closed   bool
}

// Poller wraps an epoll instance.
type Poller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates an epoll instance sized for maxEvents per wait.
func NewPoller(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 128
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &Poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

// Add registers fd for read readiness.
func (p *Poller) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// ArmWrite toggles write-readiness interest for fd, keeping read interest.
func (p *Poller) ArmWrite(fd int, enable bool) error {
	events := uint32(unix.EPOLLIN)
	if enable {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Remove deletes fd from the interest set.
func (p *Poller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Wait blocks with no timeout until at least one descriptor is ready and
// returns the ready set in kernel order, which is stable within a pass.
// EINTR is swallowed and the wait restarted.
func (p *Poller) Wait() ([]Event, error) {
	for {
		n, err := unix.EpollWait(p.epfd, p.events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("epoll wait: %w", err)
		}
		out := make([]Event, 0, n)
		for i := 0; i < n; i++ {
			ev := p.events[i]
			out = append(out, Event{
				FD:       int(ev.Fd),
				Readable: ev.Events&unix.EPOLLIN != 0,
				Writable: ev.Events&unix.EPOLLOUT != 0,
				Closed:   ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
			})
		}
		return out, nil
	}
}

// Close releases the epoll descriptor.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
