// File: internal/transport/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package transport provides the raw socket layer under the connection
// multiplexer: a non-blocking TCP listener, per-connection file descriptor
// handling with ordered pending-write queues, and a level-triggered epoll
// poller. Everything above this package deals in whole WebSocket frames and
// connection IDs, never in file descriptors.
package transport
