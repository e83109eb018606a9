//go:build linux

package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
)

func idForAddr(addr string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(addr)).String()
}

// acceptOne dials the listener and spins until the non-blocking accept
// hands the connection back.
func acceptOne(t *testing.T, l *Listener) (*Conn, net.Conn) {
	t.Helper()
	client, err := net.Dial("tcp", l.Addr())
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		c, err := l.Accept()
		if err == nil {
			return c, client
		}
		if err != ErrWouldBlock {
			t.Fatal(err)
		}
		if time.Now().After(deadline) {
			t.Fatal("accept timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestListenerAccept(t *testing.T) {
	l, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if l.Port() == 0 {
		t.Fatal("ephemeral port not resolved")
	}

	c, client, cleanup := acceptPair(t, l)
	defer cleanup()

	if c.IP() != "127.0.0.1" {
		t.Errorf("IP = %q", c.IP())
	}
	if c.ID() == "" {
		t.Error("empty connection ID")
	}
	// The ID is a pure function of the remote address.
	if c.ID() != idForAddr(client.LocalAddr().String()) {
		t.Error("connection ID not derived from remote address")
	}
}

func TestConnReadWrite(t *testing.T) {
	l, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	c, client, cleanup := acceptPair(t, l)
	defer cleanup()

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n := readRetry(t, c, buf)
	if string(buf[:n]) != "hello" {
		t.Errorf("read %q", buf[:n])
	}

	queued, err := c.Write([]byte("world"))
	if err != nil {
		t.Fatal(err)
	}
	if queued {
		t.Error("small write queued unexpectedly")
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = client.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "world" {
		t.Errorf("client read %q", buf[:n])
	}
}

func TestPollerReportsReadable(t *testing.T) {
	l, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	p, err := NewPoller(16)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	c, client, cleanup := acceptPair(t, l)
	defer cleanup()

	if err := p.Add(c.FD()); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}

	events, err := p.Wait()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, ev := range events {
		if ev.FD == c.FD() && ev.Readable {
			found = true
		}
	}
	if !found {
		t.Error("poller did not report the connection readable")
	}
	if err := p.Remove(c.FD()); err != nil {
		t.Fatal(err)
	}
}

func TestConnWriteQueueDrainsInOrder(t *testing.T) {
	l, err := Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	c, client, cleanup := acceptPair(t, l)
	defer cleanup()

	chunk := func(b byte) []byte {
		buf := make([]byte, 256*1024)
		for i := range buf {
			buf[i] = b
		}
		return buf
	}

	// The client is not reading, so the kernel buffers fill and a write
	// eventually queues.
	var written [][]byte
	queued := false
	for b := byte(0); b < 64 && !queued; b++ {
		buf := chunk(b)
		written = append(written, buf)
		q, err := c.Write(buf)
		if err != nil {
			t.Fatal(err)
		}
		queued = q
	}
	if !queued {
		t.Fatal("kernel buffers never filled")
	}
	if !c.HasPending() {
		t.Fatal("queued write not reported pending")
	}

	// Whole buffers written now must land behind the in-flight tail.
	for _, b := range []byte{100, 101} {
		buf := chunk(b)
		written = append(written, buf)
		q, err := c.Write(buf)
		if err != nil {
			t.Fatal(err)
		}
		if !q {
			t.Fatal("write behind pending data not queued")
		}
	}

	total := 0
	for _, w := range written {
		total += len(w)
	}

	// Drain the client side while flushing until the queue empties.
	received := make([]byte, 0, total)
	buf := make([]byte, 64*1024)
	done := false
	for len(received) < total {
		if !done {
			d, err := c.Flush()
			if err != nil {
				t.Fatal(err)
			}
			done = d
		}
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := client.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		received = append(received, buf[:n]...)
	}
	if !done {
		d, err := c.Flush()
		if err != nil {
			t.Fatal(err)
		}
		if !d {
			t.Error("flush not done after full drain")
		}
	}
	if c.HasPending() {
		t.Error("pending data after full drain")
	}

	// Byte-for-byte order across the partial tail and the queued buffers.
	offset := 0
	for i, w := range written {
		if !bytes.Equal(received[offset:offset+len(w)], w) {
			t.Fatalf("buffer %d delivered out of order", i)
		}
		offset += len(w)
	}
}

func acceptPair(t *testing.T, l *Listener) (*Conn, net.Conn, func()) {
	t.Helper()
	c, client := acceptOne(t, l)
	return c, client, func() {
		c.Close()
		client.Close()
	}
}

func readRetry(t *testing.T, c *Conn, buf []byte) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := c.Read(buf)
		if err == nil {
			return n
		}
		if err != ErrWouldBlock {
			t.Fatal(err)
		}
		if time.Now().After(deadline) {
			t.Fatal("read timed out")
		}
		time.Sleep(time.Millisecond)
	}
}
