// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-size byte buffer pooling for the socket read path. One buffer is
// checked out per readiness event and returned once the frame has been
// decoded, so the reactor allocates nothing in steady state.

package pool

import "sync"

// BytePool hands out fixed-size byte slices backed by a sync.Pool.
type BytePool struct {
	size int
	p    sync.Pool
}

// NewBytePool creates a pool of buffers of the given size.
func NewBytePool(size int) *BytePool {
	bp := &BytePool{size: size}
	bp.p.New = func() any {
		return make([]byte, size)
	}
	return bp
}

// Get returns a buffer of the pool's size.
func (b *BytePool) Get() []byte {
	return b.p.Get().([]byte)
}

// Put returns a buffer to the pool. Buffers of a foreign size are dropped.
func (b *BytePool) Put(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	b.p.Put(buf[:b.size])
}

// Size reports the buffer size this pool serves.
func (b *BytePool) Size() int {
	return b.size
}
