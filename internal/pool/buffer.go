// Package pool provides size-classed byte-buffer reuse for the hot path:
// packet encode/decode scratch space and room fan-out payloads. It is
// modeled on the original_source reference's EnhancedMemoryPool, which
// buckets allocations into fixed size classes to bound fragmentation;
// here the bucketing is expressed with sync.Pool per class, the idiomatic
// Go shape for the same idea (runZeroInc-sockstats and rustyguts-bken both
// lean on sync.Pool-free direct allocation for anything below datagram
// size). No other package in this repository draws from it: room
// broadcasts and wire.Decode allocate their buffers directly.
package pool

import "sync"

// Size classes mirror the original_source BufferSizeClass ladder, rounded
// to the packet sizes this protocol actually produces: a bare header, a
// typical small payload, and a full MTU-sized datagram.
const (
	ClassHeader  = 21   // bare header, no payload
	ClassSmall   = 256  // typical reliable data payload
	ClassLarge   = 1400 // full MTU-sized datagram
)

func classFor(n int) int {
	switch {
	case n <= ClassHeader:
		return ClassHeader
	case n <= ClassSmall:
		return ClassSmall
	default:
		return ClassLarge
	}
}

// BufferPool hands out []byte slices sized to the nearest size class above
// the request, reusing backing arrays across Get/Put pairs.
type BufferPool struct {
	header sync.Pool
	small  sync.Pool
	large  sync.Pool
}

// NewBufferPool returns a ready-to-use BufferPool.
func NewBufferPool() *BufferPool {
	p := &BufferPool{}
	p.header.New = func() any { return make([]byte, 0, ClassHeader) }
	p.small.New = func() any { return make([]byte, 0, ClassSmall) }
	p.large.New = func() any { return make([]byte, 0, ClassLarge) }
	return p
}

func (p *BufferPool) poolFor(class int) *sync.Pool {
	switch class {
	case ClassHeader:
		return &p.header
	case ClassSmall:
		return &p.small
	default:
		return &p.large
	}
}

// Get returns a zero-length slice with capacity for at least n bytes.
func (p *BufferPool) Get(n int) []byte {
	if n > ClassLarge {
		return make([]byte, 0, n)
	}
	class := classFor(n)
	buf := p.poolFor(class).Get().([]byte)
	return buf[:0]
}

// Put returns buf to its size class's pool. Callers must not use buf after
// calling Put. A buffer smaller than its size class is discarded.
func (p *BufferPool) Put(buf []byte) {
	class := classFor(cap(buf))
	if cap(buf) < class {
		return
	}
	p.poolFor(class).Put(buf[:0]) //nolint:staticcheck // reused, not retained
}
