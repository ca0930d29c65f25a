package mem

import (
	"fmt"
	"sync"
)

// Allocator hands out byte buffers from one of the board's two memory
// tiers. Internal covers small, latency-critical buffers; External covers
// the large, slower region used for response capture and parse-job copies.
type Allocator interface {
	// Get returns a buffer of length n, or nil if the tier cannot
	// satisfy the request.
	Get(n int) []byte
	// Put returns a buffer obtained from Get. Passing foreign buffers is
	// allowed and simply drops them.
	Put(buf []byte)
	// Name identifies the tier in logs.
	Name() string
}

const (
	// internalBufCap is the fixed capacity of pooled internal-tier buffers.
	internalBufCap = 4 * 1024

	// DefaultExternalLimit caps a single external-tier allocation.
	DefaultExternalLimit = 512 * 1024
)

type internalTier struct {
	pool sync.Pool
}

// NewInternal returns the fast, pooled tier for small hot buffers.
func NewInternal() Allocator {
	t := &internalTier{}
	t.pool.New = func() any {
		b := make([]byte, internalBufCap)
		return &b
	}
	return t
}

func (t *internalTier) Get(n int) []byte {
	if n > internalBufCap {
		// Oversized requests bypass the pool rather than fail.
		return make([]byte, n)
	}
	bp := t.pool.Get().(*[]byte)
	return (*bp)[:n]
}

func (t *internalTier) Put(buf []byte) {
	if cap(buf) != internalBufCap {
		return
	}
	b := buf[:0]
	t.pool.Put(&b)
}

func (t *internalTier) Name() string { return "internal" }

type externalTier struct {
	limit int
}

// NewExternal returns the large-but-slow tier. Allocations above limit
// fail by returning nil, mirroring an exhausted external region.
func NewExternal(limit int) Allocator {
	if limit <= 0 {
		limit = DefaultExternalLimit
	}
	return &externalTier{limit: limit}
}

func (t *externalTier) Get(n int) []byte {
	if n > t.limit {
		return nil
	}
	return make([]byte, n)
}

func (t *externalTier) Put(buf []byte) {}

func (t *externalTier) Name() string { return "external" }

// ErrExhausted reports a failed tier allocation.
func ErrExhausted(tier Allocator, n int) error {
	return fmt.Errorf("%s memory tier cannot satisfy %d bytes", tier.Name(), n)
}
