package internal

import (
	"runtime"
	"sync"
)

// bufferSizeClasses are the pooled allocation sizes, smallest first
var bufferSizeClasses = []int{1 << 14, 1 << 16, 1 << 18, 1 << 20, 1 << 22}

// DefaultBufferSize is the size handed out by GetBuffer
const DefaultBufferSize = 1 << 14

var bufferPools = newBufferPools()

func newBufferPools() []*ReusableBufferPool {
	pools := make([]*ReusableBufferPool, len(bufferSizeClasses))
	for i, size := range bufferSizeClasses {
		pools[i] = NewReusableBufferPool(size, 2*runtime.NumCPU())
	}
	return pools
}

// ReusableBufferPool keeps up to maxBuffers idle byte slices of a single size class
type ReusableBufferPool struct {
	arraySize int
	mu        sync.Mutex
	free      [][]byte
	maxFree   int
}

// NewReusableBufferPool creates a pool handing out buffers of exactly arraySize bytes
func NewReusableBufferPool(arraySize int, maxBuffers int) *ReusableBufferPool {
	return &ReusableBufferPool{
		arraySize: arraySize,
		free:      make([][]byte, 0, maxBuffers),
		maxFree:   maxBuffers,
	}
}

// ArraySize returns the size class of this pool
func (p *ReusableBufferPool) ArraySize() int {
	return p.arraySize
}

// Idle returns how many buffers are waiting to be reused
func (p *ReusableBufferPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Allocate checks out a buffer, zeroing it first when clear is set
func (p *ReusableBufferPool) Allocate(clear bool) *Allocation {
	var buf []byte

	p.mu.Lock()
	if n := len(p.free); n > 0 {
		buf = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if buf == nil {
		return &Allocation{Buffer: make([]byte, p.arraySize), pool: p}
	}

	if clear {
		for i := range buf {
			buf[i] = 0
		}
	}
	return &Allocation{Buffer: buf, pool: p}
}

func (p *ReusableBufferPool) give(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) < p.maxFree {
		p.free = append(p.free, buf)
	}
}

// Allocation is a checked-out buffer. Release returns it to its pool;
// the buffer must not be touched afterwards.
type Allocation struct {
	Buffer []byte

	pool     *ReusableBufferPool
	released bool
}

// Release hands the buffer back to the pool. Calling it more than once is a no-op.
func (a *Allocation) Release() {
	if a == nil || a.released {
		return
	}
	a.released = true

	if a.pool != nil {
		a.pool.give(a.Buffer)
	}
	a.Buffer = nil
}

// GetBuffer checks out a buffer from the smallest size class
func GetBuffer(clear bool) *Allocation {
	return bufferPools[0].Allocate(clear)
}

// GetBufferOfSize checks out a buffer of at least minSize bytes.
// Requests larger than the biggest size class get a private, unpooled buffer.
func GetBufferOfSize(minSize int, clear bool) *Allocation {
	for _, pool := range bufferPools {
		if pool.arraySize >= minSize {
			return pool.Allocate(clear)
		}
	}
	return &Allocation{Buffer: make([]byte, minSize)}
}

// WithBuffer runs fn with a pooled buffer of at least minSize bytes and releases it afterwards
func WithBuffer(minSize int, fn func(buf []byte) error) error {
	alloc := GetBufferOfSize(minSize, false)
	defer alloc.Release()
	return fn(alloc.Buffer)
}
