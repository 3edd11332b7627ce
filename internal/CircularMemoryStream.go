package internal

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// FeedOverflowMode decides what Feed does when the incoming bytes do not fit
type FeedOverflowMode int

const (
	// ExtendCapacity grows the backing buffer, keeping every byte
	ExtendCapacity FeedOverflowMode = iota
	// DiscardOldest drops the oldest bytes to make room
	DiscardOldest
	// Throw rejects the feed with ErrFeedOverflow
	Throw
)

// ErrFeedOverflow is returned by Feed in Throw mode when the buffer is full
var ErrFeedOverflow = errors.New("circular buffer overflow")

// CircularMemoryStream is a byte queue over a fixed-size ring.
//
// Feed appends and Consume dequeues from the front. Independently of that,
// Read/Seek/Write move an external cursor over the queued bytes without
// dequeuing them; Consume pulls that cursor back by the amount dequeued so
// both views stay consistent.
type CircularMemoryStream struct {
	alloc  *Allocation
	buffer []byte

	validFrom        int
	validTo          int
	length           int
	externalPosition int

	overflowMode FeedOverflowMode
}

// NewCircularMemoryStream creates a ring of baseCapacity bytes (DefaultBufferSize when zero)
func NewCircularMemoryStream(baseCapacity int, overflowMode FeedOverflowMode) *CircularMemoryStream {
	if baseCapacity <= 0 {
		baseCapacity = DefaultBufferSize
	}

	alloc := GetBufferOfSize(baseCapacity, false)
	return &CircularMemoryStream{
		alloc:        alloc,
		buffer:       alloc.Buffer[:baseCapacity],
		overflowMode: overflowMode,
	}
}

// Capacity returns the size of the backing ring
func (c *CircularMemoryStream) Capacity() int {
	return len(c.buffer)
}

// Len returns the number of queued bytes
func (c *CircularMemoryStream) Len() int {
	return c.length
}

// Position returns the external cursor
func (c *CircularMemoryStream) Position() int {
	return c.externalPosition
}

// At returns the i-th queued byte, counting from the front of the queue
func (c *CircularMemoryStream) At(i int) byte {
	if i < 0 || i >= c.length {
		panic(fmt.Sprintf("circular buffer index %d out of range [0, %d)", i, c.length))
	}
	return c.buffer[(c.validFrom+i)%len(c.buffer)]
}

// SetAt overwrites the i-th queued byte
func (c *CircularMemoryStream) SetAt(i int, b byte) {
	if i < 0 || i >= c.length {
		panic(fmt.Sprintf("circular buffer index %d out of range [0, %d)", i, c.length))
	}
	c.buffer[(c.validFrom+i)%len(c.buffer)] = b
}

// copyOut fills dst from the ring starting at physical index start, wrapping once
func (c *CircularMemoryStream) copyOut(dst []byte, start int) {
	n := copy(dst, c.buffer[start:])
	if n < len(dst) {
		copy(dst[n:], c.buffer[:len(dst)-n])
	}
}

// copyIn writes src into the ring starting at physical index start, wrapping once
func (c *CircularMemoryStream) copyIn(src []byte, start int) {
	n := copy(c.buffer[start:], src)
	if n < len(src) {
		copy(c.buffer, src[n:])
	}
}

// Reserve grows the ring to at least capacity bytes, unwrapping the queue to the front
func (c *CircularMemoryStream) Reserve(capacity int) {
	if capacity <= c.Capacity() {
		return
	}

	alloc := GetBufferOfSize(capacity, false)
	buffer := alloc.Buffer[:capacity]
	if c.length > 0 {
		c.copyOut(buffer[:c.length], c.validFrom)
	}

	c.alloc.Release()
	c.alloc = alloc
	c.buffer = buffer

	c.validFrom = 0
	c.validTo = c.length
}

// Feed appends p to the back of the queue, applying the overflow mode when it does not fit
func (c *CircularMemoryStream) Feed(p []byte) error {
	count := len(p)
	if count == 0 {
		return nil
	}

	if c.length+count > c.Capacity() {
		switch c.overflowMode {
		case ExtendCapacity:
			c.Reserve(max(c.length+count, 2*c.Capacity()))

		case DiscardOldest:
			if count >= c.Capacity() {
				copy(c.buffer, p[count-c.Capacity():])
				c.validFrom = 0
				c.validTo = 0
				c.length = c.Capacity()
				c.externalPosition = 0
				return nil
			}
			c.Consume(nil, c.length+count-c.Capacity(), false)

		case Throw:
			return errors.Wrapf(ErrFeedOverflow, "cannot feed %d bytes (length=%d, capacity=%d)",
				count, c.length, c.Capacity())
		}
	}

	c.copyIn(p, c.validTo)
	c.validTo = (c.validTo + count) % c.Capacity()
	c.length += count
	return nil
}

// Consume dequeues up to count bytes into p (p may be nil to just drop them).
// With peek set the bytes are copied but stay queued. Returns the byte count handled.
func (c *CircularMemoryStream) Consume(p []byte, count int, peek bool) int {
	count = max(0, min(count, c.length))
	if p != nil {
		count = min(count, len(p))
		if count > 0 {
			c.copyOut(p[:count], c.validFrom)
		}
	}

	if !peek {
		c.length -= count
		if c.length == 0 {
			c.validFrom = 0
			c.validTo = 0
		} else {
			c.validFrom = (c.validFrom + count) % c.Capacity()
		}
		c.externalPosition = max(0, c.externalPosition-count)
	}

	return count
}

// SetLength truncates or zero-extends the queue
func (c *CircularMemoryStream) SetLength(value int) {
	if value < 0 {
		panic(fmt.Sprintf("circular buffer length %d is negative", value))
	}

	if value == 0 {
		c.validFrom = 0
		c.validTo = 0
		c.length = 0
		c.externalPosition = 0
		return
	}

	if value > c.Capacity() {
		c.Reserve(value)
	}

	if value > c.length {
		extend := value - c.length
		start := c.validTo
		for i := 0; i < extend; i++ {
			c.buffer[(start+i)%c.Capacity()] = 0
		}
	}

	c.length = value
	c.validTo = (c.validFrom + value) % c.Capacity()
	c.externalPosition = min(c.externalPosition, value)
}

// Read copies queued bytes from the external cursor onwards without dequeuing them
func (c *CircularMemoryStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	available := c.length - c.externalPosition
	if available <= 0 {
		return 0, io.EOF
	}

	n := min(len(p), available)
	c.copyOut(p[:n], (c.validFrom+c.externalPosition)%c.Capacity())
	c.externalPosition += n
	return n, nil
}

// Seek moves the external cursor. Positions past the end clamp to the end.
func (c *CircularMemoryStream) Seek(offset int64, whence int) (int64, error) {
	position := int64(c.externalPosition)
	switch whence {
	case io.SeekStart:
		position = offset
	case io.SeekCurrent:
		position += offset
	case io.SeekEnd:
		position = int64(c.length) + offset
	default:
		return 0, errors.Errorf("invalid whence: %d", whence)
	}

	if position < 0 {
		return 0, errors.New("seeking is attempted before the beginning of the stream")
	}
	if position > int64(c.length) {
		position = int64(c.length)
	}

	c.externalPosition = int(position)
	return position, nil
}

// Write overwrites queued bytes at the external cursor, extending the queue (and
// the ring, if needed) when writing past its end
func (c *CircularMemoryStream) Write(p []byte) (int, error) {
	end := c.externalPosition + len(p)
	if end > c.Capacity() {
		c.Reserve(end)
	}

	if len(p) > 0 {
		c.copyIn(p, (c.validFrom+c.externalPosition)%c.Capacity())
	}
	c.externalPosition = end

	if end > c.length {
		c.length = end
		c.validTo = (c.validFrom + end) % c.Capacity()
	}
	return len(p), nil
}

// Close returns the backing buffer to the pool
func (c *CircularMemoryStream) Close() error {
	c.alloc.Release()
	c.alloc = nil
	c.buffer = nil
	c.length = 0
	c.validFrom = 0
	c.validTo = 0
	c.externalPosition = 0
	return nil
}
