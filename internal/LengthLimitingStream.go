package internal

import (
	"io"

	"github.com/pkg/errors"
)

// ErrPrematureEOF is returned when a source ends before a declared length was delivered
var ErrPrematureEOF = errors.New("premature end of stream")

// lengthLimitedStream provides a forward-only view over the next Length bytes of a source
type lengthLimitedStream interface {
	io.Reader
	Length() int64
	Position() int64
}

// ReadLengthLimitingStream reads at most length bytes from an underlying reader
type ReadLengthLimitingStream struct {
	stream io.Reader
	length int64
	curPos int64
}

// NewReadLengthLimitingStream creates a view over the next length bytes of stream
func NewReadLengthLimitingStream(stream io.Reader, length int64) *ReadLengthLimitingStream {
	return &ReadLengthLimitingStream{
		stream: stream,
		length: length,
	}
}

// remain returns the bytes left in the view
func (s *ReadLengthLimitingStream) remain() int64 {
	return s.length - s.curPos
}

// Read reads up to len(p) bytes, never past the end of the view.
// The underlying reader running dry early surfaces as ErrPrematureEOF.
func (s *ReadLengthLimitingStream) Read(p []byte) (int, error) {
	if s.remain() == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	toRead := min(int64(len(p)), s.remain())
	read, err := s.stream.Read(p[:toRead])
	s.curPos += int64(read)

	if err == io.EOF {
		if read > 0 || s.remain() == 0 {
			return read, nil
		}
		return 0, errors.Wrapf(ErrPrematureEOF, "%d of %d bytes missing", s.remain(), s.length)
	}
	return read, err
}

// Length returns the size of the view
func (s *ReadLengthLimitingStream) Length() int64 {
	return s.length
}

// Position returns the number of bytes already read through the view
func (s *ReadLengthLimitingStream) Position() int64 {
	return s.curPos
}

// ConsumeLengthLimitingStream dequeues at most length bytes from a CircularMemoryStream
type ConsumeLengthLimitingStream struct {
	stream *CircularMemoryStream
	length int64
	curPos int64
}

// NewConsumeLengthLimitingStream creates a view that dequeues the next length bytes of stream
func NewConsumeLengthLimitingStream(stream *CircularMemoryStream, length int64) *ConsumeLengthLimitingStream {
	return &ConsumeLengthLimitingStream{
		stream: stream,
		length: length,
	}
}

// Read dequeues up to len(p) bytes, never past the end of the view
func (s *ConsumeLengthLimitingStream) Read(p []byte) (int, error) {
	remain := s.length - s.curPos
	if remain == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	toRead := int(min(int64(len(p)), remain))
	read := s.stream.Consume(p[:toRead], toRead, false)
	s.curPos += int64(read)

	if read == 0 {
		return 0, errors.Wrapf(ErrPrematureEOF, "buffer drained with %d bytes left", remain)
	}
	return read, nil
}

// Length returns the size of the view
func (s *ConsumeLengthLimitingStream) Length() int64 {
	return s.length
}

// Position returns the number of bytes already dequeued through the view
func (s *ConsumeLengthLimitingStream) Position() int64 {
	return s.curPos
}
