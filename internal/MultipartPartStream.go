package internal

import (
	"io"

	"github.com/pkg/errors"
)

// ErrSeekOutOfWindow is returned when seeking further back than the replay window reaches
var ErrSeekOutOfWindow = errors.New("seek target is outside the replay window")

// DefaultLoopCaptureSize is how many recently read bytes a part keeps for backward seeks
const DefaultLoopCaptureSize = 16384

// MultipartPartStream is one byte range of a remote resource.
//
// Positions are absolute offsets into the remote resource, so a part covering
// bytes 10-19 starts at position 10. Recently read bytes are kept in a bounded
// replay window; seeking backward inside it is free, anything further back fails.
type MultipartPartStream struct {
	OriginTotalLength int64
	OriginOffset      int64
	OriginLength      int64

	baseStreams     []lengthLimitedStream
	baseStreamIndex int
	loopStream      *CircularMemoryStream
	position        int64
}

func newMultipartPartStream(totalLength, offset, length int64, loopCapacity int) *MultipartPartStream {
	if loopCapacity <= 0 {
		loopCapacity = DefaultLoopCaptureSize
	}
	return &MultipartPartStream{
		OriginTotalLength: totalLength,
		OriginOffset:      offset,
		OriginLength:      length,
		loopStream:        NewCircularMemoryStream(loopCapacity, DiscardOldest),
		position:          offset,
	}
}

// OriginEnd returns the absolute offset one past the last byte of this part
func (s *MultipartPartStream) OriginEnd() int64 {
	return s.OriginOffset + s.OriginLength
}

// Position returns the absolute offset of the next byte Read will return
func (s *MultipartPartStream) Position() int64 {
	return s.position
}

// CaptureBackwards widens the replay window to at least n bytes
func (s *MultipartPartStream) CaptureBackwards(n int) {
	s.loopStream.Reserve(n)
}

// unfulfilledBaseStreamLength returns how many bytes the queued sources still have to cover
func (s *MultipartPartStream) unfulfilledBaseStreamLength() int64 {
	covered := int64(0)
	for _, stream := range s.baseStreams {
		covered += stream.Length()
	}
	return s.OriginLength - covered
}

func (s *MultipartPartStream) appendBaseStream(stream lengthLimitedStream) {
	if stream.Length() == 0 {
		return
	}
	s.baseStreams = append(s.baseStreams, stream)
}

// Read serves replayed bytes first, then pulls from the sources, remembering what it hands out
func (s *MultipartPartStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	total := 0
	if s.loopStream.Position() < s.loopStream.Len() {
		n, _ := s.loopStream.Read(p)
		total += n
		s.position += int64(n)
		p = p[n:]
	}

	for len(p) > 0 && s.baseStreamIndex < len(s.baseStreams) {
		stream := s.baseStreams[s.baseStreamIndex]
		want := min(int64(len(p)), stream.Length()-stream.Position())
		if want == 0 {
			s.baseStreamIndex++
			continue
		}

		n, err := stream.Read(p[:want])
		if n > 0 {
			if ferr := s.loopStream.Feed(p[:n]); ferr != nil {
				return total, ferr
			}
			if _, serr := s.loopStream.Seek(0, io.SeekEnd); serr != nil {
				return total, serr
			}
			total += n
			s.position += int64(n)
			p = p[n:]
		}
		if stream.Position() == stream.Length() {
			s.baseStreamIndex++
		}
		if err != nil && err != io.EOF {
			return total, err
		}
		if n > 0 {
			break
		}
	}

	if total == 0 {
		if s.position >= s.OriginEnd() {
			return 0, io.EOF
		}
		return 0, errors.Wrapf(ErrPrematureEOF, "part ended at %d of %d", s.position, s.OriginEnd())
	}
	return total, nil
}

// Seek repositions within [OriginOffset, OriginEnd]. io.SeekEnd is relative to the
// end of the whole remote resource, mirroring what the positions mean.
func (s *MultipartPartStream) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.position + offset
	case io.SeekEnd:
		target = s.OriginTotalLength + offset
	default:
		return 0, errors.Errorf("invalid whence: %d", whence)
	}

	if target > s.OriginEnd() {
		return 0, errors.Errorf("tried to seek to %d, after the end of the segment at %d", target, s.OriginEnd())
	}
	if target < s.OriginOffset {
		return 0, errors.Errorf("tried to seek to %d, before the beginning of the segment at %d", target, s.OriginOffset)
	}

	delta := target - s.position
	if delta < 0 {
		if -delta > int64(s.loopStream.Position()) {
			return 0, errors.Wrapf(ErrSeekOutOfWindow, "need %d bytes back, window holds %d",
				-delta, s.loopStream.Position())
		}
		if _, err := s.loopStream.Seek(delta, io.SeekCurrent); err != nil {
			return 0, err
		}
		s.position = target
		return target, nil
	}

	replay := min(delta, int64(s.loopStream.Len()-s.loopStream.Position()))
	if replay > 0 {
		if _, err := s.loopStream.Seek(replay, io.SeekCurrent); err != nil {
			return 0, err
		}
		s.position += replay
		delta -= replay
	}

	if delta > 0 {
		if _, err := io.CopyN(io.Discard, s, delta); err != nil {
			return 0, errors.Wrap(err, "skipping forward")
		}
	}

	if s.position != target {
		return 0, errors.Errorf("seek landed at %d instead of %d", s.position, target)
	}
	return target, nil
}

// drain reads the rest of the part so the response body lines up with the next one
func (s *MultipartPartStream) drain() error {
	for ; s.baseStreamIndex < len(s.baseStreams); s.baseStreamIndex++ {
		if _, err := io.Copy(io.Discard, s.baseStreams[s.baseStreamIndex]); err != nil {
			return err
		}
	}
	s.position = s.OriginEnd()
	return nil
}

// Close releases the replay window
func (s *MultipartPartStream) Close() error {
	return s.loopStream.Close()
}
