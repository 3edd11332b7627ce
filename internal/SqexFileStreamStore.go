package internal

import (
	"errors"
	"path/filepath"
	"time"
)

// SqexFileStreamStore keeps installation files open across chunks, keyed by absolute path.
// It is not safe for concurrent use.
type SqexFileStreamStore struct {
	streams map[string]*SqexFileStream
}

func NewSqexFileStreamStore() *SqexFileStreamStore {
	return &SqexFileStreamStore{streams: make(map[string]*SqexFileStream)}
}

func normalizeStorePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// GetStream returns the cached stream for path, opening it with flag on first use
func (s *SqexFileStreamStore) GetStream(path string, flag int, tries int, delay time.Duration) (*SqexFileStream, error) {
	key := normalizeStorePath(path)
	if stream, ok := s.streams[key]; ok {
		return stream, nil
	}

	stream, err := WaitForStream(key, flag, tries, delay)
	if err != nil {
		return nil, err
	}
	s.streams[key] = stream
	return stream, nil
}

// Evict closes and forgets the stream for path, if any
func (s *SqexFileStreamStore) Evict(path string) error {
	key := normalizeStorePath(path)
	stream, ok := s.streams[key]
	if !ok {
		return nil
	}
	delete(s.streams, key)
	return stream.Close()
}

// Len returns the number of open streams
func (s *SqexFileStreamStore) Len() int {
	return len(s.streams)
}

// Close closes every cached stream
func (s *SqexFileStreamStore) Close() error {
	var errs []error
	for key, stream := range s.streams {
		if err := stream.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.streams, key)
	}
	return errors.Join(errs...)
}
