package internal

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"
)

// wipeBuffer is the shared source of zeros for Wipe
var wipeBuffer = make([]byte, 1<<16)

// SqexFileStream is an open installation file with the block-level helpers chunks need
type SqexFileStream struct {
	*os.File
}

// WaitForStream opens path, retrying transient failures (another process holding the
// file, for instance) up to tries times. A missing file is never retried.
func WaitForStream(path string, flag int, tries int, delay time.Duration) (*SqexFileStream, error) {
	return WaitForRetry(context.Background(),
		func(ctx context.Context) (*SqexFileStream, error) {
			file, err := os.OpenFile(path, flag, 0o644)
			if err != nil {
				return nil, err
			}
			return &SqexFileStream{File: file}, nil
		},
		tries, delay,
		func(err error) bool { return !errors.Is(err, fs.ErrNotExist) },
		nil)
}

// WriteFromOffset writes data at offset, leaving the cursor right after it
func (s *SqexFileStream) WriteFromOffset(data []byte, offset int64) error {
	if _, err := s.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := s.Write(data)
	return err
}

// Wipe writes length zero bytes from the current cursor
func (s *SqexFileStream) Wipe(length int64) error {
	for length > 0 {
		n := min(length, int64(len(wipeBuffer)))
		if _, err := s.Write(wipeBuffer[:n]); err != nil {
			return err
		}
		length -= n
	}
	return nil
}

// WipeFromOffset writes length zero bytes starting at offset
func (s *SqexFileStream) WipeFromOffset(length, offset int64) error {
	if _, err := s.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return s.Wipe(length)
}

// WriteEmptyFileBlockAt zeroes blockNumber blocks at offset and stamps an empty-block
// header over the first of them
func (s *SqexFileStream) WriteEmptyFileBlockAt(offset int64, blockNumber uint32) error {
	if err := s.WipeFromOffset(int64(blockNumber)<<7, offset); err != nil {
		return err
	}

	var header [20]byte
	binary.LittleEndian.PutUint32(header[0:], 1<<7)
	binary.LittleEndian.PutUint32(header[4:], 0)
	binary.LittleEndian.PutUint32(header[8:], 0)
	binary.LittleEndian.PutUint32(header[12:], blockNumber-1)
	binary.LittleEndian.PutUint32(header[16:], 0)
	return s.WriteFromOffset(header[:], offset)
}

// writeFlags opens a file for in-place writes, creating it when missing
const writeFlags = os.O_RDWR | os.O_CREATE
