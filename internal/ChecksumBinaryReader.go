package internal

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// ChecksumBinaryReader is a cursor over an in-memory frame. Every byte handed
// out by a Read* method is fed through a running CRC32 first.
//
// Errors are sticky: once a read runs past the end of the frame every later
// read returns zero values and Err reports the first failure.
type ChecksumBinaryReader struct {
	data []byte
	pos  int
	crc  hash.Hash32
	err  error
}

// NewChecksumBinaryReader wraps data; the CRC accumulator starts out initialised
func NewChecksumBinaryReader(data []byte) *ChecksumBinaryReader {
	return &ChecksumBinaryReader{
		data: data,
		crc:  crc32.NewIEEE(),
	}
}

// InitCrc32 resets the running checksum
func (r *ChecksumBinaryReader) InitCrc32() {
	r.crc.Reset()
}

// GetCrc32 returns the checksum of everything read since the last InitCrc32
func (r *ChecksumBinaryReader) GetCrc32() uint32 {
	return r.crc.Sum32()
}

// Err returns the first read failure, if any
func (r *ChecksumBinaryReader) Err() error {
	return r.err
}

// Position returns the cursor offset from the start of the frame
func (r *ChecksumBinaryReader) Position() int {
	return r.pos
}

// Remaining returns how many unread bytes are left in the frame
func (r *ChecksumBinaryReader) Remaining() int {
	return len(r.data) - r.pos
}

// take returns the next n bytes of the frame without copying
func (r *ChecksumBinaryReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.pos {
		r.err = fmt.Errorf("read of %d bytes at offset %d: %w", n, r.pos, io.ErrUnexpectedEOF)
		return nil
	}

	b := r.data[r.pos : r.pos+n]
	r.pos += n
	r.crc.Write(b)
	return b
}

// ReadBytes returns a copy of the next n bytes
func (r *ChecksumBinaryReader) ReadBytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Skip consumes n bytes, feeding them to the checksum without copying
func (r *ChecksumBinaryReader) Skip(n int) {
	r.take(n)
}

// SkipTo consumes bytes until the cursor reaches end. A cursor already past
// end means the body overran its declared size.
func (r *ChecksumBinaryReader) SkipTo(end int) {
	if r.err != nil {
		return
	}
	if r.pos > end {
		r.err = fmt.Errorf("body overran declared size by %d bytes", r.pos-end)
		return
	}
	r.take(end - r.pos)
}

func (r *ChecksumBinaryReader) ReadUInt8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *ChecksumBinaryReader) ReadBool() bool {
	return r.ReadUInt8() != 0
}

// ReadFixedLengthString reads n bytes as a string, keeping any trailing NULs out
func (r *ChecksumBinaryReader) ReadFixedLengthString(n int) string {
	b := r.take(n)
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

func (r *ChecksumBinaryReader) ReadUInt16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *ChecksumBinaryReader) ReadUInt32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *ChecksumBinaryReader) ReadUInt64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *ChecksumBinaryReader) ReadInt32() int32 {
	return int32(r.ReadUInt32())
}

func (r *ChecksumBinaryReader) ReadUInt16BE() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *ChecksumBinaryReader) ReadInt16BE() int16 {
	return int16(r.ReadUInt16BE())
}

func (r *ChecksumBinaryReader) ReadUInt32BE() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *ChecksumBinaryReader) ReadInt32BE() int32 {
	return int32(r.ReadUInt32BE())
}

func (r *ChecksumBinaryReader) ReadUInt64BE() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *ChecksumBinaryReader) ReadInt64BE() int64 {
	return int64(r.ReadUInt64BE())
}
