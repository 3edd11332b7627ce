package internal

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"
)

// maxChunkSize bounds the frame a single chunk may declare
const maxChunkSize = 1 << 30

// Chunk is one decoded frame of a patch file
type Chunk interface {
	// ChunkType returns the four-character outer tag
	ChunkType() string
	Info() *ChunkHeader
	IsChecksumValid() bool
	// ApplyChunk performs the chunk's effect on the installation described by config
	ApplyChunk(config *ZiPatchConfig) error
	String() string
}

// ChunkHeader holds the framing details every chunk shares
type ChunkHeader struct {
	// Offset is the stream position of the tag, right after the size field
	Offset int64
	// Size is the declared body size
	Size int

	Checksum           uint32
	CalculatedChecksum uint32

	// Fingerprint is the xxh64 of tag and body, for telling identical chunks apart cheaply
	Fingerprint uint64
}

func (h *ChunkHeader) Info() *ChunkHeader {
	return h
}

func (h *ChunkHeader) IsChecksumValid() bool {
	return h.Checksum == h.CalculatedChecksum
}

// ApplyChunk does nothing; chunks with an effect override it
func (h *ChunkHeader) ApplyChunk(config *ZiPatchConfig) error {
	return nil
}

type chunkReaderFunc func(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error)

var chunkTypes map[string]chunkReaderFunc

func init() {
	chunkTypes = map[string]chunkReaderFunc{
		FileHeaderChunkType:      readFileHeaderChunk,
		ApplyOptionChunkType:     readApplyOptionChunk,
		ApplyFreeSpaceChunkType:  readApplyFreeSpaceChunk,
		AddDirectoryChunkType:    readAddDirectoryChunk,
		DeleteDirectoryChunkType: readDeleteDirectoryChunk,
		SqpkChunkType:            readSqpkChunk,
		EndOfFileChunkType:       readEndOfFileChunk,
		XXXXChunkType:            readXXXXChunk,
	}
}

// ChunkDecoder reads framed chunks off a stream one at a time
type ChunkDecoder struct {
	stream  io.Reader
	offset  int64
	scratch *Allocation
}

// NewChunkDecoder decodes from stream, whose current position is offset
func NewChunkDecoder(stream io.Reader, offset int64) *ChunkDecoder {
	return &ChunkDecoder{stream: stream, offset: offset}
}

// Offset returns the stream position of the next frame
func (d *ChunkDecoder) Offset() int64 {
	return d.offset
}

// Reset tells the decoder the stream was repositioned to offset
func (d *ChunkDecoder) Reset(offset int64) {
	d.offset = offset
}

func (d *ChunkDecoder) frameBuffer(n int) []byte {
	if d.scratch == nil || len(d.scratch.Buffer) < n {
		d.scratch.Release()
		d.scratch = GetBufferOfSize(n, false)
	}
	return d.scratch.Buffer[:n]
}

func truncatedError(err error, format string, args ...interface{}) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return newZiPatchError(KindTruncated, err, format, args...)
	}
	return newZiPatchError(KindIo, err, format, args...)
}

// DecodeNext reads and decodes the next frame
func (d *ChunkDecoder) DecodeNext() (Chunk, error) {
	var sizeField [4]byte
	if _, err := io.ReadFull(d.stream, sizeField[:]); err != nil {
		return nil, truncatedError(err, "could not get chunk size at %d", d.offset)
	}
	d.offset += 4

	size := binary.BigEndian.Uint32(sizeField[:])
	if size > maxChunkSize {
		return nil, newZiPatchError(KindSizeMismatch, nil, "chunk at %d declares %d bytes", d.offset, size)
	}

	offset := d.offset
	frame := d.frameBuffer(int(size) + 8)
	if _, err := io.ReadFull(d.stream, frame); err != nil {
		return nil, truncatedError(err, "could not read %d byte chunk at %d", size, offset)
	}
	d.offset += int64(len(frame))

	return decodeChunkFrame(frame, offset, int(size))
}

// Close returns the frame buffer to the pool
func (d *ChunkDecoder) Close() error {
	d.scratch.Release()
	d.scratch = nil
	return nil
}

// decodeChunkFrame decodes tag, body and trailing checksum out of frame
func decodeChunkFrame(frame []byte, offset int64, size int) (Chunk, error) {
	r := NewChecksumBinaryReader(frame)
	r.InitCrc32()

	chunkType := r.ReadFixedLengthString(4)
	read, ok := chunkTypes[chunkType]
	if !ok {
		return nil, newZiPatchError(KindUnknownChunk, nil, "unknown chunk type %q at %d", chunkType, offset)
	}

	header := ChunkHeader{
		Offset:      offset,
		Size:        size,
		Fingerprint: xxhash.Sum64(frame[:4+size]),
	}
	chunk, err := read(r, header)
	if err == nil {
		err = r.Err()
	}
	if err != nil {
		var zerr *ZiPatchError
		if errors.As(err, &zerr) {
			return nil, err
		}
		return nil, newZiPatchError(KindTruncated, err, "could not read %s chunk at %d", chunkType, offset)
	}

	calculated := r.GetCrc32()
	checksum := r.ReadUInt32BE()
	if r.Err() != nil {
		return nil, newZiPatchError(KindTruncated, r.Err(), "could not read %s checksum at %d", chunkType, offset)
	}

	info := chunk.Info()
	info.Checksum = checksum
	info.CalculatedChecksum = calculated
	return chunk, nil
}
