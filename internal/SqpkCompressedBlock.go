package internal

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

// uncompressedBlockMarker in the compressed size field means the block is stored as is
const uncompressedBlockMarker = 0x7d00

// sqpkBlockHeaderSize is how many header bytes precede a block's payload
const sqpkBlockHeaderSize = 16

// SqpkCompressedBlock is one block of a file-add command
type SqpkCompressedBlock struct {
	HeaderSize       int32
	CompressedSize   int32
	DecompressedSize int32

	CompressedBlock []byte
}

// IsCompressed reports whether the payload needs inflating
func (b *SqpkCompressedBlock) IsCompressed() bool {
	return b.CompressedSize != uncompressedBlockMarker
}

// CompressedBlockLength is the full block length, header and padding included,
// rounded to the 128-byte block grid
func (b *SqpkCompressedBlock) CompressedBlockLength() int {
	size := b.DecompressedSize
	if b.IsCompressed() {
		size = b.CompressedSize
	}
	return int((uint32(size) + 143) & 0xFFFFFF80)
}

func readSqpkCompressedBlock(r *ChecksumBinaryReader) (*SqpkCompressedBlock, error) {
	b := &SqpkCompressedBlock{}

	b.HeaderSize = r.ReadInt32()
	r.Skip(4)
	b.CompressedSize = r.ReadInt32()
	b.DecompressedSize = r.ReadInt32()
	if err := r.Err(); err != nil {
		return nil, err
	}

	if b.HeaderSize < sqpkBlockHeaderSize || b.CompressedSize < 0 || b.DecompressedSize < 0 {
		return nil, newZiPatchError(KindSizeMismatch, nil, "corrupt block header (header %d, compressed %d, decompressed %d)",
			b.HeaderSize, b.CompressedSize, b.DecompressedSize)
	}

	payload := b.CompressedBlockLength() - int(b.HeaderSize)
	if b.IsCompressed() {
		b.CompressedBlock = r.ReadBytes(payload)
	} else {
		b.CompressedBlock = r.ReadBytes(int(b.DecompressedSize))
		r.Skip(payload - int(b.DecompressedSize))
	}
	return b, r.Err()
}

// DecompressInto writes the block's decompressed bytes to w
func (b *SqpkCompressedBlock) DecompressInto(w io.Writer, decompress BlockDecompressor) error {
	data := b.CompressedBlock
	if b.IsCompressed() {
		var err error
		data, err = decompress(b.CompressedBlock, int(b.CompressedSize), int(b.DecompressedSize))
		if err != nil {
			return err
		}
	}

	_, err := w.Write(data)
	return err
}

// DeflateBlockDecompressor inflates a raw deflate block
func DeflateBlockDecompressor(compressed []byte, compressedSize, decompressedSize int) ([]byte, error) {
	if compressedSize > len(compressed) {
		compressedSize = len(compressed)
	}

	reader := flate.NewReader(bytes.NewReader(compressed[:compressedSize]))
	defer reader.Close()

	out := make([]byte, decompressedSize)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, errors.Wrapf(err, "inflating %d bytes into %d", compressedSize, decompressedSize)
	}
	return out, nil
}
