package internal

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"iter"
	"os"

	"github.com/klauspost/compress/zstd"
)

// zipatchMagic is the 12-byte file signature, as three little-endian words
var zipatchMagic = [3]uint32{0x50495A91, 0x48435441, 0x0A1A0A0D}

// zstdFrameMagic marks patch files that were stored zstd-compressed
var zstdFrameMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// ZiPatchFile reads the chunk sequence of a patch.
//
// Seekable sources can be replayed: the header is located up front and the
// Calculate* helpers restore the read position when done. Plain readers can
// only be walked once.
type ZiPatchFile struct {
	stream       io.Reader
	seeker       io.Seeker
	closers      []io.Closer
	decoder      *ChunkDecoder
	headPosition int64
	header       *FileHeaderChunk
	done         bool
}

// OpenZiPatchFile opens a patch on disk. Files stored as a zstd frame are
// decompressed on the fly, which makes them single-pass.
func OpenZiPatchFile(path string) (*ZiPatchFile, error) {
	stream, err := WaitForStream(path, os.O_RDONLY, DefaultRetryAttempt, DefaultRetryDelay)
	if err != nil {
		return nil, newZiPatchError(KindIo, err, "open %s", path)
	}

	var sniff [4]byte
	n, _ := io.ReadFull(stream, sniff[:])
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		stream.Close()
		return nil, newZiPatchError(KindIo, err, "rewind %s", path)
	}

	if n == len(sniff) && bytes.Equal(sniff[:], zstdFrameMagic) {
		PushLogDebugf(nil, "%s is zstd-compressed", path)
		decoder, err := zstd.NewReader(stream)
		if err != nil {
			stream.Close()
			return nil, newZiPatchError(KindIo, err, "decompress %s", path)
		}
		decoderCloser := closerFunc(func() error {
			decoder.Close()
			return nil
		})

		file, err := NewZiPatchFile(decoder)
		if err != nil {
			decoder.Close()
			stream.Close()
			return nil, err
		}
		file.closers = []io.Closer{decoderCloser, stream}
		return file, nil
	}

	file, err := NewZiPatchFile(stream)
	if err != nil {
		stream.Close()
		return nil, err
	}
	file.closers = []io.Closer{stream}
	return file, nil
}

// NewZiPatchFile checks the signature and, for seekable sources, locates the file header.
// The caller keeps ownership of stream.
func NewZiPatchFile(stream io.Reader) (*ZiPatchFile, error) {
	var magic [12]byte
	if _, err := io.ReadFull(stream, magic[:]); err != nil {
		return nil, newZiPatchError(KindBadMagic, err, "could not read signature")
	}
	for i, want := range zipatchMagic {
		if got := binary.LittleEndian.Uint32(magic[i*4:]); got != want {
			return nil, newZiPatchError(KindBadMagic, nil, "signature word %d is %08x, expected %08x", i, got, want)
		}
	}

	file := &ZiPatchFile{stream: stream, headPosition: int64(len(magic))}
	if seeker, ok := stream.(io.Seeker); ok {
		if position, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			file.seeker = seeker
			file.headPosition = position
		}
	}
	file.decoder = NewChunkDecoder(stream, file.headPosition)

	if file.seeker != nil {
		if err := file.findHeader(); err != nil {
			file.decoder.Close()
			return nil, err
		}
	}
	return file, nil
}

func (z *ZiPatchFile) findHeader() error {
	for chunk, err := range z.Chunks() {
		if err != nil {
			return err
		}
		if _, ok := chunk.(*FileHeaderChunk); ok {
			return z.Rewind()
		}
	}
	return newZiPatchError(KindBadMagic, nil, "could not find FHDR chunk")
}

// Header returns the file header, once it has been read
func (z *ZiPatchFile) Header() *FileHeaderChunk {
	return z.header
}

// Seekable reports whether the chunk sequence can be replayed
func (z *ZiPatchFile) Seekable() bool {
	return z.seeker != nil
}

// NextChunk decodes the next chunk, returning io.EOF after the end-of-file chunk
func (z *ZiPatchFile) NextChunk() (Chunk, error) {
	if z.done {
		return nil, io.EOF
	}

	chunk, err := z.decoder.DecodeNext()
	if err != nil {
		z.done = true
		return nil, err
	}

	switch c := chunk.(type) {
	case *FileHeaderChunk:
		if z.header == nil {
			z.header = c
		}
	case *EndOfFileChunk:
		z.done = true
	}
	return chunk, nil
}

// Chunks iterates the remaining chunks up to and including the end-of-file chunk.
// Iteration stops after the first error.
func (z *ZiPatchFile) Chunks() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for {
			chunk, err := z.NextChunk()
			if err == io.EOF {
				return
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

func (z *ZiPatchFile) seekTo(offset int64, done bool) error {
	if z.seeker == nil {
		return newZiPatchError(KindIo, nil, "patch source is not seekable")
	}
	if _, err := z.seeker.Seek(offset, io.SeekStart); err != nil {
		return newZiPatchError(KindIo, err, "seek patch source to %d", offset)
	}
	z.decoder.Reset(offset)
	z.done = done
	return nil
}

// Rewind moves back to the first chunk
func (z *ZiPatchFile) Rewind() error {
	return z.seekTo(z.headPosition, false)
}

// replay runs fn over every chunk from the head. Seekable sources get their
// read position back afterwards; plain readers must not have been read yet.
func (z *ZiPatchFile) replay(fn func(Chunk) error) error {
	startPosition, startDone := z.decoder.Offset(), z.done

	if z.seeker != nil {
		if err := z.Rewind(); err != nil {
			return err
		}
		defer z.seekTo(startPosition, startDone)
	} else if startPosition != z.headPosition || startDone {
		return newZiPatchError(KindIo, nil, "patch source was already read and is not seekable")
	}

	for chunk, err := range z.Chunks() {
		if err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// CalculateChangedFiles lists the paths the patch adds, deletes and modifies.
// Container paths are named for the platform set in config, or the one a target
// info command in the patch selects.
func (z *ZiPatchFile) CalculateChangedFiles(config *ZiPatchConfig) (*ZiPatchChangeSet, error) {
	platform, known := config.TargetPlatform()
	builder := newChangeSetBuilder()

	err := z.replay(func(chunk Chunk) error {
		return builder.record(chunk, &platform, &known)
	})
	if err != nil {
		return nil, err
	}
	return builder.build(), nil
}

// CalculateActualCounts tallies the commands the patch really contains
func (z *ZiPatchFile) CalculateActualCounts() (*ZiPatchCommandCounts, error) {
	counts := &ZiPatchCommandCounts{}
	err := z.replay(func(chunk Chunk) error {
		counts.count(chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// ApplyAll applies the remaining chunks in order. onChunk, when set, sees each
// chunk right before it is applied.
func (z *ZiPatchFile) ApplyAll(ctx context.Context, config *ZiPatchConfig, onChunk DelegateApplyChunk) error {
	for chunk, err := range z.Chunks() {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if config.VerifyChecksums && !chunk.IsChecksumValid() {
			info := chunk.Info()
			return newZiPatchError(KindChecksum, nil, "%s at %d: stored %08x, calculated %08x",
				chunk.ChunkType(), info.Offset, info.Checksum, info.CalculatedChecksum)
		}

		if onChunk != nil {
			onChunk(chunk)
		}
		if err := chunk.ApplyChunk(config); err != nil {
			PushLogError(z, "failed to apply "+chunk.String())
			return err
		}
	}
	return nil
}

// Close releases the decoder and whatever OpenZiPatchFile opened
func (z *ZiPatchFile) Close() error {
	z.decoder.Close()

	var errs []error
	for _, closer := range z.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	z.closers = nil
	return errors.Join(errs...)
}
