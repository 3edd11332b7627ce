package internal

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const SqpkFileCommand = "F"

// SqpkFileOperation is the action a file command performs
type SqpkFileOperation byte

const (
	SqpkFileAddFile     SqpkFileOperation = 'A'
	SqpkFileRemoveAll   SqpkFileOperation = 'R'
	SqpkFileDeleteFile  SqpkFileOperation = 'D'
	SqpkFileMakeDirTree SqpkFileOperation = 'M'
)

func (o SqpkFileOperation) String() string {
	switch o {
	case SqpkFileAddFile:
		return "AddFile"
	case SqpkFileRemoveAll:
		return "RemoveAll"
	case SqpkFileDeleteFile:
		return "DeleteFile"
	case SqpkFileMakeDirTree:
		return "MakeDirTree"
	default:
		return fmt.Sprintf("SqpkFileOperation(%c)", byte(o))
	}
}

// removeAllKeepSuffixes are never deleted by a RemoveAll operation
var removeAllKeepSuffixes = []string{".var", "00000.bk2", "00001.bk2", "00002.bk2", "00003.bk2"}

// SqpkFile operates on whole files: writing them from compressed blocks,
// deleting them, or creating directories
type SqpkFile struct {
	ChunkHeader

	Operation   SqpkFileOperation
	FileOffset  int64
	FileSize    uint64
	ExpansionId uint16
	TargetFile  *SqexFile

	CompressedData []*SqpkCompressedBlock
	// CompressedDataSourceOffsets is where each block's payload starts in the patch stream
	CompressedDataSourceOffsets []int64
}

func readSqpkFile(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	start := r.Position()
	c := &SqpkFile{ChunkHeader: header}

	c.Operation = SqpkFileOperation(r.ReadUInt8())
	r.Skip(2)
	c.FileOffset = r.ReadInt64BE()
	c.FileSize = r.ReadUInt64BE()
	pathLength := r.ReadUInt32BE()
	c.ExpansionId = r.ReadUInt16BE()
	r.Skip(2)
	c.TargetFile = &SqexFile{RelativePath: r.ReadFixedLengthString(int(pathLength))}
	if err := r.Err(); err != nil {
		return nil, err
	}

	if c.Operation == SqpkFileAddFile {
		end := start + header.Size
		for r.Position() < end {
			sourceOffset := header.Offset + int64(r.Position())
			block, err := readSqpkCompressedBlock(r)
			if err != nil {
				return nil, err
			}
			c.CompressedData = append(c.CompressedData, block)
			c.CompressedDataSourceOffsets = append(c.CompressedDataSourceOffsets, sourceOffset+int64(block.HeaderSize))
		}
	}

	r.SkipTo(start + header.Size)
	return c, r.Err()
}

func (c *SqpkFile) ChunkType() string {
	return SqpkChunkType
}

func (c *SqpkFile) Command() string {
	return SqpkFileCommand
}

func (c *SqpkFile) ApplyChunk(config *ZiPatchConfig) error {
	switch c.Operation {
	case SqpkFileRemoveAll:
		return c.removeAll(config)
	case SqpkFileDeleteFile:
		return c.deleteFile(config)
	case SqpkFileMakeDirTree:
		if err := os.MkdirAll(c.TargetFile.FullPath(config.GamePath), 0o755); err != nil {
			return newZiPatchError(KindIo, err, "create directory tree %s", c.TargetFile.RelativePath)
		}
		return nil
	default:
		return c.addFile(config)
	}
}

// addFile writes the decompressed blocks at FileOffset, truncating first when writing from the start
func (c *SqpkFile) addFile(config *ZiPatchConfig) error {
	fullPath := c.TargetFile.FullPath(config.GamePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return newZiPatchError(KindIo, err, "create parent of %s", c.TargetFile.RelativePath)
	}

	if c.FileOffset > 0 {
		info, err := os.Stat(fullPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if !config.IgnoreMissing {
				return newZiPatchError(KindApply, err, "%s to write at %d is missing", c.TargetFile.RelativePath, c.FileOffset)
			}
			PushLogWarningf(c, "%s to write at %d is missing, creating it", c.TargetFile.RelativePath, c.FileOffset)
		case err != nil:
			return newZiPatchError(KindIo, err, "stat %s", c.TargetFile.RelativePath)
		case info.Size() < c.FileOffset && !config.IgnoreOldMismatch:
			return newZiPatchError(KindApply, nil, "%s is %d bytes, cannot write at %d",
				c.TargetFile.RelativePath, info.Size(), c.FileOffset)
		}
	}

	stream, release, err := config.openStream(c.TargetFile.RelativePath, writeFlags)
	if err != nil {
		return err
	}
	defer release()

	if c.FileOffset == 0 {
		if err := stream.Truncate(0); err != nil {
			return newZiPatchError(KindIo, err, "truncate %s", c.TargetFile.RelativePath)
		}
	}
	if _, err := stream.Seek(c.FileOffset, io.SeekStart); err != nil {
		return newZiPatchError(KindIo, err, "seek %s to %d", c.TargetFile.RelativePath, c.FileOffset)
	}

	decompress := config.decompressor()
	for i, block := range c.CompressedData {
		if err := block.DecompressInto(stream, decompress); err != nil {
			return newZiPatchError(KindIo, err, "block %d of %s", i, c.TargetFile.RelativePath)
		}
	}
	return nil
}

func (c *SqpkFile) deleteFile(config *ZiPatchConfig) error {
	fullPath := c.TargetFile.FullPath(config.GamePath)
	config.forget(fullPath)

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) && config.IgnoreMissing {
			PushLogWarningf(c, "%s to delete is missing", c.TargetFile.RelativePath)
			return nil
		}
		return newZiPatchError(KindApply, err, "delete %s", c.TargetFile.RelativePath)
	}
	return nil
}

func (c *SqpkFile) removeAll(config *ZiPatchConfig) error {
	files, err := GetAllExpansionFiles(config.GamePath, c.ExpansionId)
	if err != nil {
		return newZiPatchError(KindIo, err, "list files of expansion %d", c.ExpansionId)
	}

	for _, file := range files {
		if isKeptByRemoveAll(file) {
			continue
		}
		config.forget(file)
		if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return newZiPatchError(KindIo, err, "delete %s", file)
		}
	}
	return nil
}

func isKeptByRemoveAll(path string) bool {
	for _, suffix := range removeAllKeepSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func (c *SqpkFile) String() string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:%d:%s", SqpkChunkType, SqpkFileCommand,
		c.Operation, c.FileOffset, c.FileSize, c.ExpansionId, c.TargetFile.RelativePath)
}
