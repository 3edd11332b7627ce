package internal

import (
	"errors"
	"io/fs"
	"os"
)

const (
	AddDirectoryChunkType    = "ADIR"
	DeleteDirectoryChunkType = "DELD"
)

// AddDirectoryChunk creates a directory under the installation root
type AddDirectoryChunk struct {
	ChunkHeader

	DirName string
}

func readDirName(r *ChecksumBinaryReader, size int) string {
	start := r.Position()
	length := r.ReadUInt32BE()
	name := r.ReadFixedLengthString(int(length))
	r.SkipTo(start + size)
	return name
}

func readAddDirectoryChunk(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	c := &AddDirectoryChunk{ChunkHeader: header}
	c.DirName = readDirName(r, header.Size)
	return c, r.Err()
}

func (c *AddDirectoryChunk) ChunkType() string {
	return AddDirectoryChunkType
}

func (c *AddDirectoryChunk) ApplyChunk(config *ZiPatchConfig) error {
	if err := os.MkdirAll(config.FullPath(c.DirName), 0o755); err != nil {
		return newZiPatchError(KindIo, err, "create directory %s", c.DirName)
	}
	return nil
}

func (c *AddDirectoryChunk) String() string {
	return AddDirectoryChunkType + ":" + c.DirName
}

// DeleteDirectoryChunk removes an empty directory under the installation root
type DeleteDirectoryChunk struct {
	ChunkHeader

	DirName string
}

func readDeleteDirectoryChunk(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	c := &DeleteDirectoryChunk{ChunkHeader: header}
	c.DirName = readDirName(r, header.Size)
	return c, r.Err()
}

func (c *DeleteDirectoryChunk) ChunkType() string {
	return DeleteDirectoryChunkType
}

// ApplyChunk removes the directory. A missing directory is tolerated under
// IgnoreMissing; one that still has entries is left alone under IgnoreOldMismatch.
func (c *DeleteDirectoryChunk) ApplyChunk(config *ZiPatchConfig) error {
	fullPath := config.FullPath(c.DirName)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && config.IgnoreMissing {
			PushLogWarningf(c, "directory %s to delete is missing", c.DirName)
			return nil
		}
		return newZiPatchError(KindApply, err, "delete directory %s", c.DirName)
	}

	if len(entries) > 0 {
		if config.IgnoreOldMismatch {
			PushLogWarningf(c, "directory %s to delete still has %d entries", c.DirName, len(entries))
			return nil
		}
		return newZiPatchError(KindApply, nil, "directory %s to delete is not empty", c.DirName)
	}

	if err := os.Remove(fullPath); err != nil {
		return newZiPatchError(KindIo, err, "delete directory %s", c.DirName)
	}
	return nil
}

func (c *DeleteDirectoryChunk) String() string {
	return DeleteDirectoryChunkType + ":" + c.DirName
}
