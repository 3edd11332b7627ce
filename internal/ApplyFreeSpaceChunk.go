package internal

import "fmt"

const ApplyFreeSpaceChunkType = "APFS"

// ApplyFreeSpaceChunk is a legacy chunk carrying two counters. It has no effect.
type ApplyFreeSpaceChunk struct {
	ChunkHeader

	UnknownFieldA int64
	UnknownFieldB int64
}

func readApplyFreeSpaceChunk(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	start := r.Position()
	c := &ApplyFreeSpaceChunk{ChunkHeader: header}

	c.UnknownFieldA = r.ReadInt64BE()
	c.UnknownFieldB = r.ReadInt64BE()

	r.SkipTo(start + header.Size)
	return c, r.Err()
}

func (c *ApplyFreeSpaceChunk) ChunkType() string {
	return ApplyFreeSpaceChunkType
}

func (c *ApplyFreeSpaceChunk) String() string {
	return fmt.Sprintf("%s:%d:%d", ApplyFreeSpaceChunkType, c.UnknownFieldA, c.UnknownFieldB)
}
