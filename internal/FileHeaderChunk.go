package internal

import "fmt"

const FileHeaderChunkType = "FHDR"

// FileHeaderChunk describes the patch as a whole. Version 3 headers also carry
// the patch's own tally of the commands it contains.
type FileHeaderChunk struct {
	ChunkHeader

	Version    uint8
	PatchType  string
	EntryFiles uint32

	AddDirectories    uint32
	DeleteDirectories uint32
	DeleteDataSize    int64
	MinorVersion      uint32
	RepositoryName    uint32

	// CommandCounts is nil for headers older than version 3
	CommandCounts *ZiPatchCommandCounts
}

func readFileHeaderChunk(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	start := r.Position()
	c := &FileHeaderChunk{ChunkHeader: header}

	c.Version = uint8(r.ReadUInt32() >> 16)
	c.PatchType = r.ReadFixedLengthString(4)
	c.EntryFiles = r.ReadUInt32BE()

	if c.Version == 3 {
		c.AddDirectories = r.ReadUInt32BE()
		c.DeleteDirectories = r.ReadUInt32BE()
		low := r.ReadUInt32BE()
		high := r.ReadUInt32BE()
		c.DeleteDataSize = int64(uint64(low) | uint64(high)<<32)
		c.MinorVersion = r.ReadUInt32BE()
		c.RepositoryName = r.ReadUInt32BE()
		c.CommandCounts = &ZiPatchCommandCounts{
			TotalCommands:      r.ReadUInt32BE(),
			SqpkAddCommands:    r.ReadUInt32BE(),
			SqpkDeleteCommands: r.ReadUInt32BE(),
			SqpkExpandCommands: r.ReadUInt32BE(),
			SqpkHeaderCommands: r.ReadUInt32BE(),
			SqpkFileCommands:   r.ReadUInt32BE(),
		}
		c.CommandCounts.AddDirectories = c.AddDirectories
		c.CommandCounts.DeleteDirectories = c.DeleteDirectories
	}

	r.SkipTo(start + header.Size)
	return c, r.Err()
}

func (c *FileHeaderChunk) ChunkType() string {
	return FileHeaderChunkType
}

func (c *FileHeaderChunk) String() string {
	return fmt.Sprintf("%s:V%d:%08x", FileHeaderChunkType, c.Version, c.RepositoryName)
}
