package internal

const (
	EndOfFileChunkType = "EOF_"
	XXXXChunkType      = "XXXX"
)

// EndOfFileChunk terminates the chunk sequence
type EndOfFileChunk struct {
	ChunkHeader
}

func readEndOfFileChunk(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	r.SkipTo(r.Position() + header.Size)
	return &EndOfFileChunk{ChunkHeader: header}, r.Err()
}

func (c *EndOfFileChunk) ChunkType() string {
	return EndOfFileChunkType
}

func (c *EndOfFileChunk) String() string {
	return EndOfFileChunkType
}

// XXXXChunk is a placeholder chunk whose body is skipped
type XXXXChunk struct {
	ChunkHeader
}

func readXXXXChunk(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	r.SkipTo(r.Position() + header.Size)
	return &XXXXChunk{ChunkHeader: header}, r.Err()
}

func (c *XXXXChunk) ChunkType() string {
	return XXXXChunkType
}

func (c *XXXXChunk) String() string {
	return XXXXChunkType
}
