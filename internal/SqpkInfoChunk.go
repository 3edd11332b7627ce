package internal

import "fmt"

const (
	SqpkTargetInfoCommand = "T"
	SqpkPatchInfoCommand  = "X"
	SqpkIndexCommand      = "I"
)

// RegionGlobal is the region id of the global client
const RegionGlobal int16 = -1

// SqpkTargetInfo names the platform and region the patch was built for.
// Applying it selects the platform every later container path resolves against.
type SqpkTargetInfo struct {
	ChunkHeader

	Platform        PlatformId
	Region          int16
	IsDebug         bool
	Version         uint16
	DeletedDataSize uint64
	SeekCount       uint64
}

func readSqpkTargetInfo(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	start := r.Position()
	c := &SqpkTargetInfo{ChunkHeader: header}

	r.Skip(3)
	c.Platform = PlatformId(r.ReadUInt16BE())
	c.Region = r.ReadInt16BE()
	c.IsDebug = r.ReadInt16BE() != 0
	c.Version = r.ReadUInt16BE()
	c.DeletedDataSize = r.ReadUInt64()
	c.SeekCount = r.ReadUInt64()

	r.SkipTo(start + header.Size)
	return c, r.Err()
}

func (c *SqpkTargetInfo) ChunkType() string {
	return SqpkChunkType
}

func (c *SqpkTargetInfo) Command() string {
	return SqpkTargetInfoCommand
}

func (c *SqpkTargetInfo) ApplyChunk(config *ZiPatchConfig) error {
	config.SetPlatform(c.Platform)
	return nil
}

func (c *SqpkTargetInfo) String() string {
	return fmt.Sprintf("%s:%s:%s:%d:%t:%d:%d:%d", SqpkChunkType, SqpkTargetInfoCommand,
		c.Platform, c.Region, c.IsDebug, c.Version, c.DeletedDataSize, c.SeekCount)
}

// SqpkPatchInfo reports the install size of the patched game. It has no effect.
type SqpkPatchInfo struct {
	ChunkHeader

	Status      uint8
	Version     uint8
	InstallSize uint64
}

func readSqpkPatchInfo(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	start := r.Position()
	c := &SqpkPatchInfo{ChunkHeader: header}

	c.Status = r.ReadUInt8()
	c.Version = r.ReadUInt8()
	r.Skip(1)
	c.InstallSize = r.ReadUInt64BE()

	r.SkipTo(start + header.Size)
	return c, r.Err()
}

func (c *SqpkPatchInfo) ChunkType() string {
	return SqpkChunkType
}

func (c *SqpkPatchInfo) Command() string {
	return SqpkPatchInfoCommand
}

func (c *SqpkPatchInfo) String() string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", SqpkChunkType, SqpkPatchInfoCommand, c.Status, c.Version, c.InstallSize)
}

// IndexCommandKind is the operation an index command describes
type IndexCommandKind byte

const (
	IndexCommandAdd    IndexCommandKind = 'A'
	IndexCommandDelete IndexCommandKind = 'D'
)

// SqpkIndex describes an index entry change. Current clients rebuild indexes
// from header commands, so it has no effect.
type SqpkIndex struct {
	ChunkHeader

	IndexCommand IndexCommandKind
	IsSynonym    bool
	TargetFile   *SqpackFile
	FileHash     uint64
	BlockOffset  uint32
	BlockNumber  uint32
}

func readSqpkIndex(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	start := r.Position()
	c := &SqpkIndex{ChunkHeader: header}

	c.IndexCommand = IndexCommandKind(r.ReadUInt8())
	c.IsSynonym = r.ReadBool()
	r.Skip(1)
	c.TargetFile = readSqpackFile(r, SqpackIndexFile)
	c.FileHash = r.ReadUInt64BE()
	c.BlockOffset = r.ReadUInt32BE()
	c.BlockNumber = r.ReadUInt32BE()

	r.SkipTo(start + header.Size)
	return c, r.Err()
}

func (c *SqpkIndex) ChunkType() string {
	return SqpkChunkType
}

func (c *SqpkIndex) Command() string {
	return SqpkIndexCommand
}

func (c *SqpkIndex) String() string {
	return fmt.Sprintf("%s:%s:%c:%t:%s:%016x:%d:%d", SqpkChunkType, SqpkIndexCommand,
		c.IndexCommand, c.IsSynonym, c.TargetFile, c.FileHash, c.BlockOffset, c.BlockNumber)
}
