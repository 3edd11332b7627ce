package internal

import "fmt"

const (
	SqpkAddDataCommand    = "A"
	SqpkDeleteDataCommand = "D"
	SqpkExpandDataCommand = "E"
)

// SqpkAddData writes a run of raw blocks into a data container and wipes
// the blocks that follow it
type SqpkAddData struct {
	ChunkHeader

	TargetFile *SqpackFile

	BlockOffset       int64
	BlockNumber       int64
	BlockDeleteNumber int64

	BlockData []byte
	// BlockDataSourceOffset is where BlockData starts in the patch stream
	BlockDataSourceOffset int64
}

func readSqpkAddData(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	start := r.Position()
	c := &SqpkAddData{ChunkHeader: header}

	r.Skip(3)
	c.TargetFile = readSqpackFile(r, SqpackDatFile)

	c.BlockOffset = int64(r.ReadUInt32BE()) << 7
	c.BlockNumber = int64(r.ReadUInt32BE()) << 7
	c.BlockDeleteNumber = int64(r.ReadUInt32BE()) << 7

	c.BlockDataSourceOffset = header.Offset + int64(r.Position())
	c.BlockData = r.ReadBytes(int(c.BlockNumber))

	r.SkipTo(start + header.Size)
	return c, r.Err()
}

func (c *SqpkAddData) ChunkType() string {
	return SqpkChunkType
}

func (c *SqpkAddData) Command() string {
	return SqpkAddDataCommand
}

func (c *SqpkAddData) ApplyChunk(config *ZiPatchConfig) error {
	if err := config.resolveContainer(c.TargetFile); err != nil {
		return err
	}

	stream, release, err := config.openStream(c.TargetFile.RelativePath, writeFlags)
	if err != nil {
		return err
	}
	defer release()

	if err := stream.WriteFromOffset(c.BlockData, c.BlockOffset); err != nil {
		return newZiPatchError(KindIo, err, "write %d bytes at %d in %s", len(c.BlockData), c.BlockOffset, c.TargetFile.RelativePath)
	}
	if err := stream.Wipe(c.BlockDeleteNumber); err != nil {
		return newZiPatchError(KindIo, err, "wipe %d bytes in %s", c.BlockDeleteNumber, c.TargetFile.RelativePath)
	}
	return nil
}

func (c *SqpkAddData) String() string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:%d", SqpkChunkType, SqpkAddDataCommand,
		c.TargetFile, c.BlockOffset, c.BlockNumber, c.BlockDeleteNumber)
}

// sqpkEmptyBlock replaces a run of blocks with an empty-block marker.
// Delete and expand commands share the layout and the effect.
type sqpkEmptyBlock struct {
	ChunkHeader

	TargetFile  *SqpackFile
	BlockOffset int64
	BlockNumber uint32
}

func (c *sqpkEmptyBlock) read(r *ChecksumBinaryReader, header ChunkHeader) error {
	start := r.Position()
	c.ChunkHeader = header

	r.Skip(3)
	c.TargetFile = readSqpackFile(r, SqpackDatFile)
	c.BlockOffset = int64(r.ReadUInt32BE()) << 7
	c.BlockNumber = r.ReadUInt32BE()
	r.Skip(4)

	r.SkipTo(start + header.Size)
	return r.Err()
}

func (c *sqpkEmptyBlock) ChunkType() string {
	return SqpkChunkType
}

func (c *sqpkEmptyBlock) ApplyChunk(config *ZiPatchConfig) error {
	if err := config.resolveContainer(c.TargetFile); err != nil {
		return err
	}

	stream, release, err := config.openStream(c.TargetFile.RelativePath, writeFlags)
	if err != nil {
		return err
	}
	defer release()

	if err := stream.WriteEmptyFileBlockAt(c.BlockOffset, c.BlockNumber); err != nil {
		return newZiPatchError(KindIo, err, "write empty block at %d in %s", c.BlockOffset, c.TargetFile.RelativePath)
	}
	return nil
}

func (c *sqpkEmptyBlock) describe(command string) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d", SqpkChunkType, command, c.TargetFile, c.BlockOffset, c.BlockNumber)
}

// SqpkDeleteData frees blocks in a data container
type SqpkDeleteData struct {
	sqpkEmptyBlock
}

func readSqpkDeleteData(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	c := &SqpkDeleteData{}
	return c, c.read(r, header)
}

func (c *SqpkDeleteData) Command() string {
	return SqpkDeleteDataCommand
}

func (c *SqpkDeleteData) String() string {
	return c.describe(SqpkDeleteDataCommand)
}

// SqpkExpandData reserves blocks in a data container
type SqpkExpandData struct {
	sqpkEmptyBlock
}

func readSqpkExpandData(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	c := &SqpkExpandData{}
	return c, c.read(r, header)
}

func (c *SqpkExpandData) Command() string {
	return SqpkExpandDataCommand
}

func (c *SqpkExpandData) String() string {
	return c.describe(SqpkExpandDataCommand)
}
