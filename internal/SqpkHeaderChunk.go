package internal

import "fmt"

const SqpkHeaderCommand = "H"

// sqpackHeaderSize is the size of every container header blob
const sqpackHeaderSize = 1024

// TargetFileKind is the container kind a header command targets
type TargetFileKind byte

const (
	TargetFileKindDat   TargetFileKind = 'D'
	TargetFileKindIndex TargetFileKind = 'I'
)

// TargetHeaderKind selects which of the two header slots is written
type TargetHeaderKind byte

const (
	TargetHeaderKindVersion TargetHeaderKind = 'V'
	TargetHeaderKindIndex   TargetHeaderKind = 'I'
	TargetHeaderKindData    TargetHeaderKind = 'D'
)

// SqpkHeader replaces one of the 1024-byte header slots at the start of a container
type SqpkHeader struct {
	ChunkHeader

	FileKind   TargetFileKind
	HeaderKind TargetHeaderKind
	TargetFile *SqpackFile

	HeaderData []byte
	// HeaderDataSourceOffset is where HeaderData starts in the patch stream
	HeaderDataSourceOffset int64
}

func readSqpkHeader(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	start := r.Position()
	c := &SqpkHeader{ChunkHeader: header}

	c.FileKind = TargetFileKind(r.ReadUInt8())
	c.HeaderKind = TargetHeaderKind(r.ReadUInt8())
	r.Skip(1)

	kind := SqpackIndexFile
	if c.FileKind == TargetFileKindDat {
		kind = SqpackDatFile
	}
	c.TargetFile = readSqpackFile(r, kind)

	c.HeaderDataSourceOffset = header.Offset + int64(r.Position())
	c.HeaderData = r.ReadBytes(sqpackHeaderSize)

	r.SkipTo(start + header.Size)
	return c, r.Err()
}

func (c *SqpkHeader) ChunkType() string {
	return SqpkChunkType
}

func (c *SqpkHeader) Command() string {
	return SqpkHeaderCommand
}

// HeaderOffset returns where the blob lands: the version slot is at the very start
func (c *SqpkHeader) HeaderOffset() int64 {
	if c.HeaderKind == TargetHeaderKindVersion {
		return 0
	}
	return sqpackHeaderSize
}

func (c *SqpkHeader) ApplyChunk(config *ZiPatchConfig) error {
	if err := config.resolveContainer(c.TargetFile); err != nil {
		return err
	}

	stream, release, err := config.openStream(c.TargetFile.RelativePath, writeFlags)
	if err != nil {
		return err
	}
	defer release()

	if err := stream.WriteFromOffset(c.HeaderData, c.HeaderOffset()); err != nil {
		return newZiPatchError(KindIo, err, "write header in %s", c.TargetFile.RelativePath)
	}
	return nil
}

func (c *SqpkHeader) String() string {
	return fmt.Sprintf("%s:%s:%c:%c:%s", SqpkChunkType, SqpkHeaderCommand, c.FileKind, c.HeaderKind, c.TargetFile)
}
