package internal

import "fmt"

const ApplyOptionChunkType = "APLY"

// ApplyOptionKind names the policy flag an APLY chunk sets
type ApplyOptionKind uint32

const (
	ApplyOptionIgnoreMissing     ApplyOptionKind = 1
	ApplyOptionIgnoreOldMismatch ApplyOptionKind = 2
)

func (k ApplyOptionKind) String() string {
	switch k {
	case ApplyOptionIgnoreMissing:
		return "IgnoreMissing"
	case ApplyOptionIgnoreOldMismatch:
		return "IgnoreOldMismatch"
	default:
		return fmt.Sprintf("ApplyOptionKind(%d)", uint32(k))
	}
}

// ApplyOptionChunk toggles one of the config's policy flags
type ApplyOptionChunk struct {
	ChunkHeader

	OptionKind  ApplyOptionKind
	OptionValue bool
}

func readApplyOptionChunk(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	start := r.Position()
	c := &ApplyOptionChunk{ChunkHeader: header}

	c.OptionKind = ApplyOptionKind(r.ReadUInt32BE())
	r.Skip(4)
	value := r.ReadUInt32BE() != 0

	// unknown kinds decode as false
	switch c.OptionKind {
	case ApplyOptionIgnoreMissing, ApplyOptionIgnoreOldMismatch:
		c.OptionValue = value
	}

	r.SkipTo(start + header.Size)
	return c, r.Err()
}

func (c *ApplyOptionChunk) ChunkType() string {
	return ApplyOptionChunkType
}

func (c *ApplyOptionChunk) ApplyChunk(config *ZiPatchConfig) error {
	switch c.OptionKind {
	case ApplyOptionIgnoreMissing:
		config.IgnoreMissing = c.OptionValue
	case ApplyOptionIgnoreOldMismatch:
		config.IgnoreOldMismatch = c.OptionValue
	default:
		PushLogWarningf(c, "ignoring unknown apply option %d", uint32(c.OptionKind))
	}
	return nil
}

func (c *ApplyOptionChunk) String() string {
	return fmt.Sprintf("%s:%s:%t", ApplyOptionChunkType, c.OptionKind, c.OptionValue)
}
