package internal

const SqpkChunkType = "SQPK"

// sqpkPrefixSize is the inner size field plus the command tag
const sqpkPrefixSize = 5

// SqpkCommand is a decoded SQPK sub-command
type SqpkCommand interface {
	Chunk
	// Command returns the one-character sub-command tag
	Command() string
}

// sqpkCommandReaderFunc decodes a sub-command body; header.Size is the body size
type sqpkCommandReaderFunc func(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error)

var sqpkCommandTypes = map[string]sqpkCommandReaderFunc{
	SqpkAddDataCommand:    readSqpkAddData,
	SqpkDeleteDataCommand: readSqpkDeleteData,
	SqpkExpandDataCommand: readSqpkExpandData,
	SqpkFileCommand:       readSqpkFile,
	SqpkHeaderCommand:     readSqpkHeader,
	SqpkIndexCommand:      readSqpkIndex,
	SqpkTargetInfoCommand: readSqpkTargetInfo,
	SqpkPatchInfoCommand:  readSqpkPatchInfo,
}

func readSqpkChunk(r *ChecksumBinaryReader, header ChunkHeader) (Chunk, error) {
	innerSize := r.ReadInt32BE()
	command := r.ReadFixedLengthString(1)
	if err := r.Err(); err != nil {
		return nil, err
	}

	if int(innerSize) != header.Size {
		return nil, newZiPatchError(KindSizeMismatch, nil,
			"sqpk chunk at %d: inner size %d does not match chunk size %d", header.Offset, innerSize, header.Size)
	}

	read, ok := sqpkCommandTypes[command]
	if !ok {
		return nil, newZiPatchError(KindUnknownCommand, nil, "unknown sqpk command %q at %d", command, header.Offset)
	}

	header.Size = int(innerSize) - sqpkPrefixSize
	return read(r, header)
}
