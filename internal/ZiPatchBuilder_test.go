package internal

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
)

// patchBuilder assembles patch files frame by frame
type patchBuilder struct {
	buf bytes.Buffer
}

func newPatchBuilder() *patchBuilder {
	b := &patchBuilder{}
	for _, word := range zipatchMagic {
		b.buf.Write(binary.LittleEndian.AppendUint32(nil, word))
	}
	return b
}

func (b *patchBuilder) Bytes() []byte {
	return b.buf.Bytes()
}

// chunk appends a frame with a correct checksum
func (b *patchBuilder) chunk(tag string, body []byte) *patchBuilder {
	frame := append([]byte(tag), body...)
	b.buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(body))))
	b.buf.Write(frame)
	b.buf.Write(binary.BigEndian.AppendUint32(nil, crc32.ChecksumIEEE(frame)))
	return b
}

// sqpk appends a SQPK frame whose inner size matches the outer one
func (b *patchBuilder) sqpk(command byte, body []byte) *patchBuilder {
	inner := binary.BigEndian.AppendUint32(nil, uint32(len(body)+sqpkPrefixSize))
	inner = append(inner, command)
	inner = append(inner, body...)
	return b.chunk(SqpkChunkType, inner)
}

func (b *patchBuilder) fileHeaderV2(patchType string, entryFiles uint32) *patchBuilder {
	body := binary.LittleEndian.AppendUint32(nil, 2<<16)
	body = append(body, patchType...)
	body = binary.BigEndian.AppendUint32(body, entryFiles)
	return b.chunk(FileHeaderChunkType, body)
}

func (b *patchBuilder) fileHeaderV3(patchType string, repository uint32, counts ZiPatchCommandCounts) *patchBuilder {
	body := binary.LittleEndian.AppendUint32(nil, 3<<16)
	body = append(body, patchType...)
	body = binary.BigEndian.AppendUint32(body, 7)
	body = binary.BigEndian.AppendUint32(body, counts.AddDirectories)
	body = binary.BigEndian.AppendUint32(body, counts.DeleteDirectories)
	body = binary.BigEndian.AppendUint32(body, 0x1000)
	body = binary.BigEndian.AppendUint32(body, 0)
	body = binary.BigEndian.AppendUint32(body, 1)
	body = binary.BigEndian.AppendUint32(body, repository)
	body = binary.BigEndian.AppendUint32(body, counts.TotalCommands)
	body = binary.BigEndian.AppendUint32(body, counts.SqpkAddCommands)
	body = binary.BigEndian.AppendUint32(body, counts.SqpkDeleteCommands)
	body = binary.BigEndian.AppendUint32(body, counts.SqpkExpandCommands)
	body = binary.BigEndian.AppendUint32(body, counts.SqpkHeaderCommands)
	body = binary.BigEndian.AppendUint32(body, counts.SqpkFileCommands)
	// real headers pad the body out to a fixed size
	body = append(body, make([]byte, 0xB8)...)
	return b.chunk(FileHeaderChunkType, body)
}

func (b *patchBuilder) applyOption(kind ApplyOptionKind, value bool) *patchBuilder {
	body := binary.BigEndian.AppendUint32(nil, uint32(kind))
	body = binary.BigEndian.AppendUint32(body, 4)
	var v uint32
	if value {
		v = 1
	}
	body = binary.BigEndian.AppendUint32(body, v)
	return b.chunk(ApplyOptionChunkType, body)
}

func dirNameBody(name string) []byte {
	body := binary.BigEndian.AppendUint32(nil, uint32(len(name)))
	return append(body, name...)
}

func (b *patchBuilder) addDirectory(name string) *patchBuilder {
	return b.chunk(AddDirectoryChunkType, dirNameBody(name))
}

func (b *patchBuilder) deleteDirectory(name string) *patchBuilder {
	return b.chunk(DeleteDirectoryChunkType, dirNameBody(name))
}

func (b *patchBuilder) endOfFile() *patchBuilder {
	return b.chunk(EndOfFileChunkType, nil)
}

func sqpackRef(mainId, subId uint16, fileId uint32) []byte {
	ref := binary.BigEndian.AppendUint16(nil, mainId)
	ref = binary.BigEndian.AppendUint16(ref, subId)
	return binary.BigEndian.AppendUint32(ref, fileId)
}

func (b *patchBuilder) targetInfo(platform PlatformId, region int16) *patchBuilder {
	body := make([]byte, 3)
	body = binary.BigEndian.AppendUint16(body, uint16(platform))
	body = binary.BigEndian.AppendUint16(body, uint16(region))
	body = binary.BigEndian.AppendUint16(body, 0)
	body = binary.BigEndian.AppendUint16(body, 1)
	body = binary.LittleEndian.AppendUint64(body, 4096)
	body = binary.LittleEndian.AppendUint64(body, 3)
	return b.sqpk('T', body)
}

// addData writes data (a whole number of 128-byte blocks) at blockOffset bytes
func (b *patchBuilder) addData(mainId, subId uint16, fileId uint32, blockOffset int64, data []byte, deleteBytes int64) *patchBuilder {
	body := make([]byte, 3)
	body = append(body, sqpackRef(mainId, subId, fileId)...)
	body = binary.BigEndian.AppendUint32(body, uint32(blockOffset>>7))
	body = binary.BigEndian.AppendUint32(body, uint32(len(data)>>7))
	body = binary.BigEndian.AppendUint32(body, uint32(deleteBytes>>7))
	body = append(body, data...)
	return b.sqpk('A', body)
}

func emptyBlockBody(mainId, subId uint16, fileId uint32, blockOffset int64, blockCount uint32) []byte {
	body := make([]byte, 3)
	body = append(body, sqpackRef(mainId, subId, fileId)...)
	body = binary.BigEndian.AppendUint32(body, uint32(blockOffset>>7))
	body = binary.BigEndian.AppendUint32(body, blockCount)
	return append(body, make([]byte, 4)...)
}

func (b *patchBuilder) deleteData(mainId, subId uint16, fileId uint32, blockOffset int64, blockCount uint32) *patchBuilder {
	return b.sqpk('D', emptyBlockBody(mainId, subId, fileId, blockOffset, blockCount))
}

func (b *patchBuilder) expandData(mainId, subId uint16, fileId uint32, blockOffset int64, blockCount uint32) *patchBuilder {
	return b.sqpk('E', emptyBlockBody(mainId, subId, fileId, blockOffset, blockCount))
}

func (b *patchBuilder) header(fileKind TargetFileKind, headerKind TargetHeaderKind, mainId, subId uint16, fileId uint32, data []byte) *patchBuilder {
	body := []byte{byte(fileKind), byte(headerKind), 0}
	body = append(body, sqpackRef(mainId, subId, fileId)...)
	blob := make([]byte, sqpackHeaderSize)
	copy(blob, data)
	body = append(body, blob...)
	return b.sqpk('H', body)
}

func (b *patchBuilder) file(operation SqpkFileOperation, offset int64, expansionId uint16, path string, blocks ...[]byte) *patchBuilder {
	name := append([]byte(path), 0)

	var size uint64
	var payload []byte
	for _, block := range blocks {
		payload = append(payload, block...)
		size += uint64(binary.LittleEndian.Uint32(block[12:]))
	}

	body := []byte{byte(operation), 0, 0}
	body = binary.BigEndian.AppendUint64(body, uint64(offset))
	body = binary.BigEndian.AppendUint64(body, size)
	body = binary.BigEndian.AppendUint32(body, uint32(len(name)))
	body = binary.BigEndian.AppendUint16(body, expansionId)
	body = append(body, 0, 0)
	body = append(body, name...)
	body = append(body, payload...)
	return b.sqpk('F', body)
}

func blockLength(size int) int {
	return (size + 143) &^ 127
}

// storedBlock encodes data as an uncompressed file block
func storedBlock(data []byte) []byte {
	block := binary.LittleEndian.AppendUint32(nil, sqpkBlockHeaderSize)
	block = binary.LittleEndian.AppendUint32(block, 0)
	block = binary.LittleEndian.AppendUint32(block, uncompressedBlockMarker)
	block = binary.LittleEndian.AppendUint32(block, uint32(len(data)))
	block = append(block, data...)
	return append(block, make([]byte, blockLength(len(data))-len(block))...)
}

// deflatedBlock encodes data as a raw-deflate file block
func deflatedBlock(t *testing.T, data []byte) []byte {
	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.BestCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	block := binary.LittleEndian.AppendUint32(nil, sqpkBlockHeaderSize)
	block = binary.LittleEndian.AppendUint32(block, 0)
	block = binary.LittleEndian.AppendUint32(block, uint32(compressed.Len()))
	block = binary.LittleEndian.AppendUint32(block, uint32(len(data)))
	block = append(block, compressed.Bytes()...)
	return append(block, make([]byte, blockLength(compressed.Len())-len(block))...)
}

func filledBytes(n int, value byte) []byte {
	return bytes.Repeat([]byte{value}, n)
}
