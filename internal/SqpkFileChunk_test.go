package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedSqpkBlock(data []byte) *SqpkCompressedBlock {
	return &SqpkCompressedBlock{
		HeaderSize:       sqpkBlockHeaderSize,
		CompressedSize:   uncompressedBlockMarker,
		DecompressedSize: int32(len(data)),
		CompressedBlock:  data,
	}
}

func writeGameFile(t *testing.T, gamePath, rel string, data []byte) string {
	t.Helper()
	full := filepath.Join(gamePath, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
	return full
}

func TestSqpkFileAddFile(t *testing.T) {
	config := NewZiPatchConfig(t.TempDir())
	config.OpenTries = 1
	full := writeGameFile(t, config.GamePath, "game/boot.cfg", []byte("stale contents that get truncated"))

	chunk := &SqpkFile{
		Operation:      SqpkFileAddFile,
		TargetFile:     &SqexFile{RelativePath: "game/boot.cfg"},
		CompressedData: []*SqpkCompressedBlock{storedSqpkBlock([]byte("hello ")), storedSqpkBlock([]byte("world"))},
	}
	require.NoError(t, chunk.ApplyChunk(config))

	data, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	chunk.FileOffset = 6
	chunk.CompressedData = []*SqpkCompressedBlock{storedSqpkBlock([]byte("there"))}
	require.NoError(t, chunk.ApplyChunk(config))

	data, err = os.ReadFile(full)
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(data))
}

func TestSqpkFileAddFileAtOffset(t *testing.T) {
	tests := []struct {
		name              string
		existing          []byte
		ignoreMissing     bool
		ignoreOldMismatch bool
		wantErr           bool
		want              []byte
	}{
		{
			name:    "missing file",
			wantErr: true,
		},
		{
			name:          "missing file tolerated",
			ignoreMissing: true,
			want:          append(make([]byte, 8), "tail"...),
		},
		{
			name:     "file shorter than offset",
			existing: []byte("abc"),
			wantErr:  true,
		},
		{
			name:              "file shorter than offset tolerated",
			existing:          []byte("abc"),
			ignoreOldMismatch: true,
			want:              append([]byte("abc\x00\x00\x00\x00\x00"), "tail"...),
		},
		{
			name:     "file long enough",
			existing: []byte("abcdefghij"),
			want:     []byte("abcdefghtail"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewZiPatchConfig(t.TempDir())
			config.OpenTries = 1
			config.IgnoreMissing = tt.ignoreMissing
			config.IgnoreOldMismatch = tt.ignoreOldMismatch

			full := filepath.Join(config.GamePath, "data", "file.bin")
			if tt.existing != nil {
				writeGameFile(t, config.GamePath, "data/file.bin", tt.existing)
			}

			chunk := &SqpkFile{
				Operation:      SqpkFileAddFile,
				FileOffset:     8,
				TargetFile:     &SqexFile{RelativePath: "data/file.bin"},
				CompressedData: []*SqpkCompressedBlock{storedSqpkBlock([]byte("tail"))},
			}
			err := chunk.ApplyChunk(config)
			if tt.wantErr {
				assert.True(t, IsErrorKind(err, KindApply), "got %v", err)
				return
			}
			require.NoError(t, err)

			data, err := os.ReadFile(full)
			require.NoError(t, err)
			assert.Equal(t, tt.want, data)
		})
	}
}

func TestSqpkFileDeleteFile(t *testing.T) {
	config := NewZiPatchConfig(t.TempDir())
	config.Store = NewSqexFileStreamStore()
	defer config.Store.Close()

	full := writeGameFile(t, config.GamePath, "sqpack/ffxiv/old.dat0", []byte("x"))
	_, err := config.Store.GetStream(full, writeFlags, 1, 0)
	require.NoError(t, err)

	chunk := &SqpkFile{Operation: SqpkFileDeleteFile, TargetFile: &SqexFile{RelativePath: "sqpack/ffxiv/old.dat0"}}
	require.NoError(t, chunk.ApplyChunk(config))
	assert.NoFileExists(t, full)
	assert.Equal(t, 0, config.Store.Len())

	err = chunk.ApplyChunk(config)
	assert.True(t, IsErrorKind(err, KindApply), "got %v", err)

	config.IgnoreMissing = true
	assert.NoError(t, chunk.ApplyChunk(config))
}

func TestSqpkFileRemoveAll(t *testing.T) {
	config := NewZiPatchConfig(t.TempDir())

	removed := []string{
		writeGameFile(t, config.GamePath, "sqpack/ex1/020100.win32.dat0", nil),
		writeGameFile(t, config.GamePath, "sqpack/ex1/020100.win32.index", nil),
		writeGameFile(t, config.GamePath, "movie/ex1/00004.bk2", nil),
	}
	kept := []string{
		writeGameFile(t, config.GamePath, "sqpack/ex1/020100.win32.var", nil),
		writeGameFile(t, config.GamePath, "movie/ex1/00000.bk2", nil),
		writeGameFile(t, config.GamePath, "movie/ex1/00003.bk2", nil),
		writeGameFile(t, config.GamePath, "sqpack/ex2/030100.win32.dat0", nil),
	}

	chunk := &SqpkFile{Operation: SqpkFileRemoveAll, ExpansionId: 1, TargetFile: &SqexFile{}}
	require.NoError(t, chunk.ApplyChunk(config))

	for _, path := range removed {
		assert.NoFileExists(t, path)
	}
	for _, path := range kept {
		assert.FileExists(t, path)
	}
}

func TestSqpkFileMakeDirTree(t *testing.T) {
	config := NewZiPatchConfig(t.TempDir())

	chunk := &SqpkFile{Operation: SqpkFileMakeDirTree, TargetFile: &SqexFile{RelativePath: "a/b/c"}}
	require.NoError(t, chunk.ApplyChunk(config))
	assert.DirExists(t, filepath.Join(config.GamePath, "a", "b", "c"))
}

func TestSqpkFileOperationString(t *testing.T) {
	assert.Equal(t, "RemoveAll", SqpkFileRemoveAll.String())
	assert.Equal(t, "SqpkFileOperation(Z)", SqpkFileOperation('Z').String())
}
