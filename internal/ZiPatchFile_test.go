package internal

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestPatch(t *testing.T, patch []byte) *ZiPatchFile {
	t.Helper()
	file, err := NewZiPatchFile(bytes.NewReader(patch))
	require.NoError(t, err)
	t.Cleanup(func() { file.Close() })
	return file
}

func collectTypes(t *testing.T, file *ZiPatchFile) []string {
	t.Helper()
	var types []string
	for chunk, err := range file.Chunks() {
		require.NoError(t, err)
		types = append(types, chunk.String())
	}
	return types
}

func TestNewZiPatchFileSignature(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		patch := newPatchBuilder().fileHeaderV2("DIFF", 0).endOfFile().Bytes()
		patch[0] ^= 0xFF

		_, err := NewZiPatchFile(bytes.NewReader(patch))
		assert.True(t, IsErrorKind(err, KindBadMagic))
	})

	t.Run("short signature", func(t *testing.T) {
		_, err := NewZiPatchFile(bytes.NewReader([]byte{0x91, 0x5A}))
		assert.True(t, IsErrorKind(err, KindBadMagic))
	})

	t.Run("no file header", func(t *testing.T) {
		_, err := NewZiPatchFile(bytes.NewReader(newPatchBuilder().addDirectory("a").endOfFile().Bytes()))
		assert.True(t, IsErrorKind(err, KindBadMagic))
	})
}

func TestZiPatchFileChunks(t *testing.T) {
	file := openTestPatch(t, newPatchBuilder().fileHeaderV2("DIFF", 0).endOfFile().Bytes())

	require.NotNil(t, file.Header())
	assert.True(t, file.Seekable())
	assert.Equal(t, []string{"FHDR:V2:00000000", "EOF_"}, collectTypes(t, file))

	_, err := file.NextChunk()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, file.Rewind())
	assert.Len(t, collectTypes(t, file), 2)
}

func TestZiPatchFileStopsAtEndOfFile(t *testing.T) {
	// anything after the end-of-file chunk is never decoded
	patch := newPatchBuilder().fileHeaderV2("DIFF", 0).endOfFile().chunk("ABCD", nil).Bytes()
	file := openTestPatch(t, patch)

	assert.Equal(t, []string{"FHDR:V2:00000000", "EOF_"}, collectTypes(t, file))
}

func TestZiPatchFileChunksStopsOnError(t *testing.T) {
	patch := newPatchBuilder().fileHeaderV2("DIFF", 0).chunk("ABCD", nil).endOfFile().Bytes()
	file := openTestPatch(t, patch)

	var seen int
	var lastErr error
	for chunk, err := range file.Chunks() {
		if err != nil {
			lastErr = err
			continue
		}
		seen++
		assert.NotNil(t, chunk)
	}
	assert.Equal(t, 1, seen)
	assert.True(t, IsErrorKind(lastErr, KindUnknownChunk))
}

func changeSetPatch() []byte {
	return newPatchBuilder().
		fileHeaderV3("DIFF", 1, ZiPatchCommandCounts{}).
		addDirectory("foo/").
		file(SqpkFileAddFile, 0, 0, "foo/bar.dat", storedBlock([]byte("v1"))).
		file(SqpkFileAddFile, 0, 0, "foo/new.dat", storedBlock([]byte("new"))).
		file(SqpkFileAddFile, 128, 0, "foo/bar.dat", storedBlock([]byte("v2"))).
		file(SqpkFileDeleteFile, 0, 0, "foo/old.dat").
		file(SqpkFileMakeDirTree, 0, 0, "movie/ffxiv").
		file(SqpkFileRemoveAll, 0, 1, "").
		deleteDirectory("gone/").
		targetInfo(PlatformWin32, RegionGlobal).
		addData(0x0a, 0, 0, 0, filledBytes(128, 1), 0).
		header(TargetFileKindIndex, TargetHeaderKindVersion, 0x0a, 0, 0, nil).
		endOfFile().
		Bytes()
}

func TestCalculateChangedFiles(t *testing.T) {
	file := openTestPatch(t, changeSetPatch())

	changes, err := file.CalculateChangedFiles(NewZiPatchConfig(""))
	require.NoError(t, err)

	assert.Equal(t, []string{"foo/", "foo/new.dat", "movie/ffxiv"}, changes.Added)
	assert.Equal(t, []string{"foo/old.dat", "gone/", "movie/ex1/", "sqpack/ex1/"}, changes.Deleted)
	assert.Equal(t, []string{
		"foo/bar.dat",
		"sqpack/ffxiv/0a0000.win32.dat0",
		"sqpack/ffxiv/0a0000.win32.index",
	}, changes.Modified)
}

func TestCalculateChangedFilesNeedsPlatform(t *testing.T) {
	patch := newPatchBuilder().
		fileHeaderV2("DIFF", 0).
		addData(0x0a, 0, 0, 0, filledBytes(128, 1), 0).
		endOfFile().
		Bytes()

	file := openTestPatch(t, patch)
	_, err := file.CalculateChangedFiles(NewZiPatchConfig(""))
	assert.True(t, IsErrorKind(err, KindPlatform))

	config := NewZiPatchConfig("")
	config.SetPlatform(PlatformPs3)
	changes, err := file.CalculateChangedFiles(config)
	require.NoError(t, err)
	assert.Equal(t, []string{"sqpack/ffxiv/0a0000.ps3.dat0"}, changes.Modified)
}

func TestCalculateActualCountsKeepsPosition(t *testing.T) {
	file := openTestPatch(t, changeSetPatch())

	first, err := file.NextChunk()
	require.NoError(t, err)
	assert.Equal(t, FileHeaderChunkType, first.ChunkType())

	counts, err := file.CalculateActualCounts()
	require.NoError(t, err)
	assert.Equal(t, ZiPatchCommandCounts{
		TotalCommands:      13,
		AddDirectories:     1,
		DeleteDirectories:  1,
		SqpkAddCommands:    1,
		SqpkHeaderCommands: 1,
		SqpkFileCommands:   6,
	}, *counts)

	second, err := file.NextChunk()
	require.NoError(t, err)
	assert.Equal(t, AddDirectoryChunkType, second.ChunkType())
}

func TestInspect(t *testing.T) {
	counts := ZiPatchCommandCounts{TotalCommands: 14}
	patch := newPatchBuilder().fileHeaderV3("DIFF", 0xCAFE, counts).addDirectory("foo/").endOfFile().Bytes()
	file := openTestPatch(t, patch)

	var seen []string
	inspection, err := file.Inspect(NewZiPatchConfig(""), true, func(chunk Chunk) {
		seen = append(seen, chunk.ChunkType())
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"FHDR", "ADIR", "EOF_"}, seen)
	assert.Equal(t, uint32(0xCAFE), inspection.Header.RepositoryName)
	assert.Equal(t, uint32(3), inspection.Counts.TotalCommands)
	assert.Equal(t, []string{"foo/"}, inspection.Changes.Added)

	inspection, err = file.Inspect(NewZiPatchConfig(""), false, nil)
	require.NoError(t, err)
	assert.Nil(t, inspection.Changes)
}

func TestOpenZiPatchFileZstd(t *testing.T) {
	patch := newPatchBuilder().fileHeaderV2("DIFF", 0).addDirectory("foo/").endOfFile().Bytes()

	encoder, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := encoder.EncodeAll(patch, nil)
	require.NoError(t, encoder.Close())

	path := filepath.Join(t.TempDir(), "D2024.01.01.0000.0000.patch.zst")
	require.NoError(t, os.WriteFile(path, compressed, 0o644))

	file, err := OpenZiPatchFile(path)
	require.NoError(t, err)
	defer file.Close()

	assert.False(t, file.Seekable())
	assert.Nil(t, file.Header())

	inspection, err := file.Inspect(NewZiPatchConfig(""), true, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), inspection.Counts.TotalCommands)
	assert.NotNil(t, file.Header())

	// a single-pass source cannot be walked twice
	_, err = file.CalculateActualCounts()
	assert.True(t, IsErrorKind(err, KindIo))
}

func TestOpenZiPatchFilePlain(t *testing.T) {
	patch := newPatchBuilder().fileHeaderV2("DIFF", 0).endOfFile().Bytes()
	path := filepath.Join(t.TempDir(), "plain.patch")
	require.NoError(t, os.WriteFile(path, patch, 0o644))

	file, err := OpenZiPatchFile(path)
	require.NoError(t, err)
	defer file.Close()

	assert.True(t, file.Seekable())
	assert.Equal(t, "DIFF", file.Header().PatchType)

	_, err = OpenZiPatchFile(filepath.Join(t.TempDir(), "missing.patch"))
	assert.True(t, IsErrorKind(err, KindIo))
}

func TestApplyAll(t *testing.T) {
	gamePath := t.TempDir()
	versionHeader := filledBytes(sqpackHeaderSize, 0x11)
	blockData := filledBytes(128, 0xAB)
	storedContent := []byte("[Boot]\nVersion=2024.01.01\n")
	deflatedContent := bytes.Repeat([]byte("0123456789"), 100)

	patch := newPatchBuilder().
		fileHeaderV3("DIFF", 1, ZiPatchCommandCounts{}).
		applyOption(ApplyOptionIgnoreMissing, false).
		addDirectory("sqpack").
		addDirectory("sqpack/ffxiv").
		targetInfo(PlatformWin32, RegionGlobal).
		header(TargetFileKindDat, TargetHeaderKindVersion, 0x0a, 0, 0, versionHeader).
		addData(0x0a, 0, 0, 2048, blockData, 128).
		deleteData(0x0a, 0, 1, 0, 2).
		file(SqpkFileAddFile, 0, 0, "game/boot.cfg", storedBlock(storedContent), deflatedBlock(t, deflatedContent)).
		file(SqpkFileMakeDirTree, 0, 0, "movie/ffxiv").
		endOfFile().
		Bytes()

	file := openTestPatch(t, patch)
	config := NewZiPatchConfig(gamePath)
	config.VerifyChecksums = true
	store := NewSqexFileStreamStore()
	config.Store = store

	var applied []string
	err := file.ApplyAll(context.Background(), config, func(chunk Chunk) {
		applied = append(applied, chunk.ChunkType())
	})
	require.NoError(t, err)
	assert.Len(t, applied, 11)
	assert.Equal(t, 3, store.Len())
	require.NoError(t, store.Close())

	platform, ok := config.TargetPlatform()
	assert.True(t, ok)
	assert.Equal(t, PlatformWin32, platform)

	dat0, err := os.ReadFile(filepath.Join(gamePath, "sqpack", "ffxiv", "0a0000.win32.dat0"))
	require.NoError(t, err)
	require.Len(t, dat0, 2048+128+128)
	assert.Equal(t, versionHeader, dat0[:sqpackHeaderSize])
	assert.Equal(t, make([]byte, 1024), dat0[sqpackHeaderSize:2048])
	assert.Equal(t, blockData, dat0[2048:2176])
	assert.Equal(t, make([]byte, 128), dat0[2176:])

	dat1, err := os.ReadFile(filepath.Join(gamePath, "sqpack", "ffxiv", "0a0000.win32.dat1"))
	require.NoError(t, err)
	require.Len(t, dat1, 256)
	assert.Equal(t, uint32(128), binary.LittleEndian.Uint32(dat1[0:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(dat1[12:]))
	assert.Equal(t, make([]byte, 256-20), dat1[20:])

	boot, err := os.ReadFile(filepath.Join(gamePath, "game", "boot.cfg"))
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, storedContent...), deflatedContent...), boot)

	info, err := os.Stat(filepath.Join(gamePath, "movie", "ffxiv"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestApplyAllWithoutPlatform(t *testing.T) {
	gamePath := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(gamePath, "sqpack", "ffxiv"), 0o755))

	patch := newPatchBuilder().
		fileHeaderV2("DIFF", 0).
		addData(0x0a, 0, 0, 0, filledBytes(128, 1), 0).
		endOfFile().
		Bytes()

	err := openTestPatch(t, patch).ApplyAll(context.Background(), NewZiPatchConfig(gamePath), nil)
	assert.True(t, IsErrorKind(err, KindPlatform))
}

func TestApplyAllVerifiesChecksums(t *testing.T) {
	gamePath := t.TempDir()
	patch := newPatchBuilder().fileHeaderV2("DIFF", 0).addDirectory("foo").endOfFile().Bytes()
	// corrupt the last checksum byte of the ADIR frame
	patch[len(patch)-12-1] ^= 0xFF

	config := NewZiPatchConfig(gamePath)
	config.VerifyChecksums = true
	err := openTestPatch(t, patch).ApplyAll(context.Background(), config, nil)
	assert.True(t, IsErrorKind(err, KindChecksum))
	assert.NoDirExists(t, filepath.Join(gamePath, "foo"))

	config.VerifyChecksums = false
	require.NoError(t, openTestPatch(t, patch).ApplyAll(context.Background(), config, nil))
	assert.DirExists(t, filepath.Join(gamePath, "foo"))
}

func TestApplyAllCancelled(t *testing.T) {
	gamePath := t.TempDir()
	patch := newPatchBuilder().fileHeaderV2("DIFF", 0).addDirectory("foo").endOfFile().Bytes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := openTestPatch(t, patch).ApplyAll(ctx, NewZiPatchConfig(gamePath), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, filepath.Join(gamePath, "foo"))
}
