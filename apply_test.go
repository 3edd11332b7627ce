package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverfog7/ZiPatchClient/internal"
)

// buildTestPatch returns a V3 DIFF patch that creates two directories
func buildTestPatch() []byte {
	var buf bytes.Buffer
	for _, word := range []uint32{0x50495A91, 0x48435441, 0x0A1A0A0D} {
		buf.Write(binary.LittleEndian.AppendUint32(nil, word))
	}

	frame := func(tag string, body []byte) {
		data := append([]byte(tag), body...)
		buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(body))))
		buf.Write(data)
		buf.Write(binary.BigEndian.AppendUint32(nil, crc32.ChecksumIEEE(data)))
	}
	dirName := func(name string) []byte {
		return append(binary.BigEndian.AppendUint32(nil, uint32(len(name))), name...)
	}

	header := binary.LittleEndian.AppendUint32(nil, 3<<16)
	header = append(header, "DIFF"...)
	for _, value := range []uint32{
		2,         // entry files
		2,         // add directories
		0,         // delete directories
		0x2000, 0, // delete data size
		5,          // minor version
		0xdeadbeef, // repository
		4,          // total commands
		0, 0, 0, 0, 0,
	} {
		header = binary.BigEndian.AppendUint32(header, value)
	}
	header = append(header, make([]byte, 0xB8)...)

	frame("FHDR", header)
	frame("ADIR", dirName("movie/ffxiv"))
	frame("ADIR", dirName("foo"))
	frame("EOF_", nil)
	return buf.Bytes()
}

func writeTestPatch(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "D2024.01.01.0000.0000.patch")
	require.NoError(t, os.WriteFile(path, buildTestPatch(), 0o644))
	return path
}

func testSettings() *Settings {
	return &Settings{
		OpenTries:          1,
		LoopCaptureSize:    16384,
		UserAgent:          "ZiPatchClient-test",
		HTTPTimeoutSeconds: 5,
		HTTPRetries:        1,
	}
}

func TestApplyCommandLocal(t *testing.T) {
	target := t.TempDir()
	cmd := &ApplyCmd{Source: writeTestPatch(t), Target: target, Platform: "win32"}

	assert.Equal(t, 0, ApplyCommand(cmd, testSettings()))
	assert.DirExists(t, filepath.Join(target, "movie", "ffxiv"))
	assert.DirExists(t, filepath.Join(target, "foo"))
}

func TestApplyCommandRemote(t *testing.T) {
	patch := buildTestPatch()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, "patch", time.Time{}, bytes.NewReader(patch))
	}))
	defer server.Close()

	target := t.TempDir()
	assert.Equal(t, 0, ApplyCommand(&ApplyCmd{Source: server.URL, Target: target}, testSettings()))
	assert.DirExists(t, filepath.Join(target, "foo"))

	saved := filepath.Join(t.TempDir(), "patches", "saved.patch")
	second := t.TempDir()
	assert.Equal(t, 0, ApplyCommand(&ApplyCmd{Source: server.URL, Target: second, DownloadTo: saved}, testSettings()))
	assert.DirExists(t, filepath.Join(second, "movie", "ffxiv"))
	assert.FileExists(t, saved)
}

func TestApplyCommandErrors(t *testing.T) {
	patch := writeTestPatch(t)

	tests := []struct {
		name string
		cmd  *ApplyCmd
	}{
		{name: "missing target", cmd: &ApplyCmd{Source: patch, Target: filepath.Join(t.TempDir(), "nope")}},
		{name: "target is a file", cmd: &ApplyCmd{Source: patch, Target: patch}},
		{name: "bad platform", cmd: &ApplyCmd{Source: patch, Target: t.TempDir(), Platform: "xbox"}},
		{name: "missing patch", cmd: &ApplyCmd{Source: filepath.Join(t.TempDir(), "missing.patch"), Target: t.TempDir()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 1, ApplyCommand(tt.cmd, testSettings()))
		})
	}
}

func TestNewApplyConfig(t *testing.T) {
	settings := testSettings()
	settings.VerifyChecksums = true
	settings.OpenRetrySeconds = 0.5

	config, err := newApplyConfig(&ApplyCmd{Target: t.TempDir(), IgnoreMissing: true, Platform: "ps4"}, settings)
	require.NoError(t, err)

	assert.True(t, config.IgnoreMissing)
	assert.False(t, config.IgnoreOldMismatch)
	assert.True(t, config.VerifyChecksums)
	assert.Equal(t, 500*time.Millisecond, config.OpenRetryDelay)
	platform, ok := config.TargetPlatform()
	assert.True(t, ok)
	assert.Equal(t, "ps4", platform.String())
}

func TestDownloadPatchResumes(t *testing.T) {
	patch := buildTestPatch()
	var ranges []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges = append(ranges, r.Header.Get("Range"))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, "patch", time.Time{}, bytes.NewReader(patch))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "patch.bin")
	require.NoError(t, os.WriteFile(dest, patch[:20], 0o644))

	require.NoError(t, downloadPatch(context.Background(), server.URL, dest, testSettings(), internal.NewDownloadSpeedLimiter(0)))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, patch, data)

	// already complete
	require.NoError(t, downloadPatch(context.Background(), server.URL, dest, testSettings(), internal.NewDownloadSpeedLimiter(0)))
	data, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, patch, data)

	assert.Equal(t, []string{"bytes=20-", "bytes=" + strconv.Itoa(len(patch)) + "-"}, ranges)
}

func TestDownloadPatchRangeIgnored(t *testing.T) {
	patch := buildTestPatch()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(patch)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "patch.bin")
	require.NoError(t, os.WriteFile(dest, []byte("garbage that is not a prefix"), 0o644))

	require.NoError(t, downloadPatch(context.Background(), server.URL, dest, testSettings(), internal.NewDownloadSpeedLimiter(0)))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, patch, data)
}

func TestDownloadSpeedLimiterFromSettings(t *testing.T) {
	settings := testSettings()

	limiter, err := downloadSpeedLimiter(&ApplyCmd{}, settings)
	require.NoError(t, err)
	assert.True(t, limiter.Unlimited())

	settings.DownloadSpeedLimit = "2 MB"
	limiter, err = downloadSpeedLimiter(&ApplyCmd{}, settings)
	require.NoError(t, err)
	assert.Equal(t, int64(2000000), limiter.Speed())

	limiter, err = downloadSpeedLimiter(&ApplyCmd{LimitRate: "512KiB"}, settings)
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024), limiter.Speed())

	_, err = downloadSpeedLimiter(&ApplyCmd{LimitRate: "fast"}, settings)
	assert.Error(t, err)
	assert.Equal(t, 1, ApplyCommand(&ApplyCmd{Source: writeTestPatch(t), Target: t.TempDir(), LimitRate: "fast"}, settings))
}
