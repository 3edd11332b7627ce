package internal

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// PlatformId identifies the platform a sqpack container belongs to
type PlatformId uint16

const (
	PlatformWin32   PlatformId = 0
	PlatformPs3     PlatformId = 1
	PlatformPs4     PlatformId = 2
	PlatformUnknown PlatformId = 3
)

// String returns the lowercase name used in container file names
func (p PlatformId) String() string {
	switch p {
	case PlatformWin32:
		return "win32"
	case PlatformPs3:
		return "ps3"
	case PlatformPs4:
		return "ps4"
	default:
		return "unknown"
	}
}

// ParsePlatformId accepts a platform name (case-insensitive) or its numeric id
func ParsePlatformId(value string) (PlatformId, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "win32", "0":
		return PlatformWin32, nil
	case "ps3", "1":
		return PlatformPs3, nil
	case "ps4", "2":
		return PlatformPs4, nil
	case "unknown", "3":
		return PlatformUnknown, nil
	}
	return 0, fmt.Errorf("unknown platform %q", value)
}

// BlockDecompressor inflates one compressed block of a file-add command
type BlockDecompressor func(compressed []byte, compressedSize, decompressedSize int) ([]byte, error)

// ZiPatchConfig carries everything a chunk needs to apply itself to an installation
type ZiPatchConfig struct {
	// GamePath is the installation root every patch path is resolved against
	GamePath string

	IgnoreMissing     bool
	IgnoreOldMismatch bool
	VerifyChecksums   bool

	// Store caches open container files across chunks; nil opens and closes per chunk
	Store *SqexFileStreamStore

	OpenTries      int
	OpenRetryDelay time.Duration

	Decompressor BlockDecompressor

	platform    PlatformId
	platformSet bool
}

// NewZiPatchConfig returns a config rooted at gamePath with no platform selected
func NewZiPatchConfig(gamePath string) *ZiPatchConfig {
	return &ZiPatchConfig{
		GamePath:       gamePath,
		OpenTries:      DefaultRetryAttempt,
		OpenRetryDelay: DefaultRetryDelay,
		Decompressor:   DeflateBlockDecompressor,
	}
}

// SetPlatform selects the platform container names are resolved for
func (c *ZiPatchConfig) SetPlatform(platform PlatformId) {
	c.platform = platform
	c.platformSet = true
}

// TargetPlatform returns the selected platform and whether one was selected at all
func (c *ZiPatchConfig) TargetPlatform() (PlatformId, bool) {
	return c.platform, c.platformSet
}

// FullPath joins a patch-relative path onto the installation root
func (c *ZiPatchConfig) FullPath(relativePath string) string {
	return filepath.Join(c.GamePath, filepath.FromSlash(relativePath))
}

// resolveContainer fixes the container's file name for the selected platform
func (c *ZiPatchConfig) resolveContainer(file *SqpackFile) error {
	platform, ok := c.TargetPlatform()
	if !ok {
		return newZiPatchError(KindPlatform, nil, "cannot resolve %s without a target platform", file.ExpansionPath())
	}
	file.ResolvePath(platform)
	return nil
}

func (c *ZiPatchConfig) decompressor() BlockDecompressor {
	if c.Decompressor == nil {
		return DeflateBlockDecompressor
	}
	return c.Decompressor
}

// openStream opens relativePath for writing, through the store when one is set.
// The returned release func must be called once the caller is done with the stream.
func (c *ZiPatchConfig) openStream(relativePath string, flag int) (*SqexFileStream, func(), error) {
	fullPath := c.FullPath(relativePath)
	if c.Store != nil {
		stream, err := c.Store.GetStream(fullPath, flag, c.OpenTries, c.OpenRetryDelay)
		if err != nil {
			return nil, nil, newZiPatchError(KindIo, err, "open %s", relativePath)
		}
		return stream, func() {}, nil
	}

	stream, err := WaitForStream(fullPath, flag, c.OpenTries, c.OpenRetryDelay)
	if err != nil {
		return nil, nil, newZiPatchError(KindIo, err, "open %s", relativePath)
	}
	return stream, func() { stream.Close() }, nil
}

// forget drops a cached handle before the file underneath it goes away
func (c *ZiPatchConfig) forget(fullPath string) {
	if c.Store != nil {
		if err := c.Store.Evict(fullPath); err != nil {
			PushLogWarningf(c, "closing %s: %v", fullPath, err)
		}
	}
}
