package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/riverfog7/ZiPatchClient/internal"
)

var cancelMessage = "[Ctrl+C] Stop"

// patchSource is an opened patch plus whatever has to be closed with it
type patchSource struct {
	patch     *internal.ZiPatchFile
	totalSize int64
	closers   []io.Closer
}

func (s *patchSource) Close() {
	if s.patch != nil {
		s.patch.Close()
	}
	for _, closer := range s.closers {
		closer.Close()
	}
}

func isRemoteSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func newHTTPClient(settings *Settings, limiter *internal.DownloadSpeedLimiter) *http.Client {
	return &http.Client{
		Transport: limiter.Transport(&http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: settings.HTTPTimeout(),
		}),
	}
}

// downloadSpeedLimiter builds the limiter from --limit-rate, falling back to the settings
func downloadSpeedLimiter(cmd *ApplyCmd, settings *Settings) (*internal.DownloadSpeedLimiter, error) {
	limit := cmd.LimitRate
	if limit == "" {
		limit = settings.DownloadSpeedLimit
	}
	if limit == "" || limit == "0" {
		return internal.NewDownloadSpeedLimiter(0), nil
	}

	speed, err := humanize.ParseBytes(limit)
	if err != nil {
		return nil, fmt.Errorf("invalid download speed limit %q: %w", limit, err)
	}
	return internal.NewDownloadSpeedLimiter(int64(speed)), nil
}

func ApplyCommand(cmd *ApplyCmd, settings *Settings) int {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancelMessage = "Cancelling..."
			cancel()
		case <-ctx.Done():
		}
	}()

	config, err := newApplyConfig(cmd, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	store := internal.NewSqexFileStreamStore()
	defer store.Close()
	config.Store = store

	limiter, err := downloadSpeedLimiter(cmd, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	source, err := openPatchSource(ctx, cmd, settings, limiter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening patch: %v\n", err)
		return 1
	}
	defer source.Close()

	var applied atomic.Int64
	stopProgress := make(chan struct{})
	progressDone := make(chan struct{})
	startTime := time.Now()
	go func() {
		reportProgress(stopProgress, &applied, source.totalSize, startTime)
		close(progressDone)
	}()

	err = source.patch.ApplyAll(ctx, config, func(chunk internal.Chunk) {
		applied.Store(chunk.Info().Offset)
		internal.PushLogDebug(nil, chunk.String())
	})
	if err == nil {
		applied.Store(source.totalSize)
	}
	close(stopProgress)
	<-progressDone

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Cancelled, the installation may be partially patched")
			return 130
		}
		fmt.Fprintf(os.Stderr, "Error applying patch: %v\n", err)
		return 1
	}

	fmt.Printf("Patch applied in %s\n", time.Since(startTime).Round(time.Millisecond))
	return 0
}

func newApplyConfig(cmd *ApplyCmd, settings *Settings) (*internal.ZiPatchConfig, error) {
	targetInfo, err := os.Stat(cmd.Target)
	if err != nil || !targetInfo.IsDir() {
		return nil, fmt.Errorf("target %s is not a directory", cmd.Target)
	}

	config := internal.NewZiPatchConfig(cmd.Target)
	config.IgnoreMissing = cmd.IgnoreMissing
	config.IgnoreOldMismatch = cmd.IgnoreOldMismatch
	config.VerifyChecksums = cmd.Verify || settings.VerifyChecksums
	config.OpenTries = settings.OpenTries
	config.OpenRetryDelay = settings.OpenRetryDelay()

	if cmd.Platform != "" {
		platform, err := internal.ParsePlatformId(cmd.Platform)
		if err != nil {
			return nil, err
		}
		config.SetPlatform(platform)
	}
	return config, nil
}

func openPatchSource(ctx context.Context, cmd *ApplyCmd, settings *Settings, limiter *internal.DownloadSpeedLimiter) (*patchSource, error) {
	path := cmd.Source
	if isRemoteSource(cmd.Source) {
		if cmd.DownloadTo == "" {
			return openRemotePatch(ctx, cmd.Source, settings, limiter)
		}
		if err := downloadPatch(ctx, cmd.Source, cmd.DownloadTo, settings, limiter); err != nil {
			return nil, fmt.Errorf("downloading %s: %w", cmd.Source, err)
		}
		path = cmd.DownloadTo
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	patch, err := internal.OpenZiPatchFile(path)
	if err != nil {
		return nil, err
	}
	return &patchSource{patch: patch, totalSize: info.Size()}, nil
}

// openRemotePatch streams the patch straight from the response body
func openRemotePatch(ctx context.Context, url string, settings *Settings, limiter *internal.DownloadSpeedLimiter) (*patchSource, error) {
	handler, err := internal.OpenRemotePatch(ctx, newHTTPClient(settings, limiter), url, 0, settings.UserAgent, settings.HTTPRetries)
	if err != nil {
		return nil, err
	}
	handler.LoopCaptureSize = settings.LoopCaptureSize

	part, err := handler.NextPart(ctx)
	if err != nil {
		handler.Close()
		return nil, err
	}

	patch, err := internal.NewZiPatchFile(part)
	if err != nil {
		part.Close()
		handler.Close()
		return nil, err
	}
	return &patchSource{
		patch:     patch,
		totalSize: part.OriginLength,
		closers:   []io.Closer{part, handler},
	}, nil
}

// downloadPatch saves url to dest, continuing from whatever dest already holds
func downloadPatch(ctx context.Context, url, dest string, settings *Settings, limiter *internal.DownloadSpeedLimiter) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	stats, err := file.Stat()
	if err != nil {
		return err
	}
	offset := stats.Size()

	handler, err := internal.OpenRemotePatch(ctx, newHTTPClient(settings, limiter), url, offset, settings.UserAgent, settings.HTTPRetries)
	if err != nil {
		if offset > 0 && errors.Is(err, internal.ErrRangeNotSatisfiable) {
			internal.PushLogInfo(nil, fmt.Sprintf("%s is already complete", dest))
			return nil
		}
		return err
	}
	defer handler.Close()

	part, err := handler.NextPart(ctx)
	if err != nil {
		return err
	}
	defer part.Close()

	// the server may ignore the range and send everything again
	if _, err := file.Seek(part.OriginOffset, io.SeekStart); err != nil {
		return err
	}
	if err := file.Truncate(part.OriginOffset); err != nil {
		return err
	}
	if part.OriginOffset > 0 {
		internal.PushLogInfo(nil, fmt.Sprintf("Resuming %s at %s", dest, humanize.IBytes(uint64(part.OriginOffset))))
	}

	var received atomic.Int64
	received.Store(part.OriginOffset)
	stopProgress := make(chan struct{})
	defer close(stopProgress)
	go reportProgress(stopProgress, &received, part.OriginTotalLength, time.Now())

	reader := internal.NewProgressReader(part, part.OriginOffset, part.OriginTotalLength,
		func(receivedBytes, totalBytes int64) {
			received.Store(receivedBytes)
		})

	// the request carries ctx, so cancelling it aborts the copy
	if _, err := io.Copy(file, reader); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func reportProgress(stop chan struct{}, current *atomic.Int64, totalSize int64, startTime time.Time) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			done := current.Load()
			elapsed := time.Since(startTime).Seconds()
			speed := float64(done) / elapsed

			fmt.Fprintf(os.Stderr, "\r%s | %s/%s (%s/s)    ",
				cancelMessage,
				humanize.IBytes(uint64(done)),
				humanize.IBytes(uint64(totalSize)),
				humanize.IBytes(uint64(speed)),
			)
		case <-stop:
			fmt.Fprintln(os.Stderr)
			return
		}
	}
}
