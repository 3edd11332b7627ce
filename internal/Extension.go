package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
)

// ErrRangeNotSatisfiable is returned when a resume offset lies past the end of the remote patch
var ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")

// HTTPStatusError is a non-success response status
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP request failed with status: %d", e.StatusCode)
}

// isTransientHTTPError tells server-side failures and transport errors from client errors
func isTransientHTTPError(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, ErrRangeNotSatisfiable)
}

// OpenRemotePatch requests url starting at offset and wraps the response for part-wise reading.
// The request is retried on transport errors and 5xx responses.
func OpenRemotePatch(ctx context.Context, httpClient *http.Client, url string, offset int64,
	userAgent string, retryAttempt int) (*MultipartResponseHandler, error) {

	resp, err := WaitForRetry(ctx,
		func(ctx context.Context) (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			if userAgent != "" {
				req.Header.Set("User-Agent", userAgent)
			}
			if offset > 0 {
				req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
			}

			resp, err := httpClient.Do(req)
			if err != nil {
				return nil, err
			}

			switch resp.StatusCode {
			case http.StatusOK, http.StatusPartialContent:
				return resp, nil
			case http.StatusRequestedRangeNotSatisfiable:
				resp.Body.Close()
				return nil, errors.Wrapf(ErrRangeNotSatisfiable, "offset %d of %s", offset, url)
			default:
				resp.Body.Close()
				return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
			}
		},
		retryAttempt, DefaultRetryDelay, isTransientHTTPError, nil)
	if err != nil {
		return nil, err
	}

	if offset > 0 && resp.StatusCode == http.StatusOK {
		PushLogWarningf(nil, "server ignored the range request, restarting %s from the beginning", url)
	}
	return NewMultipartResponseHandler(resp), nil
}

// ProgressReader reports how many bytes went through it
type ProgressReader struct {
	reader     io.Reader
	received   int64
	total      int64
	onProgress DelegateDownloadProgress
}

// NewProgressReader wraps reader; received starts at the bytes already on hand
func NewProgressReader(reader io.Reader, received, total int64, onProgress DelegateDownloadProgress) *ProgressReader {
	return &ProgressReader{
		reader:     reader,
		received:   received,
		total:      total,
		onProgress: onProgress,
	}
}

func (p *ProgressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 {
		p.received += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.received, p.total)
		}
	}
	return n, err
}

// Received returns the running byte count
func (p *ProgressReader) Received() int64 {
	return p.received
}

// ToSet converts a slice to a set (map with empty struct values)
func ToSet[T comparable](items []T) map[T]struct{} {
	set := make(map[T]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// FingerprintHex formats a chunk fingerprint for display
func FingerprintHex(fingerprint uint64) string {
	return fmt.Sprintf("%016x", fingerprint)
}
