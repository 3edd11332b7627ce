package internal

import (
	"bufio"
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrContentRangeMissing is returned when a part header block carries no Content-Range
	ErrContentRangeMissing = errors.New("Content-Range not found")
	// ErrHeaderLineTooLong is returned when a part header line does not fit the scan buffer
	ErrHeaderLineTooLong = errors.New("header line too long")
)

const maxHeaderLineLength = DefaultBufferSize

// ContentRange is a parsed "bytes from-to/total" header value
type ContentRange struct {
	From  int64
	To    int64
	Total int64
}

// Length returns the number of bytes covered by the range
func (r ContentRange) Length() int64 {
	return r.To - r.From + 1
}

// ParseContentRange parses a Content-Range header value such as "bytes 10-19/100".
// An unknown total ("*") is reported as the end of the range.
func ParseContentRange(value string) (ContentRange, error) {
	value = strings.TrimSpace(value)
	unit, rangeText, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(unit, "bytes") {
		return ContentRange{}, errors.Errorf("unsupported Content-Range %q", value)
	}

	span, totalText, ok := strings.Cut(strings.TrimSpace(rangeText), "/")
	if !ok {
		return ContentRange{}, errors.Errorf("malformed Content-Range %q", value)
	}
	fromText, toText, ok := strings.Cut(span, "-")
	if !ok {
		return ContentRange{}, errors.Errorf("malformed Content-Range %q", value)
	}

	from, err := strconv.ParseInt(strings.TrimSpace(fromText), 10, 64)
	if err != nil {
		return ContentRange{}, errors.Wrapf(err, "parsing Content-Range start in %q", value)
	}
	to, err := strconv.ParseInt(strings.TrimSpace(toText), 10, 64)
	if err != nil {
		return ContentRange{}, errors.Wrapf(err, "parsing Content-Range end in %q", value)
	}
	if to < from {
		return ContentRange{}, errors.Errorf("inverted Content-Range %q", value)
	}

	total := to + 1
	if totalText = strings.TrimSpace(totalText); totalText != "*" {
		total, err = strconv.ParseInt(totalText, 10, 64)
		if err != nil {
			return ContentRange{}, errors.Wrapf(err, "parsing Content-Range total in %q", value)
		}
	}

	return ContentRange{From: from, To: to, Total: total}, nil
}

// MultipartResponseHandler turns an HTTP response into a sequence of byte-range parts.
//
// A 200 response is a single part covering the whole body, a plain 206 is a single
// part described by its Content-Range header, and a multipart/byteranges 206 yields
// one part per range. Parts must be consumed in order; asking for the next part
// discards whatever is left of the current one.
type MultipartResponseHandler struct {
	MultipartBoundary string
	LoopCaptureSize   int

	response             *http.Response
	baseStream           *bufio.Reader
	multipartEndBoundary string
	bufferStream         *CircularMemoryStream
	headerLines          []string
	currentPart          *MultipartPartStream
	noMoreParts          bool
}

// NewMultipartResponseHandler wraps resp; the handler owns the response body from here on
func NewMultipartResponseHandler(resp *http.Response) *MultipartResponseHandler {
	return &MultipartResponseHandler{
		LoopCaptureSize: DefaultLoopCaptureSize,
		response:        resp,
	}
}

// NextPart returns the next part of the response, or io.EOF when there are no more
func (h *MultipartResponseHandler) NextPart(ctx context.Context) (*MultipartPartStream, error) {
	if h.currentPart != nil {
		if err := h.currentPart.drain(); err != nil {
			return nil, errors.Wrap(err, "discarding rest of previous part")
		}
		h.currentPart = nil
	}

	if h.noMoreParts {
		return nil, io.EOF
	}

	if h.baseStream == nil {
		h.baseStream = bufio.NewReaderSize(h.response.Body, DefaultBufferSize)
	}

	if h.MultipartBoundary == "" {
		part, err := h.firstPart()
		if err != nil || part != nil {
			h.currentPart = part
			return part, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		part, done, err := h.scanHeaderLines()
		if err != nil {
			return nil, err
		}
		if done {
			if part == nil {
				return nil, io.EOF
			}
			h.currentPart = part
			return part, nil
		}

		eof := false
		err = WithBuffer(DefaultBufferSize, func(buf []byte) error {
			n, err := h.baseStream.Read(buf)
			if n > 0 {
				if ferr := h.bufferStream.Feed(buf[:n]); ferr != nil {
					return ferr
				}
			}
			if err == io.EOF {
				eof = n == 0
				return nil
			}
			return err
		})
		if err != nil {
			return nil, errors.Wrap(err, "reading multipart body")
		}
		if eof {
			if h.endsWithCloseBoundary() {
				h.noMoreParts = true
				return nil, io.EOF
			}
			return nil, errors.Wrap(ErrPrematureEOF, "response ended inside a part header")
		}
	}
}

// firstPart handles the non-multipart responses. It returns a nil part once it has
// switched the handler into multipart mode.
func (h *MultipartResponseHandler) firstPart() (*MultipartPartStream, error) {
	switch h.response.StatusCode {
	case http.StatusOK:
		h.noMoreParts = true
		length := h.response.ContentLength
		if length < 0 {
			return nil, errors.New("response has no Content-Length")
		}
		part := newMultipartPartStream(length, 0, length, h.LoopCaptureSize)
		part.appendBaseStream(NewReadLengthLimitingStream(h.baseStream, length))
		return part, nil

	case http.StatusPartialContent:
		mediaType, params, err := mime.ParseMediaType(h.response.Header.Get("Content-Type"))
		if err != nil || !strings.EqualFold(mediaType, "multipart/byteranges") {
			h.noMoreParts = true
			rng, err := ParseContentRange(h.response.Header.Get("Content-Range"))
			if err != nil {
				return nil, err
			}
			part := newMultipartPartStream(rng.Total, rng.From, rng.Length(), h.LoopCaptureSize)
			part.appendBaseStream(NewReadLengthLimitingStream(h.baseStream, rng.Length()))
			return part, nil
		}

		boundary := params["boundary"]
		if boundary == "" {
			return nil, errors.New("multipart/byteranges response without boundary")
		}
		h.MultipartBoundary = "--" + boundary
		h.multipartEndBoundary = h.MultipartBoundary + "--"
		h.bufferStream = NewCircularMemoryStream(0, ExtendCapacity)
		return nil, nil

	default:
		return nil, errors.Errorf("unhandled response status %d", h.response.StatusCode)
	}
}

// findLineEnd returns the offset of the first CRLF in the buffered bytes, or -1
func (h *MultipartResponseHandler) findLineEnd() int {
	for i := 0; i+1 < h.bufferStream.Len(); i++ {
		if h.bufferStream.At(i) == '\r' && h.bufferStream.At(i+1) == '\n' {
			return i
		}
	}
	return -1
}

// scanHeaderLines consumes complete header lines from the buffer. done is set once
// a part header block was completed (part set) or the closing boundary was seen.
func (h *MultipartResponseHandler) scanHeaderLines() (part *MultipartPartStream, done bool, err error) {
	for {
		lineEnd := h.findLineEnd()
		if lineEnd < 0 {
			if h.bufferStream.Len() > maxHeaderLineLength {
				return nil, false, errors.Wrapf(ErrHeaderLineTooLong, "no line break in %d bytes", h.bufferStream.Len())
			}
			return nil, false, nil
		}
		if lineEnd > maxHeaderLineLength {
			return nil, false, errors.Wrapf(ErrHeaderLineTooLong, "%d bytes", lineEnd)
		}

		isEmptyLine := lineEnd == 0
		if isEmptyLine {
			h.bufferStream.Consume(nil, 2, false)
		} else {
			line := make([]byte, lineEnd+2)
			h.bufferStream.Consume(line, len(line), false)
			h.headerLines = append(h.headerLines, string(line[:lineEnd]))
		}

		if len(h.headerLines) == 0 {
			continue
		}
		if h.headerLines[len(h.headerLines)-1] == h.multipartEndBoundary {
			h.noMoreParts = true
			return nil, true, nil
		}
		if !isEmptyLine {
			continue
		}

		rng, err := h.partContentRange()
		if err != nil {
			return nil, false, err
		}
		h.headerLines = h.headerLines[:0]

		part = newMultipartPartStream(rng.Total, rng.From, rng.Length(), h.LoopCaptureSize)
		buffered := min(rng.Length(), int64(h.bufferStream.Len()))
		part.appendBaseStream(NewConsumeLengthLimitingStream(h.bufferStream, buffered))
		part.appendBaseStream(NewReadLengthLimitingStream(h.baseStream, part.unfulfilledBaseStreamLength()))
		return part, true, nil
	}
}

// endsWithCloseBoundary reports whether the unterminated tail of the body is the closing boundary
func (h *MultipartResponseHandler) endsWithCloseBoundary() bool {
	if len(h.headerLines) > 0 || h.bufferStream.Len() > maxHeaderLineLength {
		return false
	}
	tail := make([]byte, h.bufferStream.Len())
	h.bufferStream.Consume(tail, len(tail), true)
	return strings.TrimSpace(string(tail)) == h.multipartEndBoundary
}

func (h *MultipartResponseHandler) partContentRange() (ContentRange, error) {
	for _, line := range h.headerLines {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Range") {
			continue
		}
		return ParseContentRange(value)
	}
	return ContentRange{}, ErrContentRangeMissing
}

// Close releases the buffers and closes the response body
func (h *MultipartResponseHandler) Close() error {
	if h.currentPart != nil {
		h.currentPart.Close()
		h.currentPart = nil
	}
	if h.bufferStream != nil {
		h.bufferStream.Close()
		h.bufferStream = nil
	}
	return h.response.Body.Close()
}
