package internal

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ZiPatchError
type ErrorKind int

const (
	KindBadMagic ErrorKind = iota + 1
	KindTruncated
	KindUnknownChunk
	KindUnknownCommand
	KindSizeMismatch
	KindIo
	KindApply
	KindChecksum
	KindPlatform
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadMagic:
		return "bad magic"
	case KindTruncated:
		return "truncated stream"
	case KindUnknownChunk:
		return "unknown chunk type"
	case KindUnknownCommand:
		return "unknown sqpk command"
	case KindSizeMismatch:
		return "size mismatch"
	case KindIo:
		return "io failure"
	case KindApply:
		return "apply failure"
	case KindChecksum:
		return "checksum mismatch"
	case KindPlatform:
		return "platform not set"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ZiPatchError is the single error type surfaced by the patch engine.
// The Kind tells callers what went wrong; Cause carries the underlying error, if any.
type ZiPatchError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ZiPatchError) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg = e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("zipatch: %s: %v", msg, e.Cause)
	}
	return "zipatch: " + msg
}

func (e *ZiPatchError) Unwrap() error {
	return e.Cause
}

// Is reports a match when target is a *ZiPatchError of the same Kind, so
// errors.Is(err, &ZiPatchError{Kind: KindTruncated}) works through wrapping.
func (e *ZiPatchError) Is(target error) bool {
	t, ok := target.(*ZiPatchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newZiPatchError(kind ErrorKind, cause error, format string, args ...interface{}) *ZiPatchError {
	return &ZiPatchError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsErrorKind reports whether err is, or wraps, a ZiPatchError of the given kind
func IsErrorKind(err error, kind ErrorKind) bool {
	var zerr *ZiPatchError
	if errors.As(err, &zerr) {
		return zerr.Kind == kind
	}
	return false
}
