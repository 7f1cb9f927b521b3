package format

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrTruncated        = errors.New("stream ended inside a record")
	ErrUnknownSignature = errors.New("unrecognized signature")
	ErrKeyInconsistent  = errors.New("crypted key length inconsistent with header flags")
	ErrBadMagic         = errors.New("not a darn archive")
)

// FormatError reports malformed bytes. It is always fatal to the read that
// produced it.
type FormatError struct {
	// Offset is the stream position at which the problem was noticed, when
	// the stream tracks one.
	Offset    uint64
	HasOffset bool
	Reason    string
	Err       error
}

func (e *FormatError) Error() string {
	msg := "format error"
	if e.HasOffset {
		msg = fmt.Sprintf("format error at offset %d", e.Offset)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }
func (e *FormatError) Cause() error  { return e.Err }

// UnsupportedEditionError is returned when a stream was written by a newer
// edition than this package understands.
type UnsupportedEditionError struct {
	Edition Edition
	Max     Edition
}

func (e *UnsupportedEditionError) Error() string {
	return fmt.Sprintf("unsupported archive edition %s (newest supported is %s)", e.Edition, e.Max)
}

// RecoverableCorruption describes a region skipped while resynchronizing on
// escape marks.
type RecoverableCorruption struct {
	Offset  uint64
	Skipped uint64
	Err     error
}

func (e *RecoverableCorruption) Error() string {
	return fmt.Sprintf("skipped %d corrupted bytes at offset %d: %v", e.Skipped, e.Offset, e.Err)
}

func (e *RecoverableCorruption) Unwrap() error { return e.Err }
