package smf

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a parsing or writing failure. Callers that need to
// distinguish error conditions should switch on (*Error).Kind() rather
// than matching error strings.
type Kind int

const (
	// KindInvalidChunkID: a chunk's 4-byte type tag was neither "MThd"
	// nor "MTrk" where one of those was required.
	KindInvalidChunkID Kind = iota
	// KindTruncatedHeader: the MThd chunk ended before its 6-byte
	// payload (format, ntrks, division) was fully read.
	KindTruncatedHeader
	// KindTruncatedChunk: a chunk's declared length claims more bytes
	// than the underlying source actually has.
	KindTruncatedChunk
	// KindTruncatedTrack: an MTrk chunk ended mid-event.
	KindTruncatedTrack
	// KindTruncatedVarlen: a variable-length quantity ran past the end
	// of its enclosing chunk, or past the 4-byte width limit without a
	// terminating byte.
	KindTruncatedVarlen
	// KindFormatViolation: the header's format/ntrks/division fields
	// are structurally present but violate the format's own rules
	// (e.g. format 0 with ntrks != 1).
	KindFormatViolation
	// KindUnexpectedDataByte: a byte was read as a status byte (top
	// bit set expected) but had the top bit clear, with no running
	// status in effect to fall back to.
	KindUnexpectedDataByte
	// KindInvalidVlq: a variable-length quantity used more than four
	// bytes, or decoded to a value outside the 28-bit range.
	KindInvalidVlq
	// KindHandlerError: the caller's Handler returned an error from a
	// callback; the parser aborts and wraps it with this Kind.
	KindHandlerError
	// KindIoError: the underlying byte source returned an error other
	// than io.EOF at an unexpected point.
	KindIoError
	// KindArgumentOutOfRange: a writer method was called with a value
	// outside the wire format's representable range (e.g. a channel
	// number above 15, or a VLQ value above 2^28-1).
	KindArgumentOutOfRange
)

func (k Kind) String() string {
	switch k {
	case KindInvalidChunkID:
		return "invalid chunk id"
	case KindTruncatedHeader:
		return "truncated header"
	case KindTruncatedChunk:
		return "truncated chunk"
	case KindTruncatedTrack:
		return "truncated track"
	case KindTruncatedVarlen:
		return "truncated variable-length quantity"
	case KindFormatViolation:
		return "format violation"
	case KindUnexpectedDataByte:
		return "unexpected data byte"
	case KindInvalidVlq:
		return "invalid variable-length quantity"
	case KindHandlerError:
		return "handler error"
	case KindIoError:
		return "i/o error"
	case KindArgumentOutOfRange:
		return "argument out of range"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned by this package. Offset is
// the byte offset within the current chunk at which the failure was
// detected, or -1 when not applicable.
type Error struct {
	kind   Kind
	offset int64
	cause  error
}

func newError(kind Kind, offset int64, cause error) *Error {
	return &Error{kind: kind, offset: offset, cause: errors.WithStack(cause)}
}

// Kind reports the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Offset reports the byte offset at which the error was detected within
// its chunk, or -1 if the error is not offset-addressable.
func (e *Error) Offset() int64 { return e.offset }

func (e *Error) Error() string {
	if e.offset >= 0 {
		return fmt.Sprintf("smf: %s at offset %d: %v", e.kind, e.offset, e.cause)
	}
	return fmt.Sprintf("smf: %s: %v", e.kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// sentinel causes wrapped by newError at call sites; kept distinct so
// errors.Is can match the underlying condition independent of Kind.
var (
	errInvalidVlq    = errors.New("variable-length quantity exceeds 4 bytes")
	errVlqOutOfRange = errors.New("value does not fit in a variable-length quantity")
)
