package protocol

import (
	"errors"
	"fmt"
)

// DecodeKind identifies which frame shape failed to parse.
type DecodeKind uint8

const (
	// BadJoin means a PLAYER frame whose id is not a non-negative integer.
	BadJoin DecodeKind = iota + 1
	// BadUpdate means an UPDATE frame with the wrong field count or a
	// coordinate that is not a signed integer.
	BadUpdate
)

// String returns the string representation of the decode kind.
func (k DecodeKind) String() string {
	switch k {
	case BadJoin:
		return "BadJoin"
	case BadUpdate:
		return "BadUpdate"
	default:
		return "Unknown"
	}
}

// DecodeError reports a malformed PLAYER or UPDATE frame. Decode errors
// are non-fatal: the session logs them, drops the frame, and keeps the
// connection open.
type DecodeError struct {
	Kind  DecodeKind
	Frame string
	Err   error // underlying strconv error, may be nil
}

// Error returns the error message with the offending frame.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s in frame %q: %v", e.Kind, e.Frame, e.Err)
	}
	return fmt.Sprintf("protocol: %s in frame %q", e.Kind, e.Frame)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ErrNotState is returned by ParseState for frames without a STATE prefix.
var ErrNotState = errors.New("protocol: frame is not a state snapshot")
