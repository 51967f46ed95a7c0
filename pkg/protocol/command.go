package protocol

import (
	"strconv"
	"strings"
)

// Frame prefixes. A frame is routed on the first matching prefix; there is
// no escaping, so a prefix match is authoritative.
const (
	JoinPrefix   = "PLAYER:"
	UpdatePrefix = "UPDATE:"
	StatePrefix  = "STATE:"
	EchoPrefix   = "ECHO:"
)

// CommandKind identifies a Command variant.
type CommandKind uint8

const (
	KindJoin CommandKind = iota + 1
	KindUpdate
	KindLeave
	KindUnrecognized
)

// String returns the string representation of the command kind.
func (k CommandKind) String() string {
	switch k {
	case KindJoin:
		return "Join"
	case KindUpdate:
		return "Update"
	case KindLeave:
		return "Leave"
	case KindUnrecognized:
		return "Unrecognized"
	default:
		return "Unknown"
	}
}

// Command is the closed set of messages a client frame can decode to.
// Leave is never parsed from the wire; sessions synthesize it on teardown.
type Command interface {
	Kind() CommandKind
}

// Join announces the caller's entity id. Ids are client-asserted; the
// server never assigns them.
type Join struct {
	ID uint64
}

// Kind returns KindJoin.
func (Join) Kind() CommandKind { return KindJoin }

// Update moves the caller's entity. The entity id comes from session
// context, not from the frame.
type Update struct {
	X int64
	Y int64
}

// Kind returns KindUpdate.
func (Update) Kind() CommandKind { return KindUpdate }

// Leave removes an entity. Synthesized by the session layer when a
// connection terminates for any reason.
type Leave struct {
	ID uint64
}

// Kind returns KindLeave.
func (Leave) Kind() CommandKind { return KindLeave }

// Unrecognized carries a frame that matched no known prefix. It is not an
// error; sessions echo the raw text back to the sender.
type Unrecognized struct {
	Raw string
}

// Kind returns KindUnrecognized.
func (Unrecognized) Kind() CommandKind { return KindUnrecognized }

// ParseCommand decodes one client frame into a Command.
//
// A malformed PLAYER or UPDATE payload returns a nil Command and a
// *DecodeError; any frame outside the known prefixes returns Unrecognized
// with a nil error. ParseCommand is safe for concurrent use.
func ParseCommand(frame string) (Command, error) {
	switch {
	case strings.HasPrefix(frame, JoinPrefix):
		raw := frame[len(JoinPrefix):]
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, &DecodeError{Kind: BadJoin, Frame: frame, Err: err}
		}
		return Join{ID: id}, nil

	case strings.HasPrefix(frame, UpdatePrefix):
		raw := frame[len(UpdatePrefix):]
		parts := strings.Split(raw, ",")
		if len(parts) != 2 {
			return nil, &DecodeError{Kind: BadUpdate, Frame: frame}
		}
		x, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, &DecodeError{Kind: BadUpdate, Frame: frame, Err: err}
		}
		y, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, &DecodeError{Kind: BadUpdate, Frame: frame, Err: err}
		}
		return Update{X: x, Y: y}, nil

	default:
		return Unrecognized{Raw: frame}, nil
	}
}

// EncodeEcho wraps an unrecognized frame for return to its sender. The
// prefix distinguishes echoes from state broadcasts on the client side.
func EncodeEcho(raw string) string {
	return EchoPrefix + raw
}
