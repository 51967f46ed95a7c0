package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Position is one entity's coordinates.
type Position struct {
	X int64
	Y int64
}

// Snapshot is a full copy of the world at one point in the mutation
// sequence. Values are detached from the live world: mutating a Snapshot
// never affects the server's state.
type Snapshot struct {
	Players map[uint64]Position
}

// NewSnapshot returns an empty snapshot with an allocated player map.
func NewSnapshot() Snapshot {
	return Snapshot{Players: make(map[uint64]Position)}
}

// Equal reports whether two snapshots describe the same id -> position
// mapping.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.Players) != len(other.Players) {
		return false
	}
	for id, pos := range s.Players {
		if other.Players[id] != pos {
			return false
		}
	}
	return true
}

// wireState is the JSON body of a STATE frame. JSON object keys must be
// strings, so ids are re-encoded as decimal strings and positions as
// two-element arrays, matching the source system's tuple serialization.
// Positions decode as slices so ParseState can reject the wrong arity;
// a fixed-size array would silently drop extra elements.
type wireState struct {
	Players map[string][]int64 `json:"players"`
}

// EncodeState serializes a snapshot into a STATE frame. Field order within
// the JSON object is unspecified; ParseState of the result always
// reproduces an equivalent snapshot.
func EncodeState(s Snapshot) (string, error) {
	w := wireState{Players: make(map[string][]int64, len(s.Players))}
	for id, pos := range s.Players {
		w.Players[strconv.FormatUint(id, 10)] = []int64{pos.X, pos.Y}
	}
	body, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("protocol: encode state: %w", err)
	}
	return StatePrefix + string(body), nil
}

// ParseState decodes a STATE frame back into a snapshot. It is the inverse
// of EncodeState and exists for clients and tests; the server never
// ingests state.
func ParseState(frame string) (Snapshot, error) {
	if !strings.HasPrefix(frame, StatePrefix) {
		return Snapshot{}, ErrNotState
	}
	var w wireState
	if err := json.Unmarshal([]byte(frame[len(StatePrefix):]), &w); err != nil {
		return Snapshot{}, fmt.Errorf("protocol: parse state: %w", err)
	}
	s := Snapshot{Players: make(map[uint64]Position, len(w.Players))}
	for raw, pos := range w.Players {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Snapshot{}, fmt.Errorf("protocol: parse state id %q: %w", raw, err)
		}
		if len(pos) != 2 {
			return Snapshot{}, fmt.Errorf("protocol: parse state id %q: position has %d elements, want 2", raw, len(pos))
		}
		s.Players[id] = Position{X: pos[0], Y: pos[1]}
	}
	return s, nil
}
