package protocol

import (
	"errors"
	"testing"
)

func TestParseCommandJoin(t *testing.T) {
	tests := []struct {
		frame string
		id    uint64
	}{
		{"PLAYER:0", 0},
		{"PLAYER:7", 7},
		{"PLAYER:18446744073709551615", 18446744073709551615},
	}

	for _, tt := range tests {
		cmd, err := ParseCommand(tt.frame)
		if err != nil {
			t.Fatalf("ParseCommand(%q) error: %v", tt.frame, err)
		}
		join, ok := cmd.(Join)
		if !ok {
			t.Fatalf("ParseCommand(%q) = %T, want Join", tt.frame, cmd)
		}
		if join.ID != tt.id {
			t.Errorf("ParseCommand(%q).ID = %d, want %d", tt.frame, join.ID, tt.id)
		}
	}
}

func TestParseCommandUpdate(t *testing.T) {
	tests := []struct {
		frame string
		x, y  int64
	}{
		{"UPDATE:0,0", 0, 0},
		{"UPDATE:3,4", 3, 4},
		{"UPDATE:-12,99", -12, 99},
		{"UPDATE:9223372036854775807,-9223372036854775808", 9223372036854775807, -9223372036854775808},
	}

	for _, tt := range tests {
		cmd, err := ParseCommand(tt.frame)
		if err != nil {
			t.Fatalf("ParseCommand(%q) error: %v", tt.frame, err)
		}
		up, ok := cmd.(Update)
		if !ok {
			t.Fatalf("ParseCommand(%q) = %T, want Update", tt.frame, cmd)
		}
		if up.X != tt.x || up.Y != tt.y {
			t.Errorf("ParseCommand(%q) = (%d,%d), want (%d,%d)", tt.frame, up.X, up.Y, tt.x, tt.y)
		}
	}
}

func TestParseCommandMalformed(t *testing.T) {
	tests := []struct {
		frame string
		kind  DecodeKind
	}{
		{"PLAYER:", BadJoin},
		{"PLAYER:abc", BadJoin},
		{"PLAYER:-1", BadJoin},
		{"PLAYER:1.5", BadJoin},
		{"UPDATE:", BadUpdate},
		{"UPDATE:1", BadUpdate},
		{"UPDATE:1,2,3", BadUpdate},
		{"UPDATE:a,2", BadUpdate},
		{"UPDATE:1,b", BadUpdate},
		{"UPDATE:1.5,2", BadUpdate},
		{"UPDATE: 1,2", BadUpdate},
	}

	for _, tt := range tests {
		cmd, err := ParseCommand(tt.frame)
		if cmd != nil {
			t.Errorf("ParseCommand(%q) = %v, want nil command", tt.frame, cmd)
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("ParseCommand(%q) error = %v, want *DecodeError", tt.frame, err)
		}
		if de.Kind != tt.kind {
			t.Errorf("ParseCommand(%q) kind = %v, want %v", tt.frame, de.Kind, tt.kind)
		}
		if de.Frame != tt.frame {
			t.Errorf("ParseCommand(%q) recorded frame %q", tt.frame, de.Frame)
		}
	}
}

func TestParseCommandUnrecognized(t *testing.T) {
	tests := []string{
		"",
		"hello",
		"player:7",         // prefixes are case-sensitive
		"STATE:{}",         // server frames are unrecognized client input
		"JOIN:7",
		"PLAYER 7",
	}

	for _, frame := range tests {
		cmd, err := ParseCommand(frame)
		if err != nil {
			t.Fatalf("ParseCommand(%q) error: %v", frame, err)
		}
		ur, ok := cmd.(Unrecognized)
		if !ok {
			t.Fatalf("ParseCommand(%q) = %T, want Unrecognized", frame, cmd)
		}
		if ur.Raw != frame {
			t.Errorf("ParseCommand(%q).Raw = %q", frame, ur.Raw)
		}
	}
}

func TestCommandKinds(t *testing.T) {
	tests := []struct {
		cmd  Command
		kind CommandKind
		name string
	}{
		{Join{ID: 1}, KindJoin, "Join"},
		{Update{X: 1, Y: 2}, KindUpdate, "Update"},
		{Leave{ID: 1}, KindLeave, "Leave"},
		{Unrecognized{Raw: "x"}, KindUnrecognized, "Unrecognized"},
	}

	for _, tt := range tests {
		if tt.cmd.Kind() != tt.kind {
			t.Errorf("%T.Kind() = %v, want %v", tt.cmd, tt.cmd.Kind(), tt.kind)
		}
		if tt.kind.String() != tt.name {
			t.Errorf("%v.String() = %q, want %q", tt.kind, tt.kind.String(), tt.name)
		}
	}
}

func TestEncodeEcho(t *testing.T) {
	if got := EncodeEcho("hello"); got != "ECHO:hello" {
		t.Errorf("EncodeEcho(hello) = %q", got)
	}
	// Echoes are verbatim, including text that resembles a command.
	if got := EncodeEcho("PLAYER 7"); got != "ECHO:PLAYER 7" {
		t.Errorf("EncodeEcho(PLAYER 7) = %q", got)
	}
}
