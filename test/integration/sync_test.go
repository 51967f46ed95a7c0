package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/worldsync-dev/worldsync/pkg/protocol"
	"github.com/worldsync-dev/worldsync/pkg/server"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(nil, logger)
	srv.StartWorld()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write %q failed: %v", frame, err)
	}
}

func awaitState(t *testing.T, conn *websocket.Conn, pred func(protocol.Snapshot) bool) protocol.Snapshot {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed waiting for state: %v", err)
		}
		snap, err := protocol.ParseState(string(payload))
		if err != nil {
			continue
		}
		if pred(snap) {
			return snap
		}
	}
}

// TestTwoClientConvergence walks the canonical two-client session: both
// clients join, one moves, and both converge on the identical snapshot.
func TestTwoClientConvergence(t *testing.T) {
	ts := startServer(t)

	connA := dial(t, ts)
	send(t, connA, "PLAYER:10")
	awaitState(t, connA, func(s protocol.Snapshot) bool {
		_, ok := s.Players[10]
		return ok
	})

	connB := dial(t, ts)
	send(t, connB, "PLAYER:20")

	// Both clients see both entities once B has joined.
	for _, conn := range []*websocket.Conn{connA, connB} {
		awaitState(t, conn, func(s protocol.Snapshot) bool {
			_, a := s.Players[10]
			_, b := s.Players[20]
			return a && b
		})
	}

	send(t, connA, "UPDATE:1,1")

	want := protocol.Snapshot{Players: map[uint64]protocol.Position{
		10: {X: 1, Y: 1},
		20: {X: 0, Y: 0},
	}}
	for _, conn := range []*websocket.Conn{connA, connB} {
		snap := awaitState(t, conn, func(s protocol.Snapshot) bool {
			return s.Players[10] == (protocol.Position{X: 1, Y: 1})
		})
		if !snap.Equal(want) {
			t.Errorf("snapshot = %v, want %v", snap.Players, want.Players)
		}
	}
}

func TestDepartureObservedByRemainingClients(t *testing.T) {
	ts := startServer(t)

	connA := dial(t, ts)
	connB := dial(t, ts)
	send(t, connA, "PLAYER:10")
	send(t, connB, "PLAYER:20")

	awaitState(t, connA, func(s protocol.Snapshot) bool {
		_, a := s.Players[10]
		_, b := s.Players[20]
		return a && b
	})

	connB.Close()

	snap := awaitState(t, connA, func(s protocol.Snapshot) bool {
		_, gone := s.Players[20]
		return !gone
	})
	if _, ok := snap.Players[10]; !ok {
		t.Error("remaining entity dropped with the departed one")
	}
}

func TestUpdateBeforeJoinStillBroadcasts(t *testing.T) {
	ts := startServer(t)

	// An unjoined sender has no delivery handle, so its own update cannot
	// reach it. A joined observer sees the mutation instead.
	observer := dial(t, ts)
	send(t, observer, "PLAYER:20")
	awaitState(t, observer, func(s protocol.Snapshot) bool {
		_, ok := s.Players[20]
		return ok
	})

	sender := dial(t, ts)
	send(t, sender, "UPDATE:4,9")

	// A pre-join update is attributed to the zero-value id rather than
	// terminating the connection.
	snap := awaitState(t, observer, func(s protocol.Snapshot) bool {
		_, ok := s.Players[0]
		return ok
	})
	if snap.Players[0] != (protocol.Position{X: 4, Y: 9}) {
		t.Errorf("entity 0 = %v, want (4,9)", snap.Players[0])
	}

	// The sender's connection survives; joining afterwards works and the
	// sender starts receiving broadcasts.
	send(t, sender, "PLAYER:10")
	awaitState(t, sender, func(s protocol.Snapshot) bool {
		_, ok := s.Players[10]
		return ok
	})
}

func TestLateJoinerReceivesExistingWorld(t *testing.T) {
	ts := startServer(t)

	connA := dial(t, ts)
	send(t, connA, "PLAYER:10")
	send(t, connA, "UPDATE:-5,12")
	awaitState(t, connA, func(s protocol.Snapshot) bool {
		return s.Players[10] == (protocol.Position{X: -5, Y: 12})
	})

	connB := dial(t, ts)
	send(t, connB, "PLAYER:20")

	snap := awaitState(t, connB, func(s protocol.Snapshot) bool {
		_, ok := s.Players[20]
		return ok
	})
	if snap.Players[10] != (protocol.Position{X: -5, Y: 12}) {
		t.Errorf("late joiner sees entity 10 at %v, want (-5,12)", snap.Players[10])
	}
}
