package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/worldsync-dev/worldsync/pkg/protocol"
	"github.com/worldsync-dev/worldsync/pkg/world"
)

// leaveTimeout bounds the synthetic Leave submitted during teardown so a
// full mailbox cannot wedge session cleanup.
const leaveTimeout = 5 * time.Second

// Session represents one client's persistent connection from upgrade to
// disconnect. It bridges the connection and the world: inbound frames
// become world commands, world broadcasts become outbound frames.
//
// A session moves through four states: unjoined after the upgrade, active
// once a Join frame names its entity id, closing when the connection
// terminates for any reason, then closed. Closing synthesizes a Leave for
// the joined entity before the transport is released.
type Session struct {
	// Identity
	ID        string
	CreatedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex // protects conn writes
	closed  atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc

	world  *world.World
	config *SessionConfig
	logger *slog.Logger

	// entityID is valid only while joined is true.
	entityID atomic.Uint64
	joined   atomic.Bool

	// superseded is set when another session joins with the same entity
	// id and the world replaces this session's handle. A superseded
	// session must not synthesize a Leave: the id now belongs to the
	// replacement.
	superseded atomic.Bool

	onClose func(*Session)

	// Counters reported at close.
	framesRecv atomic.Uint64
	framesSent atomic.Uint64
	bytesRecv  atomic.Uint64
	bytesSent  atomic.Uint64
}

// generateSessionID generates a cryptographically random session ID.
func generateSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// newSession creates a session for an upgraded connection.
func newSession(conn *websocket.Conn, w *world.World, config *SessionConfig, logger *slog.Logger) *Session {
	id := generateSessionID()
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		conn:      conn,
		done:      make(chan struct{}),
		world:     w,
		config:    config,
		logger:    logger.With("session_id", id),
	}
}

// Start launches the session loops. It returns immediately; the loops run
// until the connection closes or ctx is cancelled. Commands forwarded to
// the world are cancelled when the session closes.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.readLoop(ctx)
	go s.heartbeatLoop()
}

// Joined reports whether the session has completed a join handshake.
func (s *Session) Joined() bool {
	return s.joined.Load()
}

// EntityID returns the joined entity id. Valid only while Joined.
func (s *Session) EntityID() uint64 {
	return s.entityID.Load()
}

// Handle returns the session's delivery handle for registration with the
// world. Closing the handle supersedes the session instead of tearing it
// down as a departure.
func (s *Session) Handle() world.Handle {
	return sessionHandle{s: s}
}

// readLoop reads frames until the connection dies. Malformed frames are
// logged and skipped; only transport errors end the loop.
func (s *Session) readLoop(ctx context.Context) {
	defer s.Close()

	s.conn.SetReadLimit(s.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		return nil
	})
	// gorilla answers transport pings with pongs by default; the handler
	// only needs to keep the read deadline moving.
	s.conn.SetPingHandler(nil)

	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		s.framesRecv.Add(1)
		s.bytesRecv.Add(uint64(len(payload)))

		if msgType == websocket.BinaryMessage {
			// The protocol is text-only. Binary frames have no state
			// effect and do not end the session.
			s.logger.Warn("binary frame rejected", "bytes", len(payload))
			continue
		}
		s.handleFrame(ctx, string(payload))
	}
}

// handleFrame decodes one inbound frame and forwards the command.
func (s *Session) handleFrame(ctx context.Context, frame string) {
	cmd, err := protocol.ParseCommand(frame)
	if err != nil {
		// Lenient parsing: drop the frame, keep the connection.
		s.logger.Warn("discarding malformed frame", "error", err)
		return
	}

	if s.world == nil {
		s.logger.Error("command dropped", "error", ErrNoWorld, "kind", cmd.Kind())
		return
	}

	switch c := cmd.(type) {
	case protocol.Join:
		// The id is client-asserted. Record it before registering so
		// broadcasts and teardown agree on the session's identity.
		s.entityID.Store(c.ID)
		s.joined.Store(true)
		if err := s.world.Join(ctx, c.ID, s.Handle()); err != nil {
			s.logger.Error("join forward failed", "id", c.ID, "error", err)
		}

	case protocol.Update:
		// Updates before a join are forwarded permissively under the
		// zero-value id, matching the tolerant store semantics.
		if err := s.world.Update(ctx, s.entityID.Load(), c.X, c.Y); err != nil {
			s.logger.Error("update forward failed", "error", err)
		}

	case protocol.Unrecognized:
		if err := s.writeFrame(protocol.EncodeEcho(c.Raw)); err != nil {
			s.logger.Warn("echo failed", "error", err)
		}
	}
}

// heartbeatLoop sends transport pings until the session closes.
func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// writeFrame writes one text frame under the write lock.
func (s *Session) writeFrame(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return NewSessionError(s.ID, "write frame", err)
	}
	s.framesSent.Add(1)
	s.bytesSent.Add(uint64(len(frame)))
	return nil
}

// Close tears the session down: synthesize a Leave for the joined entity,
// close the transport, and notify the server. Idempotent; safe from any
// goroutine.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
	if s.cancel != nil {
		s.cancel()
	}

	if s.joined.Load() && !s.superseded.Load() && s.world != nil {
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		if err := s.world.Leave(ctx, s.entityID.Load()); err != nil {
			s.logger.Error("leave forward failed", "id", s.entityID.Load(), "error", err)
		}
		cancel()
	}

	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.conn.Close()

	if s.onClose != nil {
		s.onClose(s)
	}
	s.logger.Info("session closed",
		"frames_recv", s.framesRecv.Load(),
		"frames_sent", s.framesSent.Load(),
		"bytes_recv", s.bytesRecv.Load(),
		"bytes_sent", s.bytesSent.Load())
}

// sessionHandle adapts a Session to world.Handle. The world calls Deliver
// from its Run loop and Close when a newer session claims the same entity
// id; neither call may feed a command back into the mailbox synchronously.
type sessionHandle struct {
	s *Session
}

// Deliver writes a broadcast frame to the session's client. A failed write
// schedules the session's teardown asynchronously so the broadcast fan-out
// is never blocked by one dead connection.
func (h sessionHandle) Deliver(frame string) error {
	if err := h.s.writeFrame(frame); err != nil {
		go h.s.Close()
		return err
	}
	return nil
}

// Close marks the session superseded and tears it down without a Leave.
func (h sessionHandle) Close() error {
	h.s.superseded.Store(true)
	go h.s.Close()
	return nil
}
