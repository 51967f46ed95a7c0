package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/worldsync-dev/worldsync/pkg/world"
)

// SessionManager tracks all live sessions.
// It handles session creation, lookup, capacity limits, and shutdown.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	config      *SessionConfig
	maxSessions int

	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peakSessions int

	onSessionCreate func(*Session)
	onSessionClose  func(*Session)

	logger *slog.Logger
}

// ManagerStats is a snapshot of session manager counters.
type ManagerStats struct {
	ActiveSessions int
	TotalCreated   uint64
	TotalClosed    uint64
	PeakSessions   int
}

// NewSessionManager creates a SessionManager. maxSessions of zero means
// unlimited.
func NewSessionManager(config *SessionConfig, maxSessions int, logger *slog.Logger) *SessionManager {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions:    make(map[string]*Session),
		config:      config,
		maxSessions: maxSessions,
		logger:      logger.With("component", "session_manager"),
	}
}

// Create builds a session for an upgraded connection and registers it.
// Returns ErrMaxSessionsReached when the capacity limit is hit; the caller
// owns closing the connection in that case.
func (sm *SessionManager) Create(conn *websocket.Conn, w *world.World) (*Session, error) {
	sm.mu.Lock()
	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		sm.mu.Unlock()
		return nil, ErrMaxSessionsReached
	}

	sess := newSession(conn, w, sm.config, sm.logger)
	sess.onClose = sm.remove
	sm.sessions[sess.ID] = sess
	sm.totalCreated.Add(1)
	if len(sm.sessions) > sm.peakSessions {
		sm.peakSessions = len(sm.sessions)
	}
	count := len(sm.sessions)
	sm.mu.Unlock()

	if sm.onSessionCreate != nil {
		sm.onSessionCreate(sess)
	}
	sm.logger.Info("session created", "session_id", sess.ID, "active", count)
	return sess, nil
}

// remove drops a session from tracking. Installed as the session's onClose
// callback; the session has already torn down its transport.
func (sm *SessionManager) remove(sess *Session) {
	sm.mu.Lock()
	_, ok := sm.sessions[sess.ID]
	if ok {
		delete(sm.sessions, sess.ID)
		sm.totalClosed.Add(1)
	}
	count := len(sm.sessions)
	sm.mu.Unlock()

	if !ok {
		return
	}
	if sm.onSessionClose != nil {
		sm.onSessionClose(sess)
	}
	sm.logger.Info("session removed", "session_id", sess.ID, "active", count)
}

// Get returns a session by ID, or nil.
func (sm *SessionManager) Get(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ForEach iterates over a snapshot of the active sessions. Return false
// from fn to stop early.
func (sm *SessionManager) ForEach(fn func(*Session) bool) {
	sm.mu.RLock()
	snapshot := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		snapshot = append(snapshot, sess)
	}
	sm.mu.RUnlock()

	for _, sess := range snapshot {
		if !fn(sess) {
			return
		}
	}
}

// SetOnSessionCreate sets the callback invoked after a session registers.
func (sm *SessionManager) SetOnSessionCreate(fn func(*Session)) {
	sm.onSessionCreate = fn
}

// SetOnSessionClose sets the callback invoked after a session is removed.
func (sm *SessionManager) SetOnSessionClose(fn func(*Session)) {
	sm.onSessionClose = fn
}

// Stats returns a snapshot of manager counters.
func (sm *SessionManager) Stats() ManagerStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return ManagerStats{
		ActiveSessions: len(sm.sessions),
		TotalCreated:   sm.totalCreated.Load(),
		TotalClosed:    sm.totalClosed.Load(),
		PeakSessions:   sm.peakSessions,
	}
}

// Shutdown closes every active session and waits for removal, bounded by
// ctx. Each session synthesizes its own Leave during Close.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.mu.RLock()
	snapshot := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		snapshot = append(snapshot, sess)
	}
	sm.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, sess := range snapshot {
			wg.Add(1)
			go func(s *Session) {
				defer wg.Done()
				s.Close()
			}(sess)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
