package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/worldsync-dev/worldsync/client"
	"github.com/worldsync-dev/worldsync/pkg/middleware"
	"github.com/worldsync-dev/worldsync/pkg/protocol"
	"github.com/worldsync-dev/worldsync/pkg/world"
)

// Server owns the world, the session manager, and the HTTP surface.
// One world per server; every connected session observes the same state.
type Server struct {
	config   *Config
	world    *world.World
	sessions *SessionManager
	upgrader websocket.Upgrader

	httpServer  *http.Server
	worldCancel context.CancelFunc

	logger *slog.Logger
}

// New creates a server from config. Nil config means defaults. The world
// loop starts when Run or StartWorld is called.
func New(config *Config, logger *slog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.Clone()
	config.withDefaults()

	if logger == nil {
		logger = slog.Default()
	}

	w := world.New(&world.Config{
		MailboxSize: config.MailboxSize,
		Hooks: world.Hooks{
			CommandApplied: func(kind protocol.CommandKind) { middleware.RecordCommand(kind.String()) },
			BroadcastSent:  middleware.RecordBroadcast,
			DeliveryError:  middleware.RecordDeliveryError,
			EncodeError:    middleware.RecordEncodeError,
			EntityCount:    middleware.RecordEntityCount,
		},
	}, logger)

	s := &Server{
		config:   config,
		world:    w,
		sessions: NewSessionManager(config.SessionConfig, config.MaxSessions, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: logger.With("component", "server"),
	}
	s.sessions.SetOnSessionCreate(func(*Session) { middleware.RecordSessionOpen() })
	s.sessions.SetOnSessionClose(func(*Session) { middleware.RecordSessionClose() })
	return s
}

// World returns the server's world. Useful for tests and embedding.
func (s *Server) World() *world.World {
	return s.world
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// StartWorld launches the world loop. Idempotent is not required; call it
// once. Run calls this itself; call it directly only when serving through
// a custom http.Server (httptest, for example).
func (s *Server) StartWorld() {
	ctx, cancel := context.WithCancel(context.Background())
	s.worldCancel = cancel
	go s.world.Run(ctx)
}

// Handler builds the HTTP surface:
//
//	GET /          demo client
//	GET /ws        WebSocket endpoint
//	GET /healthz   liveness probe
//	GET /metrics   Prometheus metrics
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.OpenTelemetry())
	r.Use(middleware.Prometheus())

	r.Get("/ws", s.HandleWebSocket)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", client.Handler())

	return r
}

// HandleWebSocket upgrades the request and starts a session.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.logger.Error("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	sess, err := s.sessions.Create(conn, s.world)
	if err != nil {
		s.logger.Warn("connection rejected", "error", err, "remote", r.RemoteAddr)
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"),
			time.Now().Add(time.Second),
		)
		conn.Close()
		return
	}

	// The request context dies when this handler returns; the session
	// outlives it.
	sess.Start(context.Background())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.world.Done():
		http.Error(w, "world stopped", http.StatusServiceUnavailable)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// Run starts the world and the HTTP server, then blocks until SIGINT or
// SIGTERM triggers a graceful shutdown.
func (s *Server) Run() error {
	s.StartWorld()

	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes all sessions, stops the world, and shuts down the HTTP
// server, bounded by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	// Sessions first so every joined entity gets its Leave while the
	// world loop is still draining commands.
	if err := s.sessions.Shutdown(ctx); err != nil {
		s.logger.Error("session shutdown error", "error", err)
	}

	if s.worldCancel != nil {
		s.worldCancel()
		select {
		case <-s.world.Done():
		case <-ctx.Done():
		}
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
