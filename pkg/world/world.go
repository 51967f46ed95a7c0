package world

import (
	"context"
	"errors"
	"log/slog"

	"github.com/worldsync-dev/worldsync/pkg/protocol"
)

// ErrClosed is returned when a command is submitted after the world's Run
// loop has exited.
var ErrClosed = errors.New("world: closed")

// Handle delivers frames to exactly one connected session. Implementations
// must be safe for use from the world's Run goroutine. A Handle is a weak
// reference: the world may hold it after the session is gone, in which
// case Deliver reports an error and the session's own teardown removes the
// registry entry.
type Handle interface {
	// Deliver writes one outbound frame to the session's client.
	Deliver(frame string) error

	// Close releases the handle. Called only when a Join replaces a prior
	// handle for the same entity id.
	Close() error
}

// Config holds configuration for a World.
type Config struct {
	// MailboxSize is the command channel buffer. Producers block once the
	// mailbox is full. Default: 256.
	MailboxSize int

	// Hooks receive observability callbacks from the Run loop. Optional.
	Hooks Hooks
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MailboxSize: 256,
	}
}

type op uint8

const (
	opJoin op = iota + 1
	opUpdate
	opLeave
	opSnapshot
)

// envelope is one mailbox entry. Fields beyond op and id are set per
// operation; envelopes are immutable once sent.
type envelope struct {
	op     op
	id     uint64
	x, y   int64
	handle Handle
	reply  chan protocol.Snapshot
}

// World is the sole owner of the entity map and the delivery registry.
// Construct with New, start Run in its own goroutine, and submit commands
// through Join, Update, Leave, and Snapshot.
type World struct {
	mailbox chan envelope
	done    chan struct{}

	// Owned exclusively by the Run loop.
	players  map[uint64]protocol.Position
	registry map[uint64]Handle

	hooks  Hooks
	logger *slog.Logger
}

// New creates a World. Pass nil to use defaults.
func New(config *Config, logger *slog.Logger) *World {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MailboxSize <= 0 {
		config.MailboxSize = DefaultConfig().MailboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &World{
		mailbox:  make(chan envelope, config.MailboxSize),
		done:     make(chan struct{}),
		players:  make(map[uint64]protocol.Position),
		registry: make(map[uint64]Handle),
		hooks:    config.Hooks,
		logger:   logger.With("component", "world"),
	}
}

// Run drains the mailbox until ctx is cancelled. It must be called exactly
// once; commands submitted after it returns fail with ErrClosed.
func (w *World) Run(ctx context.Context) {
	defer close(w.done)

	w.logger.Info("world started", "mailbox", cap(w.mailbox))
	for {
		select {
		case env := <-w.mailbox:
			w.apply(env)
		case <-ctx.Done():
			// Drain what already arrived so accepted commands are never
			// silently dropped.
			for {
				select {
				case env := <-w.mailbox:
					w.apply(env)
				default:
					w.logger.Info("world stopped", "entities", len(w.players))
					return
				}
			}
		}
	}
}

// Done is closed when the Run loop has exited.
func (w *World) Done() <-chan struct{} {
	return w.done
}

// Join registers handle as the delivery target for id and inserts the
// entity at (0,0) if it does not exist. A prior handle for the same id is
// closed and replaced. Blocks while the mailbox is full.
func (w *World) Join(ctx context.Context, id uint64, handle Handle) error {
	return w.send(ctx, envelope{op: opJoin, id: id, handle: handle})
}

// Update moves entity id to (x,y), inserting it if it has never joined.
func (w *World) Update(ctx context.Context, id uint64, x, y int64) error {
	return w.send(ctx, envelope{op: opUpdate, id: id, x: x, y: y})
}

// Leave removes entity id from the world and the registry. No-op if
// absent.
func (w *World) Leave(ctx context.Context, id uint64) error {
	return w.send(ctx, envelope{op: opLeave, id: id})
}

// Snapshot returns a detached copy of the current world state. Because it
// travels through the mailbox, the copy reflects every command submitted
// before it by the same caller.
func (w *World) Snapshot(ctx context.Context) (protocol.Snapshot, error) {
	reply := make(chan protocol.Snapshot, 1)
	if err := w.send(ctx, envelope{op: opSnapshot, reply: reply}); err != nil {
		return protocol.Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-w.done:
		return protocol.Snapshot{}, ErrClosed
	case <-ctx.Done():
		return protocol.Snapshot{}, ctx.Err()
	}
}

func (w *World) send(ctx context.Context, env envelope) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.mailbox <- env:
		return nil
	case <-w.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// apply executes one command. Runs only on the Run goroutine.
func (w *World) apply(env envelope) {
	switch env.op {
	case opJoin:
		if _, ok := w.players[env.id]; !ok {
			w.players[env.id] = protocol.Position{}
		}
		if prior, ok := w.registry[env.id]; ok && prior != env.handle {
			if err := prior.Close(); err != nil {
				w.logger.Warn("closing replaced handle", "id", env.id, "error", err)
			}
		}
		w.registry[env.id] = env.handle
		w.hooks.commandApplied(protocol.KindJoin)
		w.logger.Info("entity joined", "id", env.id, "entities", len(w.players))
		w.broadcast()

	case opUpdate:
		w.players[env.id] = protocol.Position{X: env.x, Y: env.y}
		w.hooks.commandApplied(protocol.KindUpdate)
		w.broadcast()

	case opLeave:
		delete(w.players, env.id)
		delete(w.registry, env.id)
		w.hooks.commandApplied(protocol.KindLeave)
		w.logger.Info("entity left", "id", env.id, "entities", len(w.players))
		w.broadcast()

	case opSnapshot:
		env.reply <- w.snapshot()
	}
	w.hooks.entityCount(len(w.players))
}

// snapshot copies the entity map. Runs only on the Run goroutine.
func (w *World) snapshot() protocol.Snapshot {
	snap := protocol.Snapshot{Players: make(map[uint64]protocol.Position, len(w.players))}
	for id, pos := range w.players {
		snap.Players[id] = pos
	}
	return snap
}

// broadcast encodes the current state once and delivers it to every
// registered handle. Runs inline in the command that mutated the state, so
// no later mutation can interleave with the fan-out.
func (w *World) broadcast() {
	frame, err := protocol.EncodeState(w.snapshot())
	if err != nil {
		// The mutation stays committed; only this broadcast is skipped.
		w.logger.Error("encode state failed", "error", err)
		w.hooks.encodeError()
		return
	}

	delivered := 0
	for id, handle := range w.registry {
		if err := handle.Deliver(frame); err != nil {
			w.logger.Warn("delivery failed", "id", id, "error", err)
			w.hooks.deliveryError()
			continue
		}
		delivered++
	}
	w.hooks.broadcastSent(delivered, len(frame))
}
