package world

import "github.com/worldsync-dev/worldsync/pkg/protocol"

// Hooks are optional observer callbacks invoked from the Run loop. All
// fields may be nil. Callbacks must be fast and must not call back into
// the World.
type Hooks struct {
	// CommandApplied fires after each mutation is applied.
	CommandApplied func(kind protocol.CommandKind)

	// BroadcastSent fires after each fan-out with the number of
	// successful recipients and the encoded frame size.
	BroadcastSent func(recipients, bytes int)

	// DeliveryError fires once per failed recipient.
	DeliveryError func()

	// EncodeError fires when a snapshot fails to encode and the broadcast
	// is skipped.
	EncodeError func()

	// EntityCount fires after each command with the current entity count.
	EntityCount func(n int)
}

func (h Hooks) commandApplied(kind protocol.CommandKind) {
	if h.CommandApplied != nil {
		h.CommandApplied(kind)
	}
}

func (h Hooks) broadcastSent(recipients, bytes int) {
	if h.BroadcastSent != nil {
		h.BroadcastSent(recipients, bytes)
	}
}

func (h Hooks) deliveryError() {
	if h.DeliveryError != nil {
		h.DeliveryError()
	}
}

func (h Hooks) encodeError() {
	if h.EncodeError != nil {
		h.EncodeError()
	}
}

func (h Hooks) entityCount(n int) {
	if h.EntityCount != nil {
		h.EntityCount(n)
	}
}
