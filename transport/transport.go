package transport

import "context"

// State is the process-wide connection state of the active transport.
type State string

const (
	// StateDisconnected means no transport is active or retries are
	// exhausted.
	StateDisconnected State = "disconnected"
	// StateConnecting means the initial connection is being established.
	StateConnecting State = "connecting"
	// StateConnected means the transport is live.
	StateConnected State = "connected"
	// StateReconnecting means the transport dropped and a retry is
	// scheduled or in flight.
	StateReconnecting State = "reconnecting"
)

// Handler receives domain events from a transport adapter.
type Handler func(Event)

// Transport is the contract every adapter implements. Exactly one adapter
// is active per orchestrator at a time; the orchestrator subscribes to its
// events and state changes, forwards them into the store, and tears all
// listeners down before activating a replacement.
type Transport interface {
	// Connect starts the transport for the given user. It never blocks on
	// network I/O and never returns transport-level failures; those
	// surface as EventError events and drive the adapter's own state
	// machine. Calling Connect while connecting or connected is a no-op.
	Connect(ctx context.Context, userID string) error

	// Disconnect stops the transport: aborts in-flight I/O, clears all
	// timers, disables auto-retry, and transitions to StateDisconnected.
	// Safe to call at any time, repeatedly.
	Disconnect()

	// Subscribe registers a handler for one event type. The returned
	// cancel func is idempotent.
	Subscribe(t EventType, h Handler) (cancel func())

	// SubscribeState registers a connection-state listener. The listener
	// is not replayed the current state; the store handles replay.
	SubscribeState(fn func(State)) (cancel func())

	// Reset drops every registered event and state listener. The
	// orchestrator calls it while tearing the adapter down so no stale
	// handler survives a transport swap.
	Reset()

	// State returns the adapter's current connection state.
	State() State
}
