package transport

import (
	"sync"

	"github.com/google/uuid"
)

type stateEntry struct {
	id string
	fn func(State)
}

// Hub bundles the per-adapter event emitter with the connection-state cell
// and its listener list. Adapters embed a Hub and drive it via SetState
// and Emit; the orchestrator consumes it through the Transport interface.
type Hub struct {
	emitter *Emitter

	mu        sync.Mutex
	state     State
	stateSubs []stateEntry
}

// NewHub creates a hub in StateDisconnected.
func NewHub() *Hub {
	return &Hub{
		emitter: NewEmitter(),
		state:   StateDisconnected,
	}
}

// Subscribe implements Transport.
func (h *Hub) Subscribe(t EventType, fn Handler) (cancel func()) {
	return h.emitter.On(t, fn)
}

// Emit delivers an event to subscribed handlers.
func (h *Hub) Emit(evt Event) { h.emitter.Emit(evt) }

// SubscribeState implements Transport.
func (h *Hub) SubscribeState(fn func(State)) (cancel func()) {
	id := uuid.NewString()

	h.mu.Lock()
	h.stateSubs = append(h.stateSubs, stateEntry{id: id, fn: fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, entry := range h.stateSubs {
			if entry.id == id {
				h.stateSubs = append(h.stateSubs[:i:i], h.stateSubs[i+1:]...)
				return
			}
		}
	}
}

// State implements Transport.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetState updates the connection state and notifies listeners. Setting
// the current state again is a no-op, so duplicate transitions never reach
// listeners.
func (h *Hub) SetState(s State) {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return
	}
	h.state = s
	snapshot := make([]stateEntry, len(h.stateSubs))
	copy(snapshot, h.stateSubs)
	h.mu.Unlock()

	for _, entry := range snapshot {
		entry.fn(s)
	}
}

// Reset drops every event and state listener. The orchestrator calls this
// while tearing an adapter down so no stale event outlives the swap.
func (h *Hub) Reset() {
	h.emitter.RemoveAll()
	h.mu.Lock()
	h.stateSubs = nil
	h.mu.Unlock()
}
