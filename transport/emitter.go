package transport

import (
	"sync"

	"github.com/google/uuid"
)

type handlerEntry struct {
	id string
	fn Handler
}

// Emitter is an ordered publish/subscribe fan-out keyed by event type.
// Handlers are invoked in subscription order. The handler list is
// snapshotted before iteration, so a handler registered during delivery is
// not invoked for the in-flight event, and cancellation during delivery is
// safe.
type Emitter struct {
	mu       sync.Mutex
	handlers map[EventType][]handlerEntry
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]handlerEntry)}
}

// On registers a handler for the given event type and returns an
// idempotent cancel func.
func (e *Emitter) On(t EventType, fn Handler) (cancel func()) {
	id := uuid.NewString()

	e.mu.Lock()
	e.handlers[t] = append(e.handlers[t], handlerEntry{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		entries := e.handlers[t]
		for i, entry := range entries {
			if entry.id == id {
				e.handlers[t] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers the event to every handler registered for its type.
func (e *Emitter) Emit(evt Event) {
	e.mu.Lock()
	entries := e.handlers[evt.Type]
	snapshot := make([]handlerEntry, len(entries))
	copy(snapshot, entries)
	e.mu.Unlock()

	for _, entry := range snapshot {
		entry.fn(evt)
	}
}

// RemoveAll drops every registered handler.
func (e *Emitter) RemoveAll() {
	e.mu.Lock()
	e.handlers = make(map[EventType][]handlerEntry)
	e.mu.Unlock()
}
