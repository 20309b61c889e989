package client

import (
	"encoding/json"
	"sync"
)

// EventHandler receives one inbound gateway event. Handlers run on the
// receive goroutine and must not block; anything slow belongs on a channel
// or goroutine of the handler's own.
type EventHandler func(event string, payload json.RawMessage)

// Dispatcher fans inbound events out to a primary handler and a keyed
// registry of listeners. Listeners may be added or removed at any time,
// including from inside a handler running in a dispatch: dispatch iterates
// a snapshot, never the live registry.
type Dispatcher struct {
	mu        sync.RWMutex
	primary   EventHandler
	listeners map[string]EventHandler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[string]EventHandler),
	}
}

// SetHandler installs the primary handler. Passing nil clears it.
func (d *Dispatcher) SetHandler(h EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.primary = h
}

// AddListener registers a listener under a caller-chosen identifier,
// replacing any previous listener with the same identifier.
func (d *Dispatcher) AddListener(id string, h EventHandler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[id] = h
}

// RemoveListener unregisters the listener with the given identifier.
// Removing an unknown identifier is a no-op.
func (d *Dispatcher) RemoveListener(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, id)
}

// ListenerCount returns the number of registered listeners.
func (d *Dispatcher) ListenerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// Clear removes every listener and the primary handler. The connection
// never calls this itself; listener lifecycle is caller-owned so that a
// UI component can survive a transient reconnect.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.primary = nil
	d.listeners = make(map[string]EventHandler)
}

// Dispatch invokes the primary handler (if set) and then every registered
// listener. No ordering is guaranteed between listeners. Handlers are
// invoked outside the registry lock so they can mutate the registry.
func (d *Dispatcher) Dispatch(event string, payload json.RawMessage) {
	d.mu.RLock()
	primary := d.primary
	snapshot := make([]EventHandler, 0, len(d.listeners))
	for _, h := range d.listeners {
		snapshot = append(snapshot, h)
	}
	d.mu.RUnlock()

	if primary != nil {
		primary(event, payload)
	}
	for _, h := range snapshot {
		h(event, payload)
	}
}
