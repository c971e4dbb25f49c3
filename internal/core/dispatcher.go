package core

import (
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

type Listener func(Event)

// ListenerID identifies a registration; Off needs it because funcs are not comparable.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Dispatcher is a synchronous publish/subscribe channel keyed by event kind.
// Emit runs listeners in registration order over a snapshot, so listeners may
// call On/Off while being dispatched. A panicking listener is logged and the
// remaining listeners still run.
type Dispatcher struct {
	mu        sync.RWMutex
	next      ListenerID
	listeners map[EventKind][]listenerEntry
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[EventKind][]listenerEntry)}
}

func (d *Dispatcher) On(kind EventKind, fn Listener) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.listeners[kind] = append(d.listeners[kind], listenerEntry{id: d.next, fn: fn})
	return d.next
}

// Off removes a listener and reports whether it was registered.
func (d *Dispatcher) Off(kind EventKind, id ListenerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.listeners[kind]
	i := slices.IndexFunc(entries, func(e listenerEntry) bool { return e.id == id })
	if i < 0 {
		return false
	}
	d.listeners[kind] = slices.Delete(slices.Clone(entries), i, i+1)
	return true
}

func (d *Dispatcher) Len(kind EventKind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[kind])
}

func (d *Dispatcher) Emit(e Event) {
	d.mu.RLock()
	snapshot := slices.Clone(d.listeners[e.Kind()])
	d.mu.RUnlock()

	for _, l := range snapshot {
		d.call(l, e)
	}
}

func (d *Dispatcher) call(l listenerEntry, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("module", "core.dispatcher").
				Str("kind", string(e.Kind())).
				Str("stream_id", string(e.StreamID())).
				Interface("panic", r).
				Msg("listener panicked")
		}
	}()
	if l.fn != nil {
		l.fn(e)
	}
}
