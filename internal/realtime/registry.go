package realtime

import (
	"sync"

	"github.com/vovakirdan/marketsync/internal/proto"
)

// Handler consumes a decoded event.
type Handler func(proto.Event)

// HandlerSet maps event kinds to the active handler for that kind.
type HandlerSet map[proto.Kind]Handler

type listener struct {
	id uint64
	h  Handler
}

// cell holds the handlers for one event kind. Cells are created once and never replaced.
type cell struct {
	active    Handler
	listeners []listener
}

// Registry stores consumer handlers per event kind.
type Registry struct {
	mu     sync.RWMutex
	cells  map[proto.Kind]*cell
	nextID uint64
}

func NewRegistry(kinds []proto.Kind) *Registry {
	r := &Registry{cells: make(map[proto.Kind]*cell, len(kinds))}
	for _, k := range kinds {
		r.cells[k] = &cell{}
	}
	return r
}

// Swap replaces the active handler of every kind at once. Kinds missing from set are cleared.
func (r *Registry) Swap(set HandlerSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, c := range r.cells {
		c.active = set[kind]
	}
}

// Subscribe adds a listener for kind. The returned cancel func is idempotent.
func (r *Registry) Subscribe(kind proto.Kind, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cells[kind]
	if !ok || h == nil {
		return func() {}
	}
	r.nextID++
	id := r.nextID
	c.listeners = append(c.listeners, listener{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() { r.unsubscribe(kind, id) })
	}
}

func (r *Registry) unsubscribe(kind proto.Kind, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cells[kind]
	for i, l := range c.listeners {
		if l.id == id {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return
		}
	}
}

// handlers returns a snapshot: the active handler first, then listeners in subscription order.
func (r *Registry) handlers(kind proto.Kind) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cells[kind]
	if !ok {
		return nil
	}
	out := make([]Handler, 0, len(c.listeners)+1)
	if c.active != nil {
		out = append(out, c.active)
	}
	for _, l := range c.listeners {
		out = append(out, l.h)
	}
	return out
}
