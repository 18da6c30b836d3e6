package ocr

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry shares handles between callers. Each handle carries a reference
// count: one for the registry itself and one per outstanding Lease. The
// handle is closed exactly once, when the count reaches zero.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     zerolog.Logger
}

type entry struct {
	handle  *Handle
	refs    int
	removed bool
}

// Lease is one reference to a registered handle.
type Lease struct {
	reg  *Registry
	id   string
	h    *Handle
	once sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		log:     logger.With().Str("component", "registry").Logger(),
	}
}

// Add registers h and returns its id.
func (r *Registry) Add(h *Handle) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[h.ID()] = &entry{handle: h, refs: 1}
	r.log.Debug().Str("handle_id", h.ID()).Msg("Handle registered")
	return h.ID()
}

// Acquire takes a reference to the handle registered under id.
func (r *Registry) Acquire(id string) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.removed {
		return nil, ErrHandleNotFound
	}
	e.refs++
	return &Lease{reg: r, id: id, h: e.handle}, nil
}

// Handle returns the leased handle.
func (l *Lease) Handle() *Handle { return l.h }

// Release drops the lease. Extra calls are ignored.
func (l *Lease) Release() {
	l.once.Do(func() { l.reg.unref(l.id) })
}

// Remove drops the registry's own reference. The handle stays usable through
// outstanding leases and is closed when the last one is released.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.removed {
		r.mu.Unlock()
		return ErrHandleNotFound
	}
	e.removed = true
	r.mu.Unlock()
	r.unref(id)
	return nil
}

func (r *Registry) unref(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, id)
	r.mu.Unlock()

	if err := e.handle.Close(); err != nil {
		r.log.Warn().Err(err).Str("handle_id", id).Msg("Failed to close handle")
		return
	}
	r.log.Debug().Str("handle_id", id).Msg("Handle destroyed")
}

// List returns the ids of registered, not removed handles in sorted order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if !e.removed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len counts registered, not removed handles.
func (r *Registry) Len() int {
	return len(r.List())
}

// Close removes every handle. Handles with outstanding leases close when those
// leases are released.
func (r *Registry) Close() {
	for _, id := range r.List() {
		_ = r.Remove(id)
	}
}
