package session

import (
	"sort"
	"sync"
	"time"

	"github.com/wagate/backend/internal/engine"
)

// Registry is the single source of truth for which sessions currently have a
// live engine client. It holds at most one client per session name; the
// lifecycle manager is the sole writer and coordinates replacement, so Put
// replaces unconditionally.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	client    engine.Client
	createdAt time.Time
}

// Info describes one registered session for listing purposes.
type Info struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Get returns the live client for a session name, if any. No side effects;
// liveness is the caller's problem (clients are re-probed before reuse).
func (r *Registry) Get(name string) (engine.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// Put registers a client for a session name, replacing any existing entry.
func (r *Registry) Put(name string, client engine.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &entry{
		client:    client,
		createdAt: time.Now(),
	}
}

// Remove drops the entry for a session name. Idempotent; the return value
// reports whether an entry was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	delete(r.entries, name)
	return ok
}

// List returns the registered sessions sorted by creation time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Info, 0, len(r.entries))
	for name, e := range r.entries {
		result = append(result, Info{Name: name, CreatedAt: e.createdAt})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
