// Package registry tracks live swarms so they can be observed from outside
// the process that launched them.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Source is anything that can report a swarm snapshot.
type Source interface {
	Snapshot() models.SwarmState
}

// Entry is one registered swarm.
type Entry struct {
	ID           string
	Label        string
	RegisteredAt time.Time
	source       Source
}

// State returns a fresh snapshot of the swarm.
func (e Entry) State() models.SwarmState {
	return e.source.Snapshot()
}

// Registry is a concurrency-safe id -> swarm map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry), now: time.Now}
}

// Register adds ref under a new id and returns it.
func (r *Registry) Register(ref Source, label string) string {
	id := "swarm-" + uuid.New().String()[:8]
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = Entry{ID: id, Label: label, RegisteredAt: r.now(), source: ref}
	return id
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// List returns every entry ordered by registration time.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

// ListActive returns entries whose swarm has not reached a terminal status.
func (r *Registry) ListActive() []Entry {
	var active []Entry
	for _, e := range r.List() {
		if !e.State().Status.Terminal() {
			active = append(active, e)
		}
	}
	return active
}

// Unregister removes id. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Cleanup drops entries whose swarm has finished and returns how many.
func (r *Registry) Cleanup() int {
	var done []string
	for _, e := range r.List() {
		if e.State().Status.Terminal() {
			done = append(done, e.ID)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range done {
		delete(r.entries, id)
	}
	return len(done)
}
