// Package registry keeps the human descriptions of known collections.
// It is advisory: entries are not transactionally tied to the vector store.
package registry

import (
	"sort"
	"sync"
)

// Entry is one registered collection.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry maps collection names to descriptions.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]string
}

func New() *Registry {
	return &Registry{entries: make(map[string]string)}
}

// Register records description for name unless name is already known.
// It reports whether a new entry was created; an existing description is
// never replaced.
func (r *Registry) Register(name, description string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return false
	}
	r.entries[name] = description
	return true
}

func (r *Registry) Get(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[name]
	return d, ok
}

// List returns a copy of the registry.
func (r *Registry) List() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Entries returns the registry sorted by name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for k, v := range r.entries {
		out = append(out, Entry{Name: k, Description: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	entries := r.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]string)
}
