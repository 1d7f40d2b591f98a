package pose

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps pose identifiers to definitions. Adding a pose is one
// Register call; nothing else changes.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Definition
	order []string
}

// NewRegistry creates a registry preloaded with defs.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{byID: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a definition. IDs are unique and definitions immutable.
func (r *Registry) Register(d Definition) error {
	id := strings.TrimSpace(d.ID)
	if id == "" || d.Rule == nil {
		return fmt.Errorf("register %q: %w", d.ID, ErrInvalidPose)
	}
	d.ID = id

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("register %q: %w", id, ErrDuplicatePose)
	}
	r.byID[id] = d
	r.order = append(r.order, id)
	return nil
}

// Lookup returns the definition for id.
func (r *Registry) Lookup(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// List returns definitions in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of registered poses.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
