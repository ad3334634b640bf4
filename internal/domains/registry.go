package domains

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

// Registry owns the named-rectangle domain table. All reads and
// mutations go through a single mutex; the lock is never held across
// I/O or a detector call. Mutation comes from three actors: console
// commands, file load, and the pointer selection protocol.
type Registry struct {
	mu      sync.Mutex
	domains map[string]types.Rect
	sel     *selection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		domains: make(map[string]types.Rect),
	}
}

// Add inserts a domain. It fails with ErrDuplicateName if the name
// is already taken; the existing rectangle is left untouched.
func (r *Registry) Add(name string, rect types.Rect) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.domains[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.domains[name] = rect
	return nil
}

// Remove deletes a domain by name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.domains[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(r.domains, name)
	return nil
}

// Clear removes all domains.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains = make(map[string]types.Rect)
}

// List returns a name-sorted snapshot of the table.
func (r *Registry) List() []types.Domain {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.Domain, 0, len(r.domains))
	for name, rect := range r.domains {
		out = append(out, types.Domain{Name: name, Rect: rect})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of domains.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.domains)
}

func (r *Registry) snapshot() map[string]types.Rect {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]types.Rect, len(r.domains))
	for name, rect := range r.domains {
		out[name] = rect
	}
	return out
}
