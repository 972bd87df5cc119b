package integrity

import (
	"fmt"
	"sync"
)

// Registry holds checks in registration order. That order is the order a
// sweep runs them in and the order their issues appear in the result.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register appends a check. Keys must be unique.
func (r *Registry) Register(check Check) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := check.Key()
	if key == "" {
		return fmt.Errorf("check key is required")
	}
	if _, exists := r.checks[key]; exists {
		return fmt.Errorf("check %q already registered", key)
	}

	r.checks[key] = check
	r.order = append(r.order, key)
	return nil
}

// Get returns a registered check by key.
func (r *Registry) Get(key string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	check, exists := r.checks[key]
	return check, exists
}

// List returns all checks in registration order.
func (r *Registry) List() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Check, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.checks[key])
	}
	return out
}
