package jta

import (
	"fmt"
	"sync"
)

// Adapter names, newest engine generation first.
var (
	NoPlatformCandidates = []string{
		"engine.transaction.jta.platform.NoJtaPlatform",
		"engine.service.jta.platform.NoJtaPlatform",
	}
	WebSphereCandidates = []string{
		"engine.transaction.jta.platform.WebSphereExtendedJtaPlatform",
		"engine.service.jta.platform.WebSphereExtendedJtaPlatform",
	}
)

// Constructor builds a platform adapter.
type Constructor func() (Platform, error)

// Registry maps adapter names to constructors. An engine generation registers the
// adapters it ships; names that are not registered are treated as unavailable.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry registers the current engine generation's adapters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NoPlatformCandidates[0], Named(NoPlatformCandidates[0]))
	r.Register(WebSphereCandidates[0], Named(WebSphereCandidates[0]))
	return r
}

// Named returns a constructor for a stateless adapter identified only by name.
func Named(name string) Constructor {
	return func() (Platform, error) {
		return namedPlatform{name: name}, nil
	}
}

// Register adds or replaces a constructor.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// First constructs the first candidate that is registered and builds without error.
func (r *Registry) First(candidates []string) (Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range candidates {
		ctor, ok := r.ctors[name]
		if !ok {
			continue
		}
		p, err := ctor()
		if err != nil || p == nil {
			continue
		}
		return p, nil
	}

	return nil, fmt.Errorf("%w: tried %v", ErrPlatformResolution, candidates)
}
