package provider

import (
	"fmt"
	"slices"
	"sync"
)

// Factory builds a configured backend. The application registers its
// factories at startup; backends never self-register, so credentials stay
// explicit.
type Factory func() (Backend, error)

var (
	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// Register adds a backend factory under a name. Registering the same name
// again replaces the earlier factory.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Get builds a backend by registered name.
func Get(name string) (Backend, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend: %q (available: %v)", name, Available())
	}

	return factory()
}

// Available returns the registered backend names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered reports whether a backend name is registered.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[name]
	return ok
}
