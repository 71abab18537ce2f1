package store

import (
	"strings"
	"sync"
)

type StateBackendFactory func(dsn string) (StateBackend, error)

var backendFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]StateBackendFactory
}{
	factories: map[string]StateBackendFactory{},
}

// RegisterStateBackendFactory makes BuildStateBackendFromDSN use factory for
// scheme, overriding the built-in backends.
func RegisterStateBackendFactory(scheme string, factory StateBackendFactory) {
	scheme = normalizeBackendScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	backendFactoryRegistry.mu.Lock()
	defer backendFactoryRegistry.mu.Unlock()
	backendFactoryRegistry.factories[scheme] = factory
}

func lookupStateBackendFactory(scheme string) (StateBackendFactory, bool) {
	scheme = normalizeBackendScheme(scheme)
	backendFactoryRegistry.mu.RLock()
	defer backendFactoryRegistry.mu.RUnlock()
	factory, ok := backendFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeBackendScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}
