package view

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// EngineResolver hands out one engine instance per key, building each on
// first use from a registered factory.
//
// Registering a factory for a key evicts the instance built from the
// previous one, so the next Resolve builds afresh. Factories run under the
// resolver's lock and must not call back into the same resolver.
// All methods are concurrent-safe.
type EngineResolver struct {
	logger    *slog.Logger
	factories map[string]EngineFactory
	resolved  map[string]Engine
	mu        sync.Mutex
}

// NewEngineResolver returns an empty resolver. A nil logger discards output.
func NewEngineResolver(logger *slog.Logger) *EngineResolver {
	return &EngineResolver{
		logger:    orDiscard(logger),
		factories: map[string]EngineFactory{},
		resolved:  map[string]Engine{},
	}
}

// Register sets the factory for key, replacing any earlier one.
func (r *EngineResolver) Register(key string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resolved, key)
	r.factories[key] = factory
}

// Resolve returns the engine for key, building it if needed.
func (r *EngineResolver) Resolve(key string) (Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.resolved[key]; ok {
		return e, nil
	}

	factory, ok := r.factories[key]
	if !ok || factory == nil {
		return nil, fmt.Errorf("engine [%s]: %w", key, ErrUnknownEngine)
	}

	e, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to build engine [%s]: %w", key, err)
	}
	r.resolved[key] = e
	r.logger.Debug("Engine built", "engine", key)

	return e, nil
}

// Keys returns the registered engine keys, sorted.
func (r *EngineResolver) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
