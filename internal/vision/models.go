package vision

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// LoadFunc performs the actual (possibly slow) load of a named model.
type LoadFunc func(ctx context.Context, name string) error

// Models is a lazy, memoized registry of loaded detection models. A model is
// loaded at most once per process; concurrent Ensure calls for the same name
// share one load. Failed loads are not memoized so a later call can retry.
type Models struct {
	loader LoadFunc

	mu     sync.Mutex
	loaded map[string]bool
	flight map[string]*loadCall
}

type loadCall struct {
	done chan struct{}
	err  error
}

// NewModels creates a model registry backed by the given loader.
func NewModels(loader LoadFunc) *Models {
	return &Models{
		loader: loader,
		loaded: make(map[string]bool),
		flight: make(map[string]*loadCall),
	}
}

// Ensure makes sure the named model is loaded, loading it on first use.
func (m *Models) Ensure(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	m.mu.Lock()
	if m.loaded[name] {
		m.mu.Unlock()
		return nil
	}
	if call, ok := m.flight[name]; ok {
		// Another caller is loading this model; wait for it.
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	call := &loadCall{done: make(chan struct{})}
	m.flight[name] = call
	m.mu.Unlock()

	call.err = m.loader(ctx, name)

	m.mu.Lock()
	delete(m.flight, name)
	if call.err == nil {
		m.loaded[name] = true
	}
	m.mu.Unlock()

	close(call.done)
	return call.err
}

// IsLoaded reports whether the named model has been loaded.
func (m *Models) IsLoaded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded[name]
}

// LoadedNames returns the names of all loaded models, sorted.
func (m *Models) LoadedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
