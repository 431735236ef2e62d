package reorder

import (
	"context"
	"sort"
	"sync"
)

// Board keeps one Engine per collection type so that saves on different
// collections never block each other.
type Board struct {
	fetcher Fetcher
	saver   Saver
	opts    []Option

	mu      sync.Mutex
	engines map[string]*Engine
	loaded  map[string]bool
}

func NewBoard(fetcher Fetcher, saver Saver, opts ...Option) *Board {
	return &Board{
		fetcher: fetcher,
		saver:   saver,
		opts:    opts,
		engines: make(map[string]*Engine),
		loaded:  make(map[string]bool),
	}
}

// Engine returns the engine for collection, creating it empty if needed.
func (b *Board) Engine(collection string) *Engine {
	b.mu.Lock()
	defer b.mu.Unlock()
	engine, ok := b.engines[collection]
	if !ok {
		engine = NewEngine(collection, b.fetcher, b.saver, b.opts...)
		b.engines[collection] = engine
	}
	return engine
}

// Open returns the engine for collection, loading it on first use.
func (b *Board) Open(ctx context.Context, collection string) (*Engine, error) {
	engine := b.Engine(collection)

	b.mu.Lock()
	loaded := b.loaded[collection]
	b.mu.Unlock()
	if loaded {
		return engine, nil
	}

	if err := engine.Load(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.loaded[collection] = true
	b.mu.Unlock()
	return engine, nil
}

// Collections lists the collection types opened so far.
func (b *Board) Collections() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.engines))
	for name := range b.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
