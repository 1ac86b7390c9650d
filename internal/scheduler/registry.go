package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry hands out one isolated Scheduler per deck, loading each lazily.
type Registry struct {
	mu    sync.Mutex
	store Store
	opts  []Option
	decks map[string]*Scheduler
}

// NewRegistry returns a Registry whose schedulers share store and opts.
func NewRegistry(store Store, opts ...Option) *Registry {
	return &Registry{
		store: store,
		opts:  opts,
		decks: make(map[string]*Scheduler),
	}
}

// Deck returns the scheduler for name, loading it on first use.
func (r *Registry) Deck(ctx context.Context, name string) (*Scheduler, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDeck)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.decks[name]; ok {
		return s, nil
	}
	s, err := New(ctx, name, r.store, r.opts...)
	if err != nil {
		return nil, err
	}
	r.decks[name] = s
	return s, nil
}

// Loaded returns the names of the decks loaded so far, sorted.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.decks))
	for name := range r.decks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
