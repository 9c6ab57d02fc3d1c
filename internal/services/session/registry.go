package session

import (
	"context"
	"sort"
	"strings"
	"sync"

	"MarketCore/internal/domain/repository"
	"MarketCore/pkg/logger"
)

// Registry hands out one Tracker per symbol and serializes work on each.
type Registry struct {
	store   repository.SessionStore
	clock   *Clock
	log     *logger.Logger
	metrics repository.Metrics

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	tracker *Tracker
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store repository.SessionStore, clock *Clock, log *logger.Logger, metrics repository.Metrics) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		store:   store,
		clock:   clock,
		log:     log,
		metrics: metrics,
		entries: make(map[string]*entry),
	}
}

// With runs fn while holding the symbol's lock. The tracker is created and its
// state loaded on first use; a failed load is retried on the next call.
func (r *Registry) With(ctx context.Context, symbol string, fn func(*Tracker) error) error {
	e := r.entry(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tracker == nil {
		tr, err := NewTracker(ctx, symbol, r.store, r.clock, r.log, r.metrics)
		if err != nil {
			r.log.Warn("session tracker unavailable", logger.String("symbol", strings.ToUpper(symbol)), logger.Error(err))
			return err
		}
		e.tracker = tr
	}
	return fn(e.tracker)
}

// Symbols lists every symbol the registry has been asked for, sorted.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for s := range r.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Clock returns the registry's session clock.
func (r *Registry) Clock() *Clock { return r.clock }

func (r *Registry) entry(symbol string) *entry {
	key := strings.ToUpper(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	return e
}
