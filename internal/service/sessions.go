package service

import (
	"sync"

	"github.com/noah-isme/sma-entry-sync/internal/models"
)

// registry holds lazily created per-scope sessions.
type registry[S any] struct {
	mu    sync.Mutex
	items map[string]S
}

func newRegistry[S any]() *registry[S] {
	return &registry[S]{items: make(map[string]S)}
}

// getOrCreate returns the session for key, creating it with create on first
// use. Failed creations are not stored.
func (r *registry[S]) getOrCreate(key string, create func() (S, error)) (S, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[key]; ok {
		return s, nil
	}
	s, err := create()
	if err != nil {
		return s, err
	}
	r.items[key] = s
	return s, nil
}

func (r *registry[S]) get(key string) (S, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[key]
	return s, ok
}

func (r *registry[S]) all() []S {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]S, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, s)
	}
	return out
}

// actorRef remembers the last authenticated actor to edit a session so
// automatic flushes can attribute rows.
type actorRef struct {
	mu sync.RWMutex
	id string
}

func (a *actorRef) set(id string) {
	if id == "" {
		return
	}
	a.mu.Lock()
	a.id = id
	a.mu.Unlock()
}

func (a *actorRef) get() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.id
}

// autosaveScheduler is the subset of the autosave scheduler services use.
type autosaveScheduler interface {
	Observe(scope models.Scope, dirty int)
	SetEnabled(scope models.Scope, enabled bool)
	Enabled(scope models.Scope) bool
}
