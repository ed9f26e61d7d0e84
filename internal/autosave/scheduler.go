// Package autosave decides when a scope's drafts are flushed without an
// explicit save: once the dirty count reaches a multiple of the threshold and
// edits pause for the debounce window.
package autosave

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-entry-sync/internal/models"
)

const (
	DefaultThreshold = 5
	DefaultDebounce  = 2 * time.Second
)

// Timer is the subset of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc in production.
type AfterFunc func(d time.Duration, f func()) Timer

// PendingFunc reports whether a flush is running or queued for the scope key.
type PendingFunc func(scopeKey string) bool

// TriggerFunc starts a flush for scope.
type TriggerFunc func(scope models.Scope)

// Config tunes a Scheduler.
type Config struct {
	Enabled   bool
	Threshold int
	Debounce  time.Duration
	AfterFunc AfterFunc
	Logger    *zap.Logger
}

type scopeState struct {
	scope   models.Scope
	enabled bool
	last    int
	timer   Timer
	gen     uint64
}

// Scheduler tracks dirty counts per scope and fires debounced flushes.
type Scheduler struct {
	mu        sync.Mutex
	threshold int
	debounce  time.Duration
	enabled   bool
	afterFunc AfterFunc
	pending   PendingFunc
	trigger   TriggerFunc
	scopes    map[string]*scopeState
	stopped   bool
	logger    *zap.Logger
}

// New constructs a scheduler. pending may be nil.
func New(cfg Config, pending PendingFunc, trigger TriggerFunc) *Scheduler {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if pending == nil {
		pending = func(string) bool { return false }
	}
	return &Scheduler{
		threshold: cfg.Threshold,
		debounce:  cfg.Debounce,
		enabled:   cfg.Enabled,
		afterFunc: cfg.AfterFunc,
		pending:   pending,
		trigger:   trigger,
		scopes:    make(map[string]*scopeState),
		logger:    cfg.Logger,
	}
}

// Observe reports the current dirty count for scope. Only a positive multiple
// of the threshold (re)arms the timer; any other count disarms it.
func (s *Scheduler) Observe(scope models.Scope, dirty int) {
	key := scope.CacheKey()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	st := s.stateLocked(scope)
	if dirty == st.last {
		return
	}
	st.last = dirty
	if !st.enabled {
		return
	}
	if dirty <= 0 || dirty%s.threshold != 0 {
		s.disarmLocked(st)
		return
	}
	if s.pending(key) {
		s.disarmLocked(st)
		s.logger.Debug("autosave suppressed while flush pending", zap.String("scope", key))
		return
	}
	s.armLocked(key, st)
}

// SetEnabled toggles autosave for scope. Disabling disarms any timer;
// re-enabling makes the next Observe re-evaluate the count.
func (s *Scheduler) SetEnabled(scope models.Scope, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(scope)
	if !enabled {
		s.disarmLocked(st)
	} else if !st.enabled {
		st.last = -1
	}
	st.enabled = enabled
}

// Enabled reports the toggle for scope.
func (s *Scheduler) Enabled(scope models.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.scopes[scope.CacheKey()]; ok {
		return st.enabled
	}
	return s.enabled
}

// Armed reports whether a debounce timer is pending for scope.
func (s *Scheduler) Armed(scope models.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.scopes[scope.CacheKey()]
	return ok && st.timer != nil
}

// Forget drops the state kept for scope.
func (s *Scheduler) Forget(scope models.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.scopes[scope.CacheKey()]; ok {
		s.disarmLocked(st)
		delete(s.scopes, scope.CacheKey())
	}
}

// Stop disarms every timer. Later observations are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for _, st := range s.scopes {
		s.disarmLocked(st)
	}
}

func (s *Scheduler) stateLocked(scope models.Scope) *scopeState {
	key := scope.CacheKey()
	st, ok := s.scopes[key]
	if !ok {
		st = &scopeState{scope: scope, enabled: s.enabled}
		s.scopes[key] = st
	}
	return st
}

func (s *Scheduler) armLocked(key string, st *scopeState) {
	s.disarmLocked(st)
	gen := st.gen
	st.timer = s.afterFunc(s.debounce, func() { s.fire(key, gen) })
}

func (s *Scheduler) disarmLocked(st *scopeState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.gen++
}

func (s *Scheduler) fire(key string, gen uint64) {
	s.mu.Lock()
	st, ok := s.scopes[key]
	if !ok || st.gen != gen || st.timer == nil || s.stopped || !st.enabled {
		s.mu.Unlock()
		return
	}
	st.timer = nil
	st.gen++
	scope := st.scope
	s.mu.Unlock()

	if s.pending(key) {
		s.logger.Debug("autosave skipped, flush already pending", zap.String("scope", key))
		return
	}
	s.logger.Debug("autosave triggered", zap.String("scope", key))
	if s.trigger != nil {
		s.trigger(scope)
	}
}
