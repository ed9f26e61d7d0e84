// Package draft holds per-scope draft collections mirrored write-through to a
// durable local store.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
	"github.com/noah-isme/sma-entry-sync/pkg/localstore"
)

// Record is implemented by every draft variant.
type Record[D any] interface {
	Dirty() bool
	Clean() D
}

// Snapshot is a point-in-time copy of a collection. Revisions let MarkClean
// tell whether a key was edited after the snapshot was taken.
type Snapshot[D any] struct {
	Records   map[string]D
	Revisions map[string]uint64
}

// Store owns one scope's draft collection.
type Store[D Record[D]] struct {
	mu        sync.Mutex
	scope     models.Scope
	backend   localstore.Store
	newRecord func() D
	records   map[string]D
	revisions map[string]uint64
	logger    *zap.Logger
}

// New returns an empty store for scope. Call Load to hydrate it.
func New[D Record[D]](scope models.Scope, backend localstore.Store, newRecord func() D, logger *zap.Logger) *Store[D] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[D]{
		scope:     scope,
		backend:   backend,
		newRecord: newRecord,
		records:   make(map[string]D),
		revisions: make(map[string]uint64),
		logger:    logger.With(zap.String("scope", scope.CacheKey())),
	}
}

// Scope returns the scope this store is bound to.
func (s *Store[D]) Scope() models.Scope {
	return s.scope
}

// Checker is implemented by draft variants that can reject a hydrated record.
type Checker interface {
	Check() error
}

// Load replaces the in-memory collection with the durable copy. A blob that
// does not decode is logged and treated as an empty collection, leaving storage
// as is. A failed read returns a local storage error and keeps the in-memory
// collection untouched.
func (s *Store[D]) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.backend.Get(ctx, s.scope.CacheKey())
	if err != nil {
		if errors.Is(err, localstore.ErrNotFound) {
			s.resetLocked()
			return nil
		}
		s.logger.Error("read draft collection failed", zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrLocalStorage, err, "read draft collection")
	}

	s.resetLocked()
	var decoded map[string]D
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.logger.Warn("discarding unreadable draft collection", zap.Error(err))
		return nil
	}
	for key, record := range decoded {
		if key == "" {
			continue
		}
		if c, ok := any(record).(Checker); ok {
			if err := c.Check(); err != nil {
				s.logger.Warn("dropping invalid draft", zap.String("key", key), zap.Error(err))
				continue
			}
		}
		s.records[key] = record
	}
	return nil
}

func (s *Store[D]) resetLocked() {
	s.records = make(map[string]D)
	s.revisions = make(map[string]uint64)
}

// Get returns the record for key and whether it exists.
func (s *Store[D]) Get(key string) (D, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key]
	return record, ok
}

// Keys lists the stored keys in sorted order.
func (s *Store[D]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of records held.
func (s *Store[D]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// DirtyCount counts records awaiting confirmation. It is recomputed on each call.
func (s *Store[D]) DirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.records {
		if record.Dirty() {
			count++
		}
	}
	return count
}

// Mutate applies fn to the record for key, or to a default record when absent,
// and persists the whole collection before returning. A failed write keeps the
// in-memory change and reports a local storage error.
func (s *Store[D]) Mutate(ctx context.Context, key string, fn func(D) D) (D, error) {
	return s.MutateMany(ctx, []string{key}, fn)
}

// MutateMany applies fn to every key and persists once.
func (s *Store[D]) MutateMany(ctx context.Context, keys []string, fn func(D) D) (D, error) {
	var last D
	if len(keys) == 0 {
		return last, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if key == "" {
			return last, appErrors.Clone(appErrors.ErrValidation, "student id required")
		}
	}
	for _, key := range keys {
		current, ok := s.records[key]
		if !ok {
			current = s.newRecord()
		}
		last = fn(current)
		s.records[key] = last
		s.revisions[key]++
	}
	return last, s.persistLocked(ctx)
}

// Clear drops every record and the durable copy.
func (s *Store[D]) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.records {
		s.revisions[key]++
	}
	s.records = make(map[string]D)
	if err := s.backend.Delete(ctx, s.scope.CacheKey()); err != nil {
		return appErrors.WrapAs(appErrors.ErrLocalStorage, err, "")
	}
	return nil
}

// Snapshot copies the collection and its revisions.
func (s *Store[D]) Snapshot() Snapshot[D] {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot[D]{
		Records:   make(map[string]D, len(s.records)),
		Revisions: make(map[string]uint64, len(s.records)),
	}
	for key, record := range s.records {
		snap.Records[key] = record
		snap.Revisions[key] = s.revisions[key]
	}
	return snap
}

// MarkClean clears the dirty flag on keys that have not changed since snap was
// taken and persists the result. It returns how many records were cleaned.
func (s *Store[D]) MarkClean(ctx context.Context, snap Snapshot[D], keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0
	for _, key := range keys {
		record, ok := s.records[key]
		if !ok || !record.Dirty() {
			continue
		}
		if s.revisions[key] != snap.Revisions[key] {
			continue
		}
		s.records[key] = record.Clean()
		cleaned++
	}
	if cleaned == 0 {
		return 0, nil
	}
	return cleaned, s.persistLocked(ctx)
}

func (s *Store[D]) persistLocked(ctx context.Context) error {
	payload, err := json.Marshal(s.records)
	if err != nil {
		return appErrors.WrapAs(appErrors.ErrLocalStorage, err, "encode draft collection")
	}
	if err := s.backend.Put(ctx, s.scope.CacheKey(), payload); err != nil {
		s.logger.Error("persist draft collection failed", zap.Error(err))
		return appErrors.WrapAs(appErrors.ErrLocalStorage, err, "")
	}
	return nil
}
