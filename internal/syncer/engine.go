// Package syncer pushes dirty, valid drafts to the remote store in one
// idempotent batch per scope and clears their dirty flags on success.
package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-entry-sync/internal/draft"
	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
	"github.com/noah-isme/sma-entry-sync/pkg/middleware/requestid"
)

// Flush outcomes reported to the metrics recorder.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailure = "failure"
)

// Item is a wire record keyed by its business identity.
type Item interface {
	BusinessKey() string
}

// Remote receives batches. BatchUpsert must be idempotent on the business key
// and must reject items missing key fields.
type Remote[I Item] interface {
	BatchUpsert(ctx context.Context, items []I) ([]string, error)
}

// Adapter maps one workflow's drafts to wire items.
type Adapter[D any, I Item] interface {
	Valid(d D) bool
	ToItem(scope models.Scope, studentID string, d D, actor string, at time.Time) I
}

// Invalidator drops cached read views for a scope.
type Invalidator interface {
	InvalidateScope(ctx context.Context, scope models.Scope) error
}

// Recorder observes flush outcomes.
type Recorder interface {
	ObserveFlush(workflow, outcome string, items int, duration time.Duration)
}

// Option customises an Engine.
type Option func(*options)

type options struct {
	invalidator Invalidator
	recorder    Recorder
	logger      *zap.Logger
	now         func() time.Time
}

// WithInvalidator sets the read-view cache to clear after each successful flush.
func WithInvalidator(inv Invalidator) Option {
	return func(o *options) { o.invalidator = inv }
}

// WithRecorder sets the metrics sink.
func WithRecorder(rec Recorder) Option {
	return func(o *options) { o.recorder = rec }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type scopeLock struct {
	sem     chan struct{}
	holders int
}

// Engine flushes draft stores of one workflow. Flushes for the same scope are
// serialised; a second caller waits for the first and then takes a fresh
// snapshot.
type Engine[D draft.Record[D], I Item] struct {
	adapter Adapter[D, I]
	remote  Remote[I]
	opts    options

	mu    sync.Mutex
	locks map[string]*scopeLock
}

// NewEngine constructs an engine.
func NewEngine[D draft.Record[D], I Item](adapter Adapter[D, I], remote Remote[I], opts ...Option) *Engine[D, I] {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &Engine[D, I]{adapter: adapter, remote: remote, opts: o, locks: make(map[string]*scopeLock)}
}

// Pending reports whether a flush is running or waiting for scopeKey.
func (e *Engine[D, I]) Pending(scopeKey string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[scopeKey]
	return ok && l.holders > 0
}

// Flush uploads the store's dirty, valid drafts as one batch.
func (e *Engine[D, I]) Flush(ctx context.Context, store *draft.Store[D], actor string) (models.SyncResult, error) {
	scope := store.Scope()
	key := scope.CacheKey()
	logger := e.opts.logger.With(zap.String("scope", key))
	if reqID := requestid.FromContext(ctx); reqID != "" {
		logger = logger.With(zap.String("request_id", reqID))
	}

	release, err := e.acquire(ctx, key)
	if err != nil {
		return models.SyncResult{}, err
	}
	defer release()

	start := time.Now()
	snap := store.Snapshot()
	keys, items := e.collect(scope, snap, actor)
	if len(items) == 0 {
		e.record(scope, OutcomeEmpty, 0, time.Since(start))
		return models.SyncResult{Saved: 0}, nil
	}
	if actor == "" {
		return models.SyncResult{}, appErrors.Clone(appErrors.ErrUnauthorized, "actor identity required to sync")
	}

	ids, err := e.remote.BatchUpsert(ctx, items)
	if err != nil {
		e.record(scope, OutcomeFailure, len(items), time.Since(start))
		logger.Warn("flush failed", zap.Int("items", len(items)), zap.Error(err))
		return models.SyncResult{}, remoteError(err)
	}

	cleaned, markErr := store.MarkClean(ctx, snap, keys)
	e.record(scope, OutcomeSuccess, len(items), time.Since(start))
	logger.Info("flush completed", zap.Int("items", len(items)), zap.Int("cleaned", cleaned))

	if e.opts.invalidator != nil {
		if err := e.opts.invalidator.InvalidateScope(ctx, scope); err != nil {
			logger.Warn("invalidate read views failed", zap.Error(err))
		}
	}

	result := models.SyncResult{Saved: len(items), IDs: ids}
	if markErr != nil {
		return result, markErr
	}
	return result, nil
}

// collect filters the snapshot to dirty, valid drafts and maps them to items,
// keeping one item per business key. Keys are processed in sorted order.
func (e *Engine[D, I]) collect(scope models.Scope, snap draft.Snapshot[D], actor string) ([]string, []I) {
	studentIDs := make([]string, 0, len(snap.Records))
	for id, record := range snap.Records {
		if record.Dirty() && e.adapter.Valid(record) {
			studentIDs = append(studentIDs, id)
		}
	}
	sort.Strings(studentIDs)

	at := e.opts.now().UTC()
	index := make(map[string]int, len(studentIDs))
	items := make([]I, 0, len(studentIDs))
	for _, id := range studentIDs {
		item := e.adapter.ToItem(scope, id, snap.Records[id], actor, at)
		bk := item.BusinessKey()
		if i, ok := index[bk]; ok {
			items[i] = item
			continue
		}
		index[bk] = len(items)
		items = append(items, item)
	}
	return studentIDs, items
}

func (e *Engine[D, I]) acquire(ctx context.Context, key string) (func(), error) {
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &scopeLock{sem: make(chan struct{}, 1)}
		e.locks[key] = l
	}
	l.holders++
	e.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			e.done(key, l)
		}, nil
	case <-ctx.Done():
		e.done(key, l)
		return nil, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, ctx.Err(), "flush cancelled while waiting for previous flush")
	}
}

func (e *Engine[D, I]) done(key string, l *scopeLock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l.holders--
	if l.holders == 0 {
		delete(e.locks, key)
	}
}

func (e *Engine[D, I]) record(scope models.Scope, outcome string, items int, d time.Duration) {
	if e.opts.recorder != nil {
		e.opts.recorder.ObserveFlush(string(scope.Workflow), outcome, items, d)
	}
}

func remoteError(err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Code == appErrors.ErrValidation.Code {
		return appErr
	}
	return appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "")
}
