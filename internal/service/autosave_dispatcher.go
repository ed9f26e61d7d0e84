package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-entry-sync/internal/models"
	"github.com/noah-isme/sma-entry-sync/pkg/jobs"
)

const autosaveJobType = "autosave"

// AutoFlusher flushes one scope on behalf of the scheduler.
type AutoFlusher interface {
	AutoFlush(ctx context.Context, scope models.Scope) error
}

// AutoSaveDispatcher hands scheduler triggers to a worker queue and routes
// each job to the workflow's service.
type AutoSaveDispatcher struct {
	queue    *jobs.Queue
	metrics  *MetricsService
	logger   *zap.Logger
	mu       sync.RWMutex
	flushers map[models.Workflow]AutoFlusher
}

// NewAutoSaveDispatcher builds the dispatcher and its queue.
func NewAutoSaveDispatcher(cfg jobs.QueueConfig, metrics *MetricsService, logger *zap.Logger) *AutoSaveDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Logger = logger
	d := &AutoSaveDispatcher{
		metrics:  metrics,
		logger:   logger,
		flushers: make(map[models.Workflow]AutoFlusher),
	}
	d.queue = jobs.NewQueue(autosaveJobType, d.handle, cfg)
	return d
}

// Register routes scopes of workflow to f.
func (d *AutoSaveDispatcher) Register(workflow models.Workflow, f AutoFlusher) {
	d.mu.Lock()
	d.flushers[workflow] = f
	d.mu.Unlock()
}

// Start launches the workers.
func (d *AutoSaveDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains queued flushes and waits for the workers.
func (d *AutoSaveDispatcher) Stop(ctx context.Context) error {
	return d.queue.Stop(ctx)
}

// Trigger enqueues an automatic flush. It satisfies autosave.TriggerFunc.
func (d *AutoSaveDispatcher) Trigger(scope models.Scope) {
	job := jobs.Job{ID: scope.CacheKey(), Type: autosaveJobType, Payload: scope}
	if err := d.queue.Enqueue(job); err != nil {
		d.metrics.ObserveAutoSave("dropped")
		d.logger.Warn("autosave dispatch failed", zap.String("scope", scope.CacheKey()), zap.Error(err))
		return
	}
	d.metrics.ObserveAutoSave("queued")
}

func (d *AutoSaveDispatcher) handle(ctx context.Context, job jobs.Job) error {
	scope, ok := job.Payload.(models.Scope)
	if !ok {
		return fmt.Errorf("autosave job %s: unexpected payload %T", job.ID, job.Payload)
	}
	d.mu.RLock()
	f, ok := d.flushers[scope.Workflow]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("autosave job %s: no flusher for workflow %q", job.ID, scope.Workflow)
	}
	if err := f.AutoFlush(ctx, scope); err != nil {
		d.metrics.ObserveAutoSave("failed")
		return err
	}
	d.metrics.ObserveAutoSave("flushed")
	return nil
}
