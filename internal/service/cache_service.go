package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService caches remote read views and rosters.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// ScopeViewKey is the cache key of the confirmed remote rows of a scope.
func ScopeViewKey(scope models.Scope, suffix string) string {
	return fmt.Sprintf("view:%s:%s", scope.CacheKey(), suffix)
}

// CourseViewKey is the cache key of course-level reports of a workflow.
func CourseViewKey(workflow models.Workflow, courseID, suffix string) string {
	return fmt.Sprintf("view:%s-%s:%s", workflow, courseID, suffix)
}

// RosterKey is the cache key of a course roster.
func RosterKey(courseID string) string {
	return "roster:" + courseID
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true on a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes cached values matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// InvalidateScope drops the scope's views and the course-level reports of its
// workflow.
func (s *CacheService) InvalidateScope(ctx context.Context, scope models.Scope) error {
	if err := s.Invalidate(ctx, fmt.Sprintf("view:%s:*", scope.CacheKey())); err != nil {
		return err
	}
	if scope.SessionDate == "" {
		return nil
	}
	return s.Invalidate(ctx, CourseViewKey(scope.Workflow, scope.CourseID, "*"))
}

// cached loads key into dest, or calls load and caches its result. Cache
// failures fall through to load.
func cached[T any](ctx context.Context, cache *CacheService, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	var out T
	if hit, _ := cache.Get(ctx, key, &out); hit {
		return out, nil
	}
	out, err := load()
	if err != nil {
		return out, err
	}
	_ = cache.Set(ctx, key, out, ttl)
	return out, nil
}
