package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
)

type rosterRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Student, error)
}

// RosterService reads course rosters through the cache.
type RosterService struct {
	repo   rosterRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewRosterService constructs the service. cache may be nil.
func NewRosterService(repo rosterRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// List returns the enrolled students of a course ordered by name.
func (s *RosterService) List(ctx context.Context, courseID string) ([]models.Student, error) {
	if strings.TrimSpace(courseID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id required")
	}
	students, err := cached(ctx, s.cache, RosterKey(courseID), s.ttl, func() ([]models.Student, error) {
		return s.repo.ListByCourse(ctx, courseID)
	})
	if err != nil {
		s.logger.Warn("load roster failed", zap.String("course_id", courseID), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to load roster")
	}
	return students, nil
}
