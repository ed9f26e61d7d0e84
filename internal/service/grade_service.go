package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-entry-sync/internal/draft"
	"github.com/noah-isme/sma-entry-sync/internal/dto"
	"github.com/noah-isme/sma-entry-sync/internal/entry"
	"github.com/noah-isme/sma-entry-sync/internal/models"
	"github.com/noah-isme/sma-entry-sync/internal/syncer"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
	"github.com/noah-isme/sma-entry-sync/pkg/localstore"
)

type gradeReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.GradeRecord, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

type gradeSession struct {
	ctrl  *entry.GradeController
	actor actorRef
}

// GradeService orchestrates keyboard-driven grade entry sessions.
type GradeService struct {
	drafts    localstore.Store
	roster    rosterLister
	remote    gradeReader
	engine    *syncer.GradeEngine
	scheduler autosaveScheduler
	cache     *CacheService
	metrics   *MetricsService
	viewTTL   time.Duration
	logger    *zap.Logger
	sessions  *registry[*gradeSession]
}

// GradeServiceDeps groups the collaborators of GradeService.
type GradeServiceDeps struct {
	Drafts    localstore.Store
	Roster    rosterLister
	Remote    gradeReader
	Engine    *syncer.GradeEngine
	Scheduler autosaveScheduler
	Cache     *CacheService
	Metrics   *MetricsService
	ViewTTL   time.Duration
	Logger    *zap.Logger
}

// NewGradeService constructs the service.
func NewGradeService(deps GradeServiceDeps) *GradeService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &GradeService{
		drafts:    deps.Drafts,
		roster:    deps.Roster,
		remote:    deps.Remote,
		engine:    deps.Engine,
		scheduler: deps.Scheduler,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		viewTTL:   deps.ViewTTL,
		logger:    deps.Logger,
		sessions:  newRegistry[*gradeSession](),
	}
}

func (s *GradeService) session(ctx context.Context, courseID string) (*gradeSession, error) {
	scope := models.GradeScope(courseID)
	if err := scope.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	students, rosterErr := s.roster.List(ctx, courseID)
	if sess, ok := s.sessions.get(scope.CacheKey()); ok {
		if rosterErr != nil {
			s.logger.Warn("roster refresh failed, keeping previous roster", zap.String("scope", scope.CacheKey()), zap.Error(rosterErr))
		} else {
			sess.ctrl.SetRoster(students)
		}
		return sess, nil
	}
	if rosterErr != nil {
		return nil, rosterErr
	}
	return s.sessions.getOrCreate(scope.CacheKey(), func() (*gradeSession, error) {
		store := draft.New(scope, s.drafts, models.DefaultGradeDraft, s.logger)
		if err := store.Load(ctx); err != nil {
			return nil, err
		}
		return &gradeSession{ctrl: entry.NewGradeController(store, students)}, nil
	})
}

// View merges roster, confirmed grades and local drafts with the focus cursor.
func (s *GradeService) View(ctx context.Context, courseID string) (*models.GradeView, error) {
	sess, err := s.session(ctx, courseID)
	if err != nil {
		return nil, err
	}
	scope := sess.ctrl.Store().Scope()
	remote, err := cached(ctx, s.cache, ScopeViewKey(scope, "remote"), s.viewTTL, func() ([]models.GradeRecord, error) {
		return s.remote.ListByCourse(ctx, courseID)
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to load grades")
	}
	confirmed := make(map[string]models.GradeRecord, len(remote))
	for _, row := range remote {
		confirmed[row.StudentID] = row
	}

	store := sess.ctrl.Store()
	roster := sess.ctrl.Roster()
	view := &models.GradeView{
		Scope:           scope,
		Rows:            make([]models.GradeViewRow, 0, len(roster)),
		Unsaved:         store.DirtyCount(),
		AutoSaveEnabled: s.scheduler.Enabled(scope),
		Cursor:          sess.ctrl.Cursor(),
		SyncInFlight:    s.engine.Pending(scope.CacheKey()),
	}
	for _, student := range roster {
		row := models.GradeViewRow{StudentID: student.ID, StudentName: student.FullName}
		d, hasDraft := store.Get(student.ID)
		rec, persisted := confirmed[student.ID]
		row.Persisted = persisted
		switch {
		case hasDraft && d.IsDirty:
			row.Score, row.Feedback, row.Dirty = d.Score, d.Feedback, true
		case persisted:
			score := rec.Score
			row.Score, row.Feedback = &score, rec.Feedback
		case hasDraft:
			row.Score, row.Feedback = d.Score, d.Feedback
		}
		view.Rows = append(view.Rows, row)
	}
	return view, nil
}

// SetScore applies raw score input. Rejected input is reported with
// Applied=false and no error.
func (s *GradeService) SetScore(ctx context.Context, courseID, actor, studentID, raw string) (*dto.GradeDraftResponse, error) {
	sess, err := s.session(ctx, courseID)
	if err != nil {
		return nil, err
	}
	sess.actor.set(actor)
	d, applied, err := sess.ctrl.SetScore(ctx, studentID, raw)
	unsaved := s.observe(sess)
	if err != nil {
		return nil, err
	}
	if applied {
		s.metrics.ObserveMutation(string(models.WorkflowGrades), 1)
	}
	return &dto.GradeDraftResponse{StudentID: studentID, Applied: applied, Draft: d, Unsaved: unsaved}, nil
}

// SetFeedback replaces a student's feedback text.
func (s *GradeService) SetFeedback(ctx context.Context, courseID, actor, studentID, feedback string) (*dto.GradeDraftResponse, error) {
	sess, err := s.session(ctx, courseID)
	if err != nil {
		return nil, err
	}
	sess.actor.set(actor)
	d, err := sess.ctrl.SetFeedback(ctx, studentID, feedback)
	unsaved := s.observe(sess)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMutation(string(models.WorkflowGrades), 1)
	return &dto.GradeDraftResponse{StudentID: studentID, Applied: true, Draft: d, Unsaved: unsaved}, nil
}

// HandleKey feeds a key press to the navigator. The save shortcut flushes
// immediately, whatever the dirty count.
func (s *GradeService) HandleKey(ctx context.Context, courseID, actor string, key entry.Key) (*dto.KeyResponse, error) {
	sess, err := s.session(ctx, courseID)
	if err != nil {
		return nil, err
	}
	sess.actor.set(actor)
	action := sess.ctrl.HandleKey(key)
	resp := &dto.KeyResponse{Action: action, Cursor: sess.ctrl.Cursor()}
	if action.Save {
		result, err := s.flush(ctx, sess, actor)
		if err != nil {
			return nil, err
		}
		resp.Flush = result
	}
	return resp, nil
}

// Focus moves the cursor to a cell.
func (s *GradeService) Focus(ctx context.Context, courseID string, row int, field entry.Field) (models.Cursor, error) {
	sess, err := s.session(ctx, courseID)
	if err != nil {
		return models.Cursor{}, err
	}
	if !sess.ctrl.Navigator().Focus(row, field) {
		return models.Cursor{}, appErrors.Clone(appErrors.ErrValidation, "focus target out of range")
	}
	return sess.ctrl.Cursor(), nil
}

// Flush pushes the course's graded dirty drafts as the given actor.
func (s *GradeService) Flush(ctx context.Context, courseID, actor string) (*models.SyncResult, error) {
	sess, err := s.session(ctx, courseID)
	if err != nil {
		return nil, err
	}
	sess.actor.set(actor)
	return s.flush(ctx, sess, actor)
}

// AutoFlush pushes the scope's drafts as the last actor seen on it.
func (s *GradeService) AutoFlush(ctx context.Context, scope models.Scope) error {
	sess, ok := s.sessions.get(scope.CacheKey())
	if !ok {
		return nil
	}
	_, err := s.flush(ctx, sess, sess.actor.get())
	return err
}

func (s *GradeService) flush(ctx context.Context, sess *gradeSession, actor string) (*models.SyncResult, error) {
	result, err := s.engine.Flush(ctx, sess.ctrl.Store(), actor)
	s.observe(sess)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SetAutoSave toggles automatic flushing for the course.
func (s *GradeService) SetAutoSave(ctx context.Context, courseID string, enabled bool) (bool, error) {
	sess, err := s.session(ctx, courseID)
	if err != nil {
		return false, err
	}
	scope := sess.ctrl.Store().Scope()
	s.scheduler.SetEnabled(scope, enabled)
	if enabled {
		s.observe(sess)
	}
	return s.scheduler.Enabled(scope), nil
}

// ClearDrafts drops every draft of the course, including the durable copy.
func (s *GradeService) ClearDrafts(ctx context.Context, courseID string) error {
	sess, err := s.session(ctx, courseID)
	if err != nil {
		return err
	}
	err = sess.ctrl.Store().Clear(ctx)
	s.observe(sess)
	return err
}

// DeleteGrades removes confirmed grade rows and drops every cached grade view.
func (s *GradeService) DeleteGrades(ctx context.Context, ids []string) (int64, error) {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	if len(cleaned) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "at least one grade id required")
	}
	n, err := s.remote.DeleteByIDs(ctx, cleaned)
	if err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to delete grades")
	}
	if err := s.cache.Invalidate(ctx, "view:"+string(models.WorkflowGrades)+"-*"); err != nil {
		s.logger.Warn("invalidate grade views failed", zap.Error(err))
	}
	return n, nil
}

// FlushAll flushes every open session with dirty drafts concurrently.
func (s *GradeService) FlushAll(ctx context.Context) error {
	var g errgroup.Group
	for _, sess := range s.sessions.all() {
		sess := sess
		if sess.ctrl.Store().DirtyCount() == 0 {
			continue
		}
		g.Go(func() error {
			if _, err := s.flush(ctx, sess, sess.actor.get()); err != nil {
				s.logger.Error("flush on shutdown failed", zap.String("scope", sess.ctrl.Store().Scope().CacheKey()), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *GradeService) observe(sess *gradeSession) int {
	store := sess.ctrl.Store()
	dirty := store.DirtyCount()
	s.scheduler.Observe(store.Scope(), dirty)
	return dirty
}
