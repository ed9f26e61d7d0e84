package service

import (
	"context"
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

type attendanceReader interface {
	ListBySession(ctx context.Context, courseID, sessionDate string) ([]models.AttendanceRecord, error)
	ListRange(ctx context.Context, courseID, from, to string) ([]models.AttendanceRecord, error)
	Stats(ctx context.Context, courseID string) (*models.AttendanceStats, error)
	DailyReport(ctx context.Context, courseID, from, to string) (models.DailyAttendanceReport, error)
	History(ctx context.Context, courseID, studentID string) ([]models.AttendanceHistoryRow, error)
}

type rosterLister interface {
	List(ctx context.Context, courseID string) ([]models.Student, error)
}

type attendanceSession struct {
	ctrl  *entry.AttendanceController
	actor actorRef
}

// AttendanceService orchestrates attendance entry sessions.
type AttendanceService struct {
	drafts    localstore.Store
	roster    rosterLister
	remote    attendanceReader
	engine    *syncer.AttendanceEngine
	scheduler autosaveScheduler
	cache     *CacheService
	metrics   *MetricsService
	viewTTL   time.Duration
	logger    *zap.Logger
	sessions  *registry[*attendanceSession]
}

// AttendanceServiceDeps groups the collaborators of AttendanceService.
type AttendanceServiceDeps struct {
	Drafts    localstore.Store
	Roster    rosterLister
	Remote    attendanceReader
	Engine    *syncer.AttendanceEngine
	Scheduler autosaveScheduler
	Cache     *CacheService
	Metrics   *MetricsService
	ViewTTL   time.Duration
	Logger    *zap.Logger
}

// NewAttendanceService constructs the service.
func NewAttendanceService(deps AttendanceServiceDeps) *AttendanceService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AttendanceService{
		drafts:    deps.Drafts,
		roster:    deps.Roster,
		remote:    deps.Remote,
		engine:    deps.Engine,
		scheduler: deps.Scheduler,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		viewTTL:   deps.ViewTTL,
		logger:    deps.Logger,
		sessions:  newRegistry[*attendanceSession](),
	}
}

func (s *AttendanceService) session(ctx context.Context, scope models.Scope) (*attendanceSession, error) {
	if err := scope.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	students, rosterErr := s.roster.List(ctx, scope.CourseID)
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
	return s.sessions.getOrCreate(scope.CacheKey(), func() (*attendanceSession, error) {
		store := draft.New(scope, s.drafts, models.DefaultAttendanceDraft, s.logger)
		if err := store.Load(ctx); err != nil {
			return nil, err
		}
		s.logger.Debug("attendance session opened", zap.String("scope", scope.CacheKey()), zap.Int("drafts", store.Len()))
		return &attendanceSession{ctrl: entry.NewAttendanceController(store, students)}, nil
	})
}

// View merges roster, confirmed remote rows and local drafts. Dirty drafts win;
// clean keys show the remote state when one exists.
func (s *AttendanceService) View(ctx context.Context, scope models.Scope) (*models.AttendanceView, error) {
	sess, err := s.session(ctx, scope)
	if err != nil {
		return nil, err
	}
	remote, err := cached(ctx, s.cache, ScopeViewKey(scope, "remote"), s.viewTTL, func() ([]models.AttendanceRecord, error) {
		return s.remote.ListBySession(ctx, scope.CourseID, scope.SessionDate)
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to load attendance")
	}
	confirmed := make(map[string]models.AttendanceRecord, len(remote))
	for _, row := range remote {
		confirmed[row.StudentID] = row
	}

	store := sess.ctrl.Store()
	roster := sess.ctrl.Roster()
	view := &models.AttendanceView{
		Scope:           scope,
		Rows:            make([]models.AttendanceViewRow, 0, len(roster)),
		Unsaved:         store.DirtyCount(),
		AutoSaveEnabled: s.scheduler.Enabled(scope),
		Search:          sess.ctrl.Search(),
		Counts:          sess.ctrl.Counts(),
		SyncInFlight:    s.engine.Pending(scope.CacheKey()),
	}
	for _, student := range roster {
		row := models.AttendanceViewRow{StudentID: student.ID, StudentName: student.FullName, Status: models.AttendanceStatusPresent}
		d, hasDraft := store.Get(student.ID)
		rec, persisted := confirmed[student.ID]
		row.Persisted = persisted
		switch {
		case hasDraft && d.IsDirty:
			row.Status, row.Notes, row.Dirty = d.Status, d.Notes, true
		case persisted:
			row.Status, row.Notes = rec.Status, rec.Notes
		case hasDraft:
			row.Status, row.Notes = d.Status, d.Notes
		}
		view.Rows = append(view.Rows, row)
	}
	return view, nil
}

// Update edits one student's status and/or notes.
func (s *AttendanceService) Update(ctx context.Context, scope models.Scope, actor, studentID string, req dto.UpdateAttendanceRequest) (*dto.AttendanceDraftResponse, error) {
	if req.Status == nil && req.Notes == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status or notes required")
	}
	sess, err := s.session(ctx, scope)
	if err != nil {
		return nil, err
	}
	sess.actor.set(actor)

	dirty := true
	patch := models.AttendancePatch{Notes: req.Notes, Dirty: &dirty}
	if req.Status != nil {
		status := models.AttendanceStatus(*req.Status)
		patch.Status = &status
	}
	d, err := sess.ctrl.Update(ctx, studentID, patch)
	unsaved := s.observe(sess)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveMutation(string(scope.Workflow), 1)
	return &dto.AttendanceDraftResponse{StudentID: studentID, Draft: d, Unsaved: unsaved}, nil
}

// Search sets the name filter and returns matching students.
func (s *AttendanceService) Search(ctx context.Context, scope models.Scope, term string) (*dto.SearchResponse, error) {
	sess, err := s.session(ctx, scope)
	if err != nil {
		return nil, err
	}
	students := sess.ctrl.SetSearch(term)
	return &dto.SearchResponse{Term: sess.ctrl.Search(), Students: students}, nil
}

// MarkAll applies present or absent to every visible student.
func (s *AttendanceService) MarkAll(ctx context.Context, scope models.Scope, actor string, status models.AttendanceStatus) (*dto.BulkResponse, error) {
	sess, err := s.session(ctx, scope)
	if err != nil {
		return nil, err
	}
	sess.actor.set(actor)

	var n int
	switch status {
	case models.AttendanceStatusPresent:
		n, err = sess.ctrl.MarkAllPresent(ctx)
	case models.AttendanceStatusAbsent:
		n, err = sess.ctrl.MarkAllAbsent(ctx)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "bulk status must be present or absent")
	}
	return s.bulkResult(scope, sess, n, err)
}

// ClearMarks resets visible students to the clean default.
func (s *AttendanceService) ClearMarks(ctx context.Context, scope models.Scope, actor string) (*dto.BulkResponse, error) {
	sess, err := s.session(ctx, scope)
	if err != nil {
		return nil, err
	}
	sess.actor.set(actor)
	n, err := sess.ctrl.ClearAllMarks(ctx)
	return s.bulkResult(scope, sess, n, err)
}

func (s *AttendanceService) bulkResult(scope models.Scope, sess *attendanceSession, n int, err error) (*dto.BulkResponse, error) {
	s.metrics.ObserveMutation(string(scope.Workflow), n)
	unsaved := s.observe(sess)
	if err != nil {
		return nil, err
	}
	return &dto.BulkResponse{Affected: n, Unsaved: unsaved}, nil
}

// ClearDrafts drops every draft of the scope, including the durable copy.
func (s *AttendanceService) ClearDrafts(ctx context.Context, scope models.Scope) error {
	sess, err := s.session(ctx, scope)
	if err != nil {
		return err
	}
	err = sess.ctrl.Store().Clear(ctx)
	s.observe(sess)
	return err
}

// Flush pushes the scope's dirty drafts as the given actor.
func (s *AttendanceService) Flush(ctx context.Context, scope models.Scope, actor string) (*models.SyncResult, error) {
	sess, err := s.session(ctx, scope)
	if err != nil {
		return nil, err
	}
	sess.actor.set(actor)
	return s.flush(ctx, sess, actor)
}

// AutoFlush pushes the scope's drafts as the last actor seen on it.
func (s *AttendanceService) AutoFlush(ctx context.Context, scope models.Scope) error {
	sess, ok := s.sessions.get(scope.CacheKey())
	if !ok {
		return nil
	}
	_, err := s.flush(ctx, sess, sess.actor.get())
	return err
}

func (s *AttendanceService) flush(ctx context.Context, sess *attendanceSession, actor string) (*models.SyncResult, error) {
	result, err := s.engine.Flush(ctx, sess.ctrl.Store(), actor)
	s.observe(sess)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SetAutoSave toggles automatic flushing for the scope.
func (s *AttendanceService) SetAutoSave(ctx context.Context, scope models.Scope, enabled bool) (bool, error) {
	sess, err := s.session(ctx, scope)
	if err != nil {
		return false, err
	}
	s.scheduler.SetEnabled(scope, enabled)
	if enabled {
		s.observe(sess)
	}
	return s.scheduler.Enabled(scope), nil
}

// Stats returns course-wide attendance tallies.
func (s *AttendanceService) Stats(ctx context.Context, courseID string) (*models.AttendanceStats, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id required")
	}
	stats, err := cached(ctx, s.cache, CourseViewKey(models.WorkflowAttendance, courseID, "stats"), s.viewTTL, func() (*models.AttendanceStats, error) {
		return s.remote.Stats(ctx, courseID)
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to load attendance stats")
	}
	return stats, nil
}

// Report returns per-day tallies between two session dates.
func (s *AttendanceService) Report(ctx context.Context, courseID, from, to string) (models.DailyAttendanceReport, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id required")
	}
	if from != "" && to != "" && from > to {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	key := CourseViewKey(models.WorkflowAttendance, courseID, "report:"+from+":"+to)
	report, err := cached(ctx, s.cache, key, s.viewTTL, func() (models.DailyAttendanceReport, error) {
		return s.remote.DailyReport(ctx, courseID, from, to)
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to load attendance report")
	}
	return report, nil
}

// History lists a student's attendance in a course.
func (s *AttendanceService) History(ctx context.Context, courseID, studentID string) ([]models.AttendanceHistoryRow, error) {
	if courseID == "" || studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id and student id required")
	}
	rows, err := s.remote.History(ctx, courseID, studentID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to load attendance history")
	}
	return rows, nil
}

// FlushAll flushes every open session with dirty drafts concurrently. One
// failing scope does not stop the others; the first error is returned.
func (s *AttendanceService) FlushAll(ctx context.Context) error {
	var g errgroup.Group
	for _, sess := range s.sessions.all() {
		sess := sess
		if sess.ctrl.Store().DirtyCount() == 0 {
			continue
		}
		g.Go(func() error {
			scope := sess.ctrl.Store().Scope()
			if _, err := s.flush(ctx, sess, sess.actor.get()); err != nil {
				s.logger.Error("flush on shutdown failed", zap.String("scope", scope.CacheKey()), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *AttendanceService) observe(sess *attendanceSession) int {
	store := sess.ctrl.Store()
	dirty := store.DirtyCount()
	s.scheduler.Observe(store.Scope(), dirty)
	return dirty
}
