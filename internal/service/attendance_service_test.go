package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-entry-sync/internal/dto"
	"github.com/noah-isme/sma-entry-sync/internal/models"
	"github.com/noah-isme/sma-entry-sync/internal/syncer"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
	"github.com/noah-isme/sma-entry-sync/pkg/localstore"
)

type attendanceFixture struct {
	svc       *AttendanceService
	repo      *attendanceRepoStub
	roster    *rosterStub
	scheduler *schedulerStub
	cache     *memoryCache
	drafts    *localstore.MemoryStore
}

func newAttendanceFixture(t *testing.T, rows ...models.AttendanceRecord) *attendanceFixture {
	t.Helper()
	f := &attendanceFixture{
		repo:      newAttendanceRepoStub(rows...),
		roster:    classRoster(),
		scheduler: newSchedulerStub(),
		cache:     newMemoryCache(),
		drafts:    localstore.NewMemoryStore(),
	}
	metrics := NewMetricsService()
	cache := NewCacheService(f.cache, metrics, time.Minute, nil, true)
	engine := syncer.NewAttendanceEngine(f.repo, syncer.WithInvalidator(cache), syncer.WithRecorder(metrics))
	f.svc = NewAttendanceService(AttendanceServiceDeps{
		Drafts:    f.drafts,
		Roster:    f.roster,
		Remote:    f.repo,
		Engine:    engine,
		Scheduler: f.scheduler,
		Cache:     cache,
		Metrics:   metrics,
		ViewTTL:   time.Minute,
	})
	return f
}

func strPtr(s string) *string { return &s }

var feb1 = models.AttendanceScope("c1", "2024-02-01")

func TestAttendanceViewMergesRemoteAndDrafts(t *testing.T) {
	f := newAttendanceFixture(t, models.AttendanceRecord{
		ID: "r1", StudentID: "s1", CourseID: "c1", SessionDate: "2024-02-01",
		Status: models.AttendanceStatusAbsent, Notes: "sick", RecordedBy: "t0",
	})
	ctx := context.Background()

	_, err := f.svc.Update(ctx, feb1, "t1", "s2", dto.UpdateAttendanceRequest{Status: strPtr("late")})
	require.NoError(t, err)

	view, err := f.svc.View(ctx, feb1)
	require.NoError(t, err)
	require.Len(t, view.Rows, 3)

	assert.Equal(t, models.AttendanceStatusAbsent, view.Rows[0].Status)
	assert.True(t, view.Rows[0].Persisted)
	assert.False(t, view.Rows[0].Dirty)
	assert.Equal(t, "sick", view.Rows[0].Notes)

	assert.Equal(t, models.AttendanceStatusLate, view.Rows[1].Status)
	assert.True(t, view.Rows[1].Dirty)
	assert.False(t, view.Rows[1].Persisted)

	assert.Equal(t, models.AttendanceStatusPresent, view.Rows[2].Status)
	assert.Equal(t, 1, view.Unsaved)
	assert.True(t, view.AutoSaveEnabled)
	assert.True(t, f.cache.has(ScopeViewKey(feb1, "remote")))
}

func TestAttendanceUpdateValidation(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, feb1, "t1", "s1", dto.UpdateAttendanceRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Update(ctx, feb1, "t1", "s1", dto.UpdateAttendanceRequest{Status: strPtr("asleep")})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Update(ctx, feb1, "t1", "ghost", dto.UpdateAttendanceRequest{Status: strPtr("absent")})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Update(ctx, models.AttendanceScope("c1", "01/02/2024"), "t1", "s1", dto.UpdateAttendanceRequest{Status: strPtr("absent")})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAttendanceUpdateReportsDirtyCountToScheduler(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Update(ctx, feb1, "t1", "s1", dto.UpdateAttendanceRequest{Status: strPtr("absent")})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Unsaved)
	assert.True(t, resp.Draft.IsDirty)

	resp, err = f.svc.Update(ctx, feb1, "t1", "s2", dto.UpdateAttendanceRequest{Notes: strPtr("left early")})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Unsaved)
	assert.Equal(t, models.AttendanceStatusPresent, resp.Draft.Status)
	assert.Equal(t, 2, f.scheduler.last(feb1))
}

func TestAttendanceMarkAllFlushAndInvalidate(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := f.svc.View(ctx, feb1)
	require.NoError(t, err)
	require.True(t, f.cache.has(ScopeViewKey(feb1, "remote")))

	bulk, err := f.svc.MarkAll(ctx, feb1, "t1", models.AttendanceStatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, 3, bulk.Affected)
	assert.Equal(t, 3, bulk.Unsaved)

	result, err := f.svc.Flush(ctx, feb1, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Saved)
	assert.Len(t, result.IDs, 3)
	assert.False(t, f.cache.has(ScopeViewKey(feb1, "remote")))
	assert.Equal(t, 0, f.scheduler.last(feb1))

	view, err := f.svc.View(ctx, feb1)
	require.NoError(t, err)
	for _, row := range view.Rows {
		assert.True(t, row.Persisted)
		assert.False(t, row.Dirty)
		assert.Equal(t, models.AttendanceStatusAbsent, row.Status)
	}
	for _, row := range f.repo.rows {
		assert.Equal(t, "t1", row.RecordedBy)
	}
}

func TestAttendanceMarkAllRejectsOtherStatuses(t *testing.T) {
	f := newAttendanceFixture(t)
	_, err := f.svc.MarkAll(context.Background(), feb1, "t1", models.AttendanceStatusLate)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAttendanceSearchLimitsBulkActions(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	found, err := f.svc.Search(ctx, feb1, "AL")
	require.NoError(t, err)
	require.Len(t, found.Students, 1)
	assert.Equal(t, "s2", found.Students[0].ID)

	bulk, err := f.svc.MarkAll(ctx, feb1, "t1", models.AttendanceStatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, 1, bulk.Affected)

	cleared, err := f.svc.ClearMarks(ctx, feb1, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared.Affected)
	assert.Equal(t, 0, cleared.Unsaved)
}

func TestAttendanceFlushFailureKeepsDrafts(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, feb1, "t1", "s1", dto.UpdateAttendanceRequest{Status: strPtr("absent")})
	require.NoError(t, err)

	f.repo.err = errors.New("connection refused")
	_, err = f.svc.Flush(ctx, feb1, "t1")
	assert.ErrorIs(t, err, appErrors.ErrRemoteUnavailable)

	view, err := f.svc.View(ctx, feb1)
	assert.ErrorIs(t, err, appErrors.ErrRemoteUnavailable)
	assert.Nil(t, view)

	f.repo.err = nil
	result, err := f.svc.Flush(ctx, feb1, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Saved)
}

func TestAttendanceAutoFlushUsesLastActor(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.AutoFlush(ctx, feb1), "unknown scope is a no-op")

	_, err := f.svc.Update(ctx, feb1, "teacher-9", "s3", dto.UpdateAttendanceRequest{Status: strPtr("excused")})
	require.NoError(t, err)
	require.NoError(t, f.svc.AutoFlush(ctx, feb1))

	rows, err := f.repo.ListBySession(ctx, "c1", "2024-02-01")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "teacher-9", rows[0].RecordedBy)
	assert.Equal(t, models.AttendanceStatusExcused, rows[0].Status)
}

func TestAttendanceDraftsSurviveRestart(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, feb1, "t1", "s1", dto.UpdateAttendanceRequest{Status: strPtr("absent")})
	require.NoError(t, err)

	restarted := NewAttendanceService(AttendanceServiceDeps{
		Drafts:    f.drafts,
		Roster:    f.roster,
		Remote:    f.repo,
		Engine:    syncer.NewAttendanceEngine(f.repo),
		Scheduler: f.scheduler,
	})
	view, err := restarted.View(ctx, feb1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Unsaved)
	assert.Equal(t, models.AttendanceStatusAbsent, view.Rows[0].Status)

	require.NoError(t, restarted.ClearDrafts(ctx, feb1))
	_, err = f.drafts.Get(ctx, feb1.CacheKey())
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestAttendanceSetAutoSave(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	enabled, err := f.svc.SetAutoSave(ctx, feb1, false)
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = f.svc.SetAutoSave(ctx, feb1, true)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, 0, f.scheduler.last(feb1))
}

func TestAttendanceStatsAreCached(t *testing.T) {
	f := newAttendanceFixture(t,
		models.AttendanceRecord{ID: "r1", StudentID: "s1", CourseID: "c1", SessionDate: "2024-02-01", Status: models.AttendanceStatusPresent},
		models.AttendanceRecord{ID: "r2", StudentID: "s2", CourseID: "c1", SessionDate: "2024-02-01", Status: models.AttendanceStatusLate},
	)
	ctx := context.Background()

	stats, err := f.svc.Stats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 1, stats.Late)

	_, err = f.svc.Stats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.statsHits)

	_, err = f.svc.Update(ctx, feb1, "t1", "s3", dto.UpdateAttendanceRequest{Status: strPtr("absent")})
	require.NoError(t, err)
	_, err = f.svc.Flush(ctx, feb1, "t1")
	require.NoError(t, err)

	stats, err = f.svc.Stats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 2, f.repo.statsHits)
}

func TestAttendanceReportAndHistory(t *testing.T) {
	f := newAttendanceFixture(t,
		models.AttendanceRecord{ID: "r1", StudentID: "s1", CourseID: "c1", SessionDate: "2024-02-01", Status: models.AttendanceStatusPresent},
		models.AttendanceRecord{ID: "r2", StudentID: "s1", CourseID: "c1", SessionDate: "2024-02-02", Status: models.AttendanceStatusAbsent},
	)
	ctx := context.Background()

	_, err := f.svc.Report(ctx, "c1", "2024-02-03", "2024-02-01")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	report, err := f.svc.Report(ctx, "c1", "2024-02-02", "")
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, 1, report["2024-02-02"].Absent)

	history, err := f.svc.History(ctx, "c1", "s1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = f.svc.History(ctx, "c1", "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAttendanceFlushAll(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()
	feb2 := models.AttendanceScope("c1", "2024-02-02")

	_, err := f.svc.Update(ctx, feb1, "t1", "s1", dto.UpdateAttendanceRequest{Status: strPtr("absent")})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, feb2, "t2", "s2", dto.UpdateAttendanceRequest{Status: strPtr("late")})
	require.NoError(t, err)
	_, err = f.svc.View(ctx, models.AttendanceScope("c1", "2024-02-03"))
	require.NoError(t, err)

	require.NoError(t, f.svc.FlushAll(ctx))
	assert.Len(t, f.repo.rows, 2)
}

func TestAttendanceRosterFailure(t *testing.T) {
	f := newAttendanceFixture(t)
	f.roster.err = appErrors.Clone(appErrors.ErrRemoteUnavailable, "roster down")

	_, err := f.svc.View(context.Background(), feb1)
	assert.ErrorIs(t, err, appErrors.ErrRemoteUnavailable)

	f.roster.err = nil
	_, err = f.svc.View(context.Background(), feb1)
	assert.NoError(t, err)
}

func TestAttendanceSessionPicksUpLateEnrollment(t *testing.T) {
	f := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := f.svc.View(ctx, feb1)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, feb1, "t1", "s4", dto.UpdateAttendanceRequest{Status: strPtr("absent")})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	f.roster.students = append(f.roster.students, models.Student{ID: "s4", FullName: "Katherine Johnson"})
	_, err = f.svc.Update(ctx, feb1, "t1", "s4", dto.UpdateAttendanceRequest{Status: strPtr("absent")})
	require.NoError(t, err)

	f.roster.err = errors.New("roster offline")
	view, err := f.svc.View(ctx, feb1)
	require.NoError(t, err)
	assert.Len(t, view.Rows, 4)
}
