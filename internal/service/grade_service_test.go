package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-entry-sync/internal/entry"
	"github.com/noah-isme/sma-entry-sync/internal/models"
	"github.com/noah-isme/sma-entry-sync/internal/syncer"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
	"github.com/noah-isme/sma-entry-sync/pkg/localstore"
)

type gradeFixture struct {
	svc       *GradeService
	repo      *gradeRepoStub
	roster    *rosterStub
	scheduler *schedulerStub
	cache     *memoryCache
}

func newGradeFixture(t *testing.T, rows ...models.GradeRecord) *gradeFixture {
	t.Helper()
	f := &gradeFixture{
		repo:      newGradeRepoStub(rows...),
		roster:    classRoster(),
		scheduler: newSchedulerStub(),
		cache:     newMemoryCache(),
	}
	metrics := NewMetricsService()
	cache := NewCacheService(f.cache, metrics, time.Minute, nil, true)
	f.svc = NewGradeService(GradeServiceDeps{
		Drafts:    localstore.NewMemoryStore(),
		Roster:    f.roster,
		Remote:    f.repo,
		Engine:    syncer.NewGradeEngine(f.repo, syncer.WithInvalidator(cache), syncer.WithRecorder(metrics)),
		Scheduler: f.scheduler,
		Cache:     cache,
		Metrics:   metrics,
		ViewTTL:   time.Minute,
	})
	return f
}

func TestGradeSetScore(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()

	resp, err := f.svc.SetScore(ctx, "c1", "t1", "s1", "87.5")
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	require.NotNil(t, resp.Draft.Score)
	assert.Equal(t, 87.5, *resp.Draft.Score)
	assert.Equal(t, 1, resp.Unsaved)

	for _, raw := range []string{"abc", "101", "-1", "NaN"} {
		resp, err = f.svc.SetScore(ctx, "c1", "t1", "s1", raw)
		require.NoError(t, err, raw)
		assert.False(t, resp.Applied, raw)
		assert.Equal(t, 87.5, *resp.Draft.Score, raw)
	}

	resp, err = f.svc.SetScore(ctx, "c1", "t1", "s1", "")
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Nil(t, resp.Draft.Score)
	assert.True(t, resp.Draft.IsDirty)

	_, err = f.svc.SetScore(ctx, "c1", "t1", "ghost", "50")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestGradeSaveShortcutFlushes(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetScore(ctx, "c1", "t1", "s1", "90")
	require.NoError(t, err)
	_, err = f.svc.SetFeedback(ctx, "c1", "t1", "s2", "needs a score first")
	require.NoError(t, err)

	resp, err := f.svc.HandleKey(ctx, "c1", "t1", entry.Key{Name: "s", Ctrl: true})
	require.NoError(t, err)
	assert.True(t, resp.Action.Save)
	require.NotNil(t, resp.Flush)
	assert.Equal(t, 1, resp.Flush.Saved)

	view, err := f.svc.View(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, view.Rows[0].Persisted)
	assert.False(t, view.Rows[0].Dirty)
	assert.Equal(t, 90.0, *view.Rows[0].Score)
	assert.True(t, view.Rows[1].Dirty, "ungraded drafts stay dirty")
	assert.Equal(t, 1, view.Unsaved)
}

func TestGradeKeyNavigation(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()

	resp, err := f.svc.HandleKey(ctx, "c1", "t1", entry.Key{Name: "Tab"})
	require.NoError(t, err)
	assert.Nil(t, resp.Flush)
	assert.Equal(t, models.Cursor{Row: 0, Field: "feedback", StudentID: "s1"}, resp.Cursor)

	resp, err = f.svc.HandleKey(ctx, "c1", "t1", entry.Key{Name: "Tab"})
	require.NoError(t, err)
	assert.Equal(t, models.Cursor{Row: 1, Field: "score", StudentID: "s2"}, resp.Cursor)

	cursor, err := f.svc.Focus(ctx, "c1", 2, entry.FieldFeedback)
	require.NoError(t, err)
	assert.Equal(t, "s3", cursor.StudentID)

	_, err = f.svc.Focus(ctx, "c1", 3, entry.FieldScore)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	view, err := f.svc.View(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, cursor, view.Cursor)
}

func TestGradeViewPrefersDirtyDraft(t *testing.T) {
	f := newGradeFixture(t, models.GradeRecord{ID: "g1", StudentID: "s1", CourseID: "c1", Score: 70, Feedback: "ok", GradedBy: "t0"})
	ctx := context.Background()

	view, err := f.svc.View(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 70.0, *view.Rows[0].Score)
	assert.Nil(t, view.Rows[1].Score)

	_, err = f.svc.SetScore(ctx, "c1", "t1", "s1", "75")
	require.NoError(t, err)
	view, err = f.svc.View(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 75.0, *view.Rows[0].Score)
	assert.True(t, view.Rows[0].Dirty)
	assert.Equal(t, 1, f.repo.listCalls, "remote rows served from cache")
}

func TestGradeDeleteInvalidatesViews(t *testing.T) {
	f := newGradeFixture(t,
		models.GradeRecord{ID: "g1", StudentID: "s1", CourseID: "c1", Score: 70, GradedBy: "t0"},
		models.GradeRecord{ID: "g2", StudentID: "s2", CourseID: "c1", Score: 80, GradedBy: "t0"},
	)
	ctx := context.Background()

	_, err := f.svc.View(ctx, "c1")
	require.NoError(t, err)
	require.True(t, f.cache.has(ScopeViewKey(models.GradeScope("c1"), "remote")))

	_, err = f.svc.DeleteGrades(ctx, []string{" ", ""})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	n, err := f.svc.DeleteGrades(ctx, []string{"g1", " g2 "})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.False(t, f.cache.has(ScopeViewKey(models.GradeScope("c1"), "remote")))

	view, err := f.svc.View(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, view.Rows[0].Persisted)
}

func TestGradeAutoSaveAndClear(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()
	scope := models.GradeScope("c1")

	_, err := f.svc.SetScore(ctx, "c1", "t7", "s3", "66")
	require.NoError(t, err)
	assert.Equal(t, 1, f.scheduler.last(scope))

	enabled, err := f.svc.SetAutoSave(ctx, "c1", false)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, f.svc.AutoFlush(ctx, scope))
	rows, err := f.repo.ListByCourse(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t7", rows[0].GradedBy)

	_, err = f.svc.SetScore(ctx, "c1", "t7", "s2", "55")
	require.NoError(t, err)
	require.NoError(t, f.svc.ClearDrafts(ctx, "c1"))
	assert.Equal(t, 0, f.scheduler.last(scope))
	require.NoError(t, f.svc.FlushAll(ctx))
	rows, err = f.repo.ListByCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGradeFlushRequiresActor(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetScore(ctx, "c1", "", "s1", "40")
	require.NoError(t, err)
	_, err = f.svc.Flush(ctx, "c1", "")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = f.svc.Flush(ctx, "", "t1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestGradeSessionPicksUpLateEnrollment(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetScore(ctx, "c1", "t1", "s4", "70")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	f.roster.students = append(f.roster.students, models.Student{ID: "s4", FullName: "Katherine Johnson"})
	resp, err := f.svc.SetScore(ctx, "c1", "t1", "s4", "70")
	require.NoError(t, err)
	assert.True(t, resp.Applied)

	view, err := f.svc.View(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, view.Rows, 4)
}
