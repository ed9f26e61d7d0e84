package service

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
)

type rosterStub struct {
	students []models.Student
	err      error
	calls    int
}

func (r *rosterStub) List(_ context.Context, _ string) ([]models.Student, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return append([]models.Student(nil), r.students...), nil
}

func (r *rosterStub) ListByCourse(ctx context.Context, courseID string) ([]models.Student, error) {
	return r.List(ctx, courseID)
}

func classRoster() *rosterStub {
	return &rosterStub{students: []models.Student{
		{ID: "s1", FullName: "Ada Lovelace"},
		{ID: "s2", FullName: "Alan Turing"},
		{ID: "s3", FullName: "Grace Hopper"},
	}}
}

// attendanceRepoStub stores rows keyed by business key, like the SQL upsert.
type attendanceRepoStub struct {
	mu        sync.Mutex
	rows      map[string]models.AttendanceRecord
	listCalls int
	statsHits int
	err       error
}

func newAttendanceRepoStub(rows ...models.AttendanceRecord) *attendanceRepoStub {
	r := &attendanceRepoStub{rows: make(map[string]models.AttendanceRecord)}
	for _, row := range rows {
		r.rows[row.BusinessKey()] = row
	}
	return r
}

func (r *attendanceRepoStub) BatchUpsert(_ context.Context, items []models.AttendanceRecord) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if existing, ok := r.rows[item.BusinessKey()]; ok {
			item.ID = existing.ID
		}
		r.rows[item.BusinessKey()] = item
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (r *attendanceRepoStub) ListBySession(_ context.Context, courseID, date string) ([]models.AttendanceRecord, error) {
	return r.filter(func(row models.AttendanceRecord) bool {
		return row.CourseID == courseID && row.SessionDate == date
	})
}

func (r *attendanceRepoStub) ListRange(_ context.Context, courseID, from, to string) ([]models.AttendanceRecord, error) {
	return r.filter(func(row models.AttendanceRecord) bool {
		return row.CourseID == courseID && (from == "" || row.SessionDate >= from) && (to == "" || row.SessionDate <= to)
	})
}

func (r *attendanceRepoStub) Stats(ctx context.Context, courseID string) (*models.AttendanceStats, error) {
	r.mu.Lock()
	r.statsHits++
	r.mu.Unlock()
	rows, err := r.ListRange(ctx, courseID, "", "")
	if err != nil {
		return nil, err
	}
	stats := &models.AttendanceStats{}
	for _, row := range rows {
		stats.Add(row.Status)
	}
	return stats, nil
}

func (r *attendanceRepoStub) DailyReport(ctx context.Context, courseID, from, to string) (models.DailyAttendanceReport, error) {
	rows, err := r.ListRange(ctx, courseID, from, to)
	if err != nil {
		return nil, err
	}
	report := models.DailyAttendanceReport{}
	for _, row := range rows {
		day := report[row.SessionDate]
		day.Add(row.Status)
		report[row.SessionDate] = day
	}
	return report, nil
}

func (r *attendanceRepoStub) History(ctx context.Context, courseID, studentID string) ([]models.AttendanceHistoryRow, error) {
	rows, err := r.ListRange(ctx, courseID, "", "")
	if err != nil {
		return nil, err
	}
	out := make([]models.AttendanceHistoryRow, 0)
	for _, row := range rows {
		if row.StudentID == studentID {
			out = append(out, models.AttendanceHistoryRow{SessionDate: row.SessionDate, Status: row.Status, Notes: row.Notes})
		}
	}
	return out, nil
}

func (r *attendanceRepoStub) filter(keep func(models.AttendanceRecord) bool) ([]models.AttendanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]models.AttendanceRecord, 0)
	for _, row := range r.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BusinessKey() < out[j].BusinessKey() })
	return out, nil
}

type gradeRepoStub struct {
	mu        sync.Mutex
	rows      map[string]models.GradeRecord
	listCalls int
	deleted   []string
	err       error
}

func newGradeRepoStub(rows ...models.GradeRecord) *gradeRepoStub {
	r := &gradeRepoStub{rows: make(map[string]models.GradeRecord)}
	for _, row := range rows {
		r.rows[row.BusinessKey()] = row
	}
	return r
}

func (r *gradeRepoStub) BatchUpsert(_ context.Context, items []models.GradeRecord) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if existing, ok := r.rows[item.BusinessKey()]; ok {
			item.ID = existing.ID
		}
		r.rows[item.BusinessKey()] = item
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (r *gradeRepoStub) ListByCourse(_ context.Context, courseID string) ([]models.GradeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]models.GradeRecord, 0)
	for _, row := range r.rows {
		if row.CourseID == courseID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (r *gradeRepoStub) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var n int64
	for _, id := range ids {
		for key, row := range r.rows {
			if row.ID == id {
				delete(r.rows, key)
				r.deleted = append(r.deleted, id)
				n++
			}
		}
	}
	return n, nil
}

type schedulerStub struct {
	mu       sync.Mutex
	observed map[string][]int
	enabled  map[string]bool
}

func newSchedulerStub() *schedulerStub {
	return &schedulerStub{observed: make(map[string][]int), enabled: make(map[string]bool)}
}

func (s *schedulerStub) Observe(scope models.Scope, dirty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed[scope.CacheKey()] = append(s.observed[scope.CacheKey()], dirty)
}

func (s *schedulerStub) SetEnabled(scope models.Scope, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[scope.CacheKey()] = enabled
}

func (s *schedulerStub) Enabled(scope models.Scope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled, ok := s.enabled[scope.CacheKey()]
	return !ok || enabled
}

func (s *schedulerStub) last(scope models.Scope) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := s.observed[scope.CacheKey()]
	if len(counts) == 0 {
		return -1
	}
	return counts[len(counts)-1]
}

// memoryCache mimics the Redis cache repository with glob deletes.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.data, key)
		}
	}
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}
