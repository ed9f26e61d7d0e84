// Package entry implements the record-level editing operations of the
// attendance and grade entry workflows.
package entry

import (
	"context"
	"strings"
	"sync"

	"github.com/noah-isme/sma-entry-sync/internal/draft"
	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
)

// AttendanceController edits one session's attendance drafts.
type AttendanceController struct {
	store *draft.Store[models.AttendanceDraft]

	mu     sync.RWMutex
	roster []models.Student
	search string
}

// NewAttendanceController binds a controller to a loaded draft store.
func NewAttendanceController(store *draft.Store[models.AttendanceDraft], roster []models.Student) *AttendanceController {
	c := &AttendanceController{store: store}
	c.SetRoster(roster)
	return c
}

// Store exposes the underlying draft store.
func (c *AttendanceController) Store() *draft.Store[models.AttendanceDraft] {
	return c.store
}

// SetRoster replaces the authoritative student list.
func (c *AttendanceController) SetRoster(roster []models.Student) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roster = append([]models.Student(nil), roster...)
}

// Roster returns the student list in roster order.
func (c *AttendanceController) Roster() []models.Student {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Student(nil), c.roster...)
}

// SetSearch sets the name filter used by Visible and bulk operations.
func (c *AttendanceController) SetSearch(term string) []models.Student {
	c.mu.Lock()
	c.search = strings.TrimSpace(term)
	c.mu.Unlock()
	return c.Visible()
}

// Search returns the active filter.
func (c *AttendanceController) Search() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.search
}

// Visible returns roster students whose name contains the search term,
// ignoring case.
func (c *AttendanceController) Visible() []models.Student {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return FilterByName(c.roster, c.search)
}

// Mark sets the status for one student and flags the draft dirty.
func (c *AttendanceController) Mark(ctx context.Context, studentID string, status models.AttendanceStatus) (models.AttendanceDraft, error) {
	if !status.Valid() {
		return models.AttendanceDraft{}, appErrors.Clone(appErrors.ErrValidation, "invalid attendance status")
	}
	dirty := true
	return c.Update(ctx, studentID, models.AttendancePatch{Status: &status, Dirty: &dirty})
}

// SetNotes replaces the notes for one student and flags the draft dirty.
func (c *AttendanceController) SetNotes(ctx context.Context, studentID, notes string) (models.AttendanceDraft, error) {
	dirty := true
	return c.Update(ctx, studentID, models.AttendancePatch{Notes: &notes, Dirty: &dirty})
}

// Update merges patch over the student's draft.
func (c *AttendanceController) Update(ctx context.Context, studentID string, patch models.AttendancePatch) (models.AttendanceDraft, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return models.AttendanceDraft{}, appErrors.Clone(appErrors.ErrValidation, "invalid attendance status")
	}
	if err := c.ensureEnrolled(studentID); err != nil {
		return models.AttendanceDraft{}, err
	}
	return c.store.Mutate(ctx, studentID, patch.Apply)
}

// MarkAllPresent marks every visible student present.
func (c *AttendanceController) MarkAllPresent(ctx context.Context) (int, error) {
	return c.markVisible(ctx, models.AttendanceStatusPresent, true)
}

// MarkAllAbsent marks every visible student absent.
func (c *AttendanceController) MarkAllAbsent(ctx context.Context) (int, error) {
	return c.markVisible(ctx, models.AttendanceStatusAbsent, true)
}

// ClearAllMarks resets visible students to present without flagging them
// dirty. Records stay in storage; notes are kept.
func (c *AttendanceController) ClearAllMarks(ctx context.Context) (int, error) {
	return c.markVisible(ctx, models.AttendanceStatusPresent, false)
}

// Counts tallies drafts by status.
func (c *AttendanceController) Counts() models.AttendanceStats {
	var stats models.AttendanceStats
	snap := c.store.Snapshot()
	for _, record := range snap.Records {
		stats.Add(record.Status)
	}
	return stats
}

func (c *AttendanceController) markVisible(ctx context.Context, status models.AttendanceStatus, dirty bool) (int, error) {
	visible := c.Visible()
	if len(visible) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(visible))
	for _, student := range visible {
		keys = append(keys, student.ID)
	}
	patch := models.AttendancePatch{Status: &status, Dirty: &dirty}
	if _, err := c.store.MutateMany(ctx, keys, patch.Apply); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (c *AttendanceController) ensureEnrolled(studentID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return checkEnrolled(c.roster, studentID)
}

// FilterByName returns students whose full name contains term, ignoring case.
// An empty term matches everyone.
func FilterByName(roster []models.Student, term string) []models.Student {
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]models.Student, 0, len(roster))
	for _, student := range roster {
		if needle == "" || strings.Contains(strings.ToLower(student.FullName), needle) {
			out = append(out, student)
		}
	}
	return out
}

func checkEnrolled(roster []models.Student, studentID string) error {
	if strings.TrimSpace(studentID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student id required")
	}
	if len(roster) == 0 {
		return nil
	}
	for _, student := range roster {
		if student.ID == studentID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "student not enrolled in course")
}
