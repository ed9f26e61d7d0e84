package syncer

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-entry-sync/internal/models"
)

// AttendanceAdapter maps attendance drafts to attendance rows. Every draft is
// valid; unknown statuses are dropped when a collection is loaded.
type AttendanceAdapter struct{}

func (AttendanceAdapter) Valid(models.AttendanceDraft) bool {
	return true
}

func (AttendanceAdapter) ToItem(scope models.Scope, studentID string, d models.AttendanceDraft, actor string, at time.Time) models.AttendanceRecord {
	return models.AttendanceRecord{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		CourseID:    scope.CourseID,
		SessionDate: scope.SessionDate,
		Status:      d.Status,
		Notes:       d.Notes,
		RecordedBy:  actor,
		RecordedAt:  at,
	}
}

// GradeAdapter maps grade drafts to grade rows. Ungraded drafts are never sent.
type GradeAdapter struct{}

func (GradeAdapter) Valid(d models.GradeDraft) bool {
	return d.Score != nil
}

func (GradeAdapter) ToItem(scope models.Scope, studentID string, d models.GradeDraft, actor string, at time.Time) models.GradeRecord {
	return models.GradeRecord{
		ID:        uuid.NewString(),
		StudentID: studentID,
		CourseID:  scope.CourseID,
		Score:     *d.Score,
		Feedback:  d.Feedback,
		GradedBy:  actor,
		GradedAt:  at,
	}
}

// AttendanceEngine flushes attendance sessions.
type AttendanceEngine = Engine[models.AttendanceDraft, models.AttendanceRecord]

// GradeEngine flushes course gradebooks.
type GradeEngine = Engine[models.GradeDraft, models.GradeRecord]

// NewAttendanceEngine wires the attendance adapter to remote.
func NewAttendanceEngine(remote Remote[models.AttendanceRecord], opts ...Option) *AttendanceEngine {
	return NewEngine[models.AttendanceDraft, models.AttendanceRecord](AttendanceAdapter{}, remote, opts...)
}

// NewGradeEngine wires the grade adapter to remote.
func NewGradeEngine(remote Remote[models.GradeRecord], opts ...Option) *GradeEngine {
	return NewEngine[models.GradeDraft, models.GradeRecord](GradeAdapter{}, remote, opts...)
}
