package models

import (
	"fmt"
	"time"
)

// Score bounds accepted at the edit boundary.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// GradeDraft is the locally held grade for one student in one course.
// A nil Score means ungraded, which is distinct from zero.
type GradeDraft struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
	IsDirty  bool     `json:"isDirty"`
}

// DefaultGradeDraft is the untouched record.
func DefaultGradeDraft() GradeDraft {
	return GradeDraft{}
}

// Dirty reports whether the draft awaits confirmation from the remote store.
func (d GradeDraft) Dirty() bool { return d.IsDirty }

// Clean returns the draft with the dirty flag cleared.
func (d GradeDraft) Clean() GradeDraft {
	d.IsDirty = false
	return d
}

// GradePatch is a partial update. ClearScore sets the score back to ungraded.
type GradePatch struct {
	Score      *float64
	ClearScore bool
	Feedback   *string
	Dirty      *bool
}

// Apply merges the patch over d. Score pointers are copied, never shared.
func (p GradePatch) Apply(d GradeDraft) GradeDraft {
	switch {
	case p.ClearScore:
		d.Score = nil
	case p.Score != nil:
		v := *p.Score
		d.Score = &v
	}
	if p.Feedback != nil {
		d.Feedback = *p.Feedback
	}
	if p.Dirty != nil {
		d.IsDirty = *p.Dirty
	}
	return d
}

// GradeRecord is the wire and storage shape of one grade row.
// The business key is (student_id, course_id).
type GradeRecord struct {
	ID        string    `db:"id" bson:"id" json:"id"`
	StudentID string    `db:"student_id" bson:"student_id" json:"student_id" validate:"required"`
	CourseID  string    `db:"course_id" bson:"course_id" json:"course_id" validate:"required"`
	Score     float64   `db:"score" bson:"score" json:"score" validate:"min=0,max=100"`
	Feedback  string    `db:"feedback" bson:"feedback" json:"feedback"`
	GradedBy  string    `db:"graded_by" bson:"graded_by" json:"graded_by" validate:"required"`
	GradedAt  time.Time `db:"graded_at" bson:"graded_at" json:"graded_at" validate:"required"`
}

// BusinessKey identifies the row independent of its surrogate id.
func (r GradeRecord) BusinessKey() string {
	return r.StudentID + "|" + r.CourseID
}

// Check validates a row read back from the remote store.
func (r GradeRecord) Check() error {
	if r.StudentID == "" || r.CourseID == "" {
		return fmt.Errorf("grade row %q missing key fields", r.ID)
	}
	if r.Score < MinScore || r.Score > MaxScore {
		return fmt.Errorf("grade row %q score %.2f out of range", r.ID, r.Score)
	}
	return nil
}
