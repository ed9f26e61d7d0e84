package models

import (
	"fmt"
	"time"
)

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceDraft is the locally held mark for one student in one session.
type AttendanceDraft struct {
	Status  AttendanceStatus `json:"status"`
	Notes   string           `json:"notes"`
	IsDirty bool             `json:"isDirty"`
}

// DefaultAttendanceDraft is the untouched record: present, no notes, clean.
func DefaultAttendanceDraft() AttendanceDraft {
	return AttendanceDraft{Status: AttendanceStatusPresent}
}

// Dirty reports whether the draft awaits confirmation from the remote store.
func (d AttendanceDraft) Dirty() bool { return d.IsDirty }

// Clean returns the draft with the dirty flag cleared.
func (d AttendanceDraft) Clean() AttendanceDraft {
	d.IsDirty = false
	return d
}

// Check rejects drafts whose status is not a supported value.
func (d AttendanceDraft) Check() error {
	if !d.Status.Valid() {
		return fmt.Errorf("unknown attendance status %q", d.Status)
	}
	return nil
}

// AttendancePatch is a partial update; nil fields are left untouched.
type AttendancePatch struct {
	Status *AttendanceStatus
	Notes  *string
	Dirty  *bool
}

// Apply merges the patch over d.
func (p AttendancePatch) Apply(d AttendanceDraft) AttendanceDraft {
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if p.Dirty != nil {
		d.IsDirty = *p.Dirty
	}
	return d
}

// AttendanceRecord is the wire and storage shape of one attendance row.
// The business key is (student_id, course_id, session_date).
type AttendanceRecord struct {
	ID          string           `db:"id" bson:"id" json:"id"`
	StudentID   string           `db:"student_id" bson:"student_id" json:"student_id" validate:"required"`
	CourseID    string           `db:"course_id" bson:"course_id" json:"course_id" validate:"required"`
	SessionDate string           `db:"session_date" bson:"session_date" json:"session_date" validate:"required,datetime=2006-01-02"`
	Status      AttendanceStatus `db:"status" bson:"status" json:"status" validate:"required,oneof=present absent late excused"`
	Notes       string           `db:"notes" bson:"notes" json:"notes"`
	RecordedBy  string           `db:"recorded_by" bson:"recorded_by" json:"recorded_by" validate:"required"`
	RecordedAt  time.Time        `db:"recorded_at" bson:"recorded_at" json:"recorded_at" validate:"required"`
}

// BusinessKey identifies the row independent of its surrogate id.
func (r AttendanceRecord) BusinessKey() string {
	return r.StudentID + "|" + r.CourseID + "|" + r.SessionDate
}

// Check validates a row read back from the remote store.
func (r AttendanceRecord) Check() error {
	if r.StudentID == "" || r.CourseID == "" || r.SessionDate == "" {
		return fmt.Errorf("attendance row %q missing key fields", r.ID)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("attendance row %q has unknown status %q", r.ID, r.Status)
	}
	return nil
}

// AttendanceStats tallies statuses across a course.
type AttendanceStats struct {
	TotalRecords int `db:"total" json:"total_records"`
	Present      int `db:"present" json:"present"`
	Absent       int `db:"absent" json:"absent"`
	Late         int `db:"late" json:"late"`
	Excused      int `db:"excused" json:"excused"`
}

// Add counts one status.
func (s *AttendanceStats) Add(status AttendanceStatus) {
	s.TotalRecords++
	switch status {
	case AttendanceStatusPresent:
		s.Present++
	case AttendanceStatusAbsent:
		s.Absent++
	case AttendanceStatusLate:
		s.Late++
	case AttendanceStatusExcused:
		s.Excused++
	}
}

// DailyAttendanceReport maps session dates to their tallies.
type DailyAttendanceReport map[string]AttendanceStats

// AttendanceHistoryRow is one past session for a student.
type AttendanceHistoryRow struct {
	SessionDate string           `db:"session_date" json:"session_date"`
	Status      AttendanceStatus `db:"status" json:"status"`
	Notes       string           `db:"notes" json:"notes"`
}
