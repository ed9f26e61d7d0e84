package models

import (
	"fmt"
	"strings"
	"time"
)

// Workflow names an entry workflow with its own draft collections.
type Workflow string

const (
	WorkflowAttendance Workflow = "attendance"
	WorkflowGrades     Workflow = "grade-entry"
)

// SessionDateLayout is the wire format of attendance session dates.
const SessionDateLayout = "2006-01-02"

// Scope partitions draft collections. Attendance scopes carry a session date;
// grade scopes are per course.
type Scope struct {
	Workflow    Workflow `json:"workflow"`
	CourseID    string   `json:"course_id"`
	SessionDate string   `json:"session_date,omitempty"`
}

// AttendanceScope builds the scope for one course session.
func AttendanceScope(courseID, sessionDate string) Scope {
	return Scope{Workflow: WorkflowAttendance, CourseID: courseID, SessionDate: sessionDate}
}

// GradeScope builds the scope for a course gradebook.
func GradeScope(courseID string) Scope {
	return Scope{Workflow: WorkflowGrades, CourseID: courseID}
}

// CacheKey derives the durable storage key: "<workflow>-<courseId>[-<date>]".
func (s Scope) CacheKey() string {
	if s.SessionDate == "" {
		return fmt.Sprintf("%s-%s", s.Workflow, s.CourseID)
	}
	return fmt.Sprintf("%s-%s-%s", s.Workflow, s.CourseID, s.SessionDate)
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	return s.CacheKey()
}

// Validate checks the scope is addressable.
func (s Scope) Validate() error {
	if strings.TrimSpace(s.CourseID) == "" {
		return fmt.Errorf("course id required")
	}
	switch s.Workflow {
	case WorkflowAttendance:
		if s.SessionDate == "" {
			return fmt.Errorf("session date required")
		}
		if _, err := time.Parse(SessionDateLayout, s.SessionDate); err != nil {
			return fmt.Errorf("session date must be YYYY-MM-DD")
		}
	case WorkflowGrades:
		if s.SessionDate != "" {
			return fmt.Errorf("grade scopes carry no session date")
		}
	default:
		return fmt.Errorf("unknown workflow %q", s.Workflow)
	}
	return nil
}
