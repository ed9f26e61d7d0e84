package models

// AttendanceViewRow merges roster, remote state and local draft for one student.
type AttendanceViewRow struct {
	StudentID   string           `json:"student_id"`
	StudentName string           `json:"student_name"`
	Status      AttendanceStatus `json:"status"`
	Notes       string           `json:"notes"`
	Dirty       bool             `json:"dirty"`
	Persisted   bool             `json:"persisted"`
}

// AttendanceView is the read model served for one session.
type AttendanceView struct {
	Scope           Scope               `json:"scope"`
	Rows            []AttendanceViewRow `json:"rows"`
	Unsaved         int                 `json:"unsaved"`
	AutoSaveEnabled bool                `json:"auto_save_enabled"`
	Search          string              `json:"search,omitempty"`
	Counts          AttendanceStats     `json:"counts"`
	SyncInFlight    bool                `json:"sync_in_flight"`
}

// GradeViewRow merges roster, remote state and local draft for one student.
type GradeViewRow struct {
	StudentID   string   `json:"student_id"`
	StudentName string   `json:"student_name"`
	Score       *float64 `json:"score"`
	Feedback    string   `json:"feedback"`
	Dirty       bool     `json:"dirty"`
	Persisted   bool     `json:"persisted"`
}

// GradeView is the read model served for one gradebook.
type GradeView struct {
	Scope           Scope          `json:"scope"`
	Rows            []GradeViewRow `json:"rows"`
	Unsaved         int            `json:"unsaved"`
	AutoSaveEnabled bool           `json:"auto_save_enabled"`
	Cursor          Cursor         `json:"cursor"`
	SyncInFlight    bool           `json:"sync_in_flight"`
}

// Cursor reports the keyboard focus of a grade entry session.
type Cursor struct {
	Row       int    `json:"row"`
	Field     string `json:"field"`
	StudentID string `json:"student_id,omitempty"`
}

// SyncResult is returned by every flush.
type SyncResult struct {
	Saved int      `json:"saved"`
	IDs   []string `json:"ids,omitempty"`
}
