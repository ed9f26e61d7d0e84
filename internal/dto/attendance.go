package dto

import "github.com/noah-isme/sma-entry-sync/internal/models"

// UpdateAttendanceRequest edits one student's mark. Omitted fields are kept.
type UpdateAttendanceRequest struct {
	Status *string `json:"status" validate:"omitempty,oneof=present absent late excused"`
	Notes  *string `json:"notes" validate:"omitempty,max=500"`
}

// SearchRequest sets the roster name filter.
type SearchRequest struct {
	Term string `json:"term" validate:"max=100"`
}

// MarkAllRequest applies one status to every visible student.
type MarkAllRequest struct {
	Status string `json:"status" validate:"required,oneof=present absent"`
}

// AutoSaveRequest toggles automatic flushing for a scope.
type AutoSaveRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// AttendanceDraftResponse is returned after a single edit.
type AttendanceDraftResponse struct {
	StudentID string                 `json:"student_id"`
	Draft     models.AttendanceDraft `json:"draft"`
	Unsaved   int                    `json:"unsaved"`
}

// BulkResponse reports how many drafts a bulk action touched.
type BulkResponse struct {
	Affected int `json:"affected"`
	Unsaved  int `json:"unsaved"`
}

// SearchResponse lists students matching the filter.
type SearchResponse struct {
	Term     string           `json:"term"`
	Students []models.Student `json:"students"`
}

// AttendanceReportQuery bounds reports and exports by session date.
type AttendanceReportQuery struct {
	From   string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Format string `form:"format" validate:"omitempty,oneof=csv pdf CSV PDF"`
}
