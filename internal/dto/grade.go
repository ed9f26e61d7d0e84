package dto

import (
	"github.com/noah-isme/sma-entry-sync/internal/entry"
	"github.com/noah-isme/sma-entry-sync/internal/models"
)

// ValueRequest carries raw text typed into a score or feedback input.
type ValueRequest struct {
	Value string `json:"value" validate:"max=2000"`
}

// FocusRequest moves focus to a cell, as on a pointer click.
type FocusRequest struct {
	Row   *int   `json:"row" validate:"required,min=0"`
	Field string `json:"field" validate:"required,oneof=score feedback"`
}

// DeleteGradesRequest removes confirmed grade rows by id.
type DeleteGradesRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// GradeDraftResponse is returned after a score or feedback edit.
type GradeDraftResponse struct {
	StudentID string            `json:"student_id"`
	Applied   bool              `json:"applied"`
	Draft     models.GradeDraft `json:"draft"`
	Unsaved   int               `json:"unsaved"`
}

// KeyResponse reports navigator state after a key press and, for the save
// shortcut, the flush result.
type KeyResponse struct {
	Action entry.Action       `json:"action"`
	Cursor models.Cursor      `json:"cursor"`
	Flush  *models.SyncResult `json:"flush,omitempty"`
}

// DeleteGradesResponse reports removed rows.
type DeleteGradesResponse struct {
	Deleted int64 `json:"deleted"`
}

// GradeExportQuery selects the export format.
type GradeExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf CSV PDF"`
}
