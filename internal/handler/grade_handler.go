package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-entry-sync/internal/dto"
	"github.com/noah-isme/sma-entry-sync/internal/entry"
	"github.com/noah-isme/sma-entry-sync/internal/models"
	"github.com/noah-isme/sma-entry-sync/internal/service"
	"github.com/noah-isme/sma-entry-sync/pkg/response"
)

type gradeService interface {
	View(ctx context.Context, courseID string) (*models.GradeView, error)
	SetScore(ctx context.Context, courseID, actor, studentID, raw string) (*dto.GradeDraftResponse, error)
	SetFeedback(ctx context.Context, courseID, actor, studentID, feedback string) (*dto.GradeDraftResponse, error)
	HandleKey(ctx context.Context, courseID, actor string, key entry.Key) (*dto.KeyResponse, error)
	Focus(ctx context.Context, courseID string, row int, field entry.Field) (models.Cursor, error)
	Flush(ctx context.Context, courseID, actor string) (*models.SyncResult, error)
	SetAutoSave(ctx context.Context, courseID string, enabled bool) (bool, error)
	ClearDrafts(ctx context.Context, courseID string) error
	DeleteGrades(ctx context.Context, ids []string) (int64, error)
}

type gradeExporter interface {
	GradeExport(ctx context.Context, courseID, format string) (*service.ExportFile, error)
}

// GradeHandler exposes keyboard-driven grade entry endpoints.
type GradeHandler struct {
	grades   gradeService
	exports  gradeExporter
	validate *validator.Validate
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades gradeService, exports gradeExporter, validate *validator.Validate) *GradeHandler {
	return &GradeHandler{grades: grades, exports: exports, validate: newValidator(validate)}
}

// Register mounts the grade routes.
func (h *GradeHandler) Register(rg *gin.RouterGroup) {
	rg.DELETE("/grades", h.Delete)

	g := rg.Group("/grades/:courseId")
	g.GET("", h.View)
	g.PUT("/students/:studentId/score", h.Score)
	g.PUT("/students/:studentId/feedback", h.Feedback)
	g.POST("/keys", h.Key)
	g.POST("/focus", h.Focus)
	g.POST("/flush", h.Flush)
	g.PUT("/autosave", h.AutoSave)
	g.DELETE("/drafts", h.ClearDrafts)
	g.GET("/export", h.Export)
}

// View returns the gradebook with the focus cursor.
func (h *GradeHandler) View(c *gin.Context) {
	view, err := h.grades.View(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Score applies raw score input. Rejected input answers 200 with applied=false.
func (h *GradeHandler) Score(c *gin.Context) {
	var req dto.ValueRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}
	result, err := h.grades.SetScore(c.Request.Context(), c.Param("courseId"), actorFromContext(c), c.Param("studentId"), req.Value)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Feedback replaces a student's feedback.
func (h *GradeHandler) Feedback(c *gin.Context) {
	var req dto.ValueRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}
	result, err := h.grades.SetFeedback(c.Request.Context(), c.Param("courseId"), actorFromContext(c), c.Param("studentId"), req.Value)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Key feeds one key press to the navigator.
func (h *GradeHandler) Key(c *gin.Context) {
	var key entry.Key
	if !bindJSON(c, h.validate, &key) {
		return
	}
	result, err := h.grades.HandleKey(c.Request.Context(), c.Param("courseId"), actorFromContext(c), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Focus moves the cursor to a clicked cell.
func (h *GradeHandler) Focus(c *gin.Context) {
	var req dto.FocusRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}
	cursor, err := h.grades.Focus(c.Request.Context(), c.Param("courseId"), *req.Row, entry.Field(req.Field))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cursor)
}

// Flush pushes graded dirty drafts to the remote store.
func (h *GradeHandler) Flush(c *gin.Context) {
	result, err := h.grades.Flush(c.Request.Context(), c.Param("courseId"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// AutoSave toggles automatic flushing.
func (h *GradeHandler) AutoSave(c *gin.Context) {
	var req dto.AutoSaveRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}
	enabled, err := h.grades.SetAutoSave(c.Request.Context(), c.Param("courseId"), *req.Enabled)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"enabled": enabled})
}

// ClearDrafts discards the course's drafts.
func (h *GradeHandler) ClearDrafts(c *gin.Context) {
	if err := h.grades.ClearDrafts(c.Request.Context(), c.Param("courseId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete removes confirmed grade rows.
func (h *GradeHandler) Delete(c *gin.Context) {
	var req dto.DeleteGradesRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}
	n, err := h.grades.DeleteGrades(c.Request.Context(), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.DeleteGradesResponse{Deleted: n})
}

// Export streams confirmed grades as CSV or PDF.
func (h *GradeHandler) Export(c *gin.Context) {
	var q dto.GradeExportQuery
	if !bindQuery(c, h.validate, &q) {
		return
	}
	file, err := h.exports.GradeExport(c.Request.Context(), c.Param("courseId"), q.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
