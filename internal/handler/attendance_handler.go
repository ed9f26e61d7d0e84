package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-entry-sync/internal/dto"
	"github.com/noah-isme/sma-entry-sync/internal/models"
	"github.com/noah-isme/sma-entry-sync/internal/service"
	"github.com/noah-isme/sma-entry-sync/pkg/response"
)

type attendanceService interface {
	View(ctx context.Context, scope models.Scope) (*models.AttendanceView, error)
	Update(ctx context.Context, scope models.Scope, actor, studentID string, req dto.UpdateAttendanceRequest) (*dto.AttendanceDraftResponse, error)
	Search(ctx context.Context, scope models.Scope, term string) (*dto.SearchResponse, error)
	MarkAll(ctx context.Context, scope models.Scope, actor string, status models.AttendanceStatus) (*dto.BulkResponse, error)
	ClearMarks(ctx context.Context, scope models.Scope, actor string) (*dto.BulkResponse, error)
	ClearDrafts(ctx context.Context, scope models.Scope) error
	Flush(ctx context.Context, scope models.Scope, actor string) (*models.SyncResult, error)
	SetAutoSave(ctx context.Context, scope models.Scope, enabled bool) (bool, error)
	Stats(ctx context.Context, courseID string) (*models.AttendanceStats, error)
	Report(ctx context.Context, courseID, from, to string) (models.DailyAttendanceReport, error)
	History(ctx context.Context, courseID, studentID string) ([]models.AttendanceHistoryRow, error)
}

type attendanceExporter interface {
	AttendanceExport(ctx context.Context, courseID, from, to, format string) (*service.ExportFile, error)
}

// AttendanceHandler exposes attendance entry endpoints.
type AttendanceHandler struct {
	attendance attendanceService
	exports    attendanceExporter
	validate   *validator.Validate
}

// NewAttendanceHandler constructs handler.
func NewAttendanceHandler(attendance attendanceService, exports attendanceExporter, validate *validator.Validate) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, exports: exports, validate: newValidator(validate)}
}

// Register mounts the attendance routes.
func (h *AttendanceHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/attendance/:courseId")
	g.GET("/stats", h.Stats)
	g.GET("/report", h.Report)
	g.GET("/export", h.Export)
	g.GET("/students/:studentId/history", h.History)

	g.GET("/:date", h.View)
	g.PUT("/:date/students/:studentId", h.Update)
	g.POST("/:date/search", h.Search)
	g.POST("/:date/mark-all", h.MarkAll)
	g.POST("/:date/clear", h.ClearMarks)
	g.DELETE("/:date/drafts", h.ClearDrafts)
	g.POST("/:date/flush", h.Flush)
	g.PUT("/:date/autosave", h.AutoSave)
}

// View returns the merged roster view of a session.
func (h *AttendanceHandler) View(c *gin.Context) {
	view, err := h.attendance.View(c.Request.Context(), attendanceScope(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Update marks one student or edits their notes.
func (h *AttendanceHandler) Update(c *gin.Context) {
	var req dto.UpdateAttendanceRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}
	result, err := h.attendance.Update(c.Request.Context(), attendanceScope(c), actorFromContext(c), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Search sets the roster name filter.
func (h *AttendanceHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}
	result, err := h.attendance.Search(c.Request.Context(), attendanceScope(c), req.Term)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// MarkAll marks every visible student present or absent.
func (h *AttendanceHandler) MarkAll(c *gin.Context) {
	var req dto.MarkAllRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}
	result, err := h.attendance.MarkAll(c.Request.Context(), attendanceScope(c), actorFromContext(c), models.AttendanceStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// ClearMarks resets visible students to present without flagging them dirty.
func (h *AttendanceHandler) ClearMarks(c *gin.Context) {
	result, err := h.attendance.ClearMarks(c.Request.Context(), attendanceScope(c), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// ClearDrafts discards the session's drafts.
func (h *AttendanceHandler) ClearDrafts(c *gin.Context) {
	if err := h.attendance.ClearDrafts(c.Request.Context(), attendanceScope(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Flush pushes dirty drafts to the remote store.
func (h *AttendanceHandler) Flush(c *gin.Context) {
	result, err := h.attendance.Flush(c.Request.Context(), attendanceScope(c), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// AutoSave toggles automatic flushing.
func (h *AttendanceHandler) AutoSave(c *gin.Context) {
	var req dto.AutoSaveRequest
	if !bindJSON(c, h.validate, &req) {
		return
	}
	enabled, err := h.attendance.SetAutoSave(c.Request.Context(), attendanceScope(c), *req.Enabled)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"enabled": enabled})
}

// Stats returns course-wide tallies.
func (h *AttendanceHandler) Stats(c *gin.Context) {
	stats, err := h.attendance.Stats(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// Report returns per-day tallies.
func (h *AttendanceHandler) Report(c *gin.Context) {
	var q dto.AttendanceReportQuery
	if !bindQuery(c, h.validate, &q) {
		return
	}
	report, err := h.attendance.Report(c.Request.Context(), c.Param("courseId"), q.From, q.To)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report, map[string]interface{}{"from": q.From, "to": q.To})
}

// History lists one student's sessions.
func (h *AttendanceHandler) History(c *gin.Context) {
	rows, err := h.attendance.History(c.Request.Context(), c.Param("courseId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, map[string]interface{}{"count": len(rows)})
}

// Export streams confirmed attendance as CSV or PDF.
func (h *AttendanceHandler) Export(c *gin.Context) {
	var q dto.AttendanceReportQuery
	if !bindQuery(c, h.validate, &q) {
		return
	}
	file, err := h.exports.AttendanceExport(c.Request.Context(), c.Param("courseId"), q.From, q.To, q.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
