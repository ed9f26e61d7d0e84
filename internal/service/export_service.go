package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
	"github.com/noah-isme/sma-entry-sync/pkg/export"
)

type attendanceRangeReader interface {
	ListRange(ctx context.Context, courseID, from, to string) ([]models.AttendanceRecord, error)
}

type gradeLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.GradeRecord, error)
}

// ExportFile is a rendered export ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders confirmed attendance and grades as CSV or PDF.
type ExportService struct {
	attendance attendanceRangeReader
	grades     gradeLister
	roster     rosterLister
	logger     *zap.Logger
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(attendance attendanceRangeReader, grades gradeLister, roster rosterLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		attendance: attendance,
		grades:     grades,
		roster:     roster,
		logger:     logger,
		now:        time.Now,
	}
}

// AttendanceExport renders the course's attendance between two session dates.
// Empty bounds are open.
func (s *ExportService) AttendanceExport(ctx context.Context, courseID, from, to, format string) (*ExportFile, error) {
	f, err := s.prepare(courseID, format)
	if err != nil {
		return nil, err
	}
	if from != "" && to != "" && from > to {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	rows, err := s.attendance.ListRange(ctx, courseID, from, to)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to load attendance")
	}
	names := s.names(ctx, courseID)

	data := export.Dataset{
		Title:    fmt.Sprintf("Attendance %s", courseID),
		Subtitle: rangeLabel(from, to),
		Headers:  []string{"Date", "Student ID", "Student", "Status", "Notes", "Recorded By"},
		Rows:     make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, []string{
			row.SessionDate,
			row.StudentID,
			names[row.StudentID],
			string(row.Status),
			row.Notes,
			row.RecordedBy,
		})
	}
	return s.render(f, models.WorkflowAttendance, courseID, data)
}

// GradeExport renders the course's confirmed grades.
func (s *ExportService) GradeExport(ctx context.Context, courseID, format string) (*ExportFile, error) {
	f, err := s.prepare(courseID, format)
	if err != nil {
		return nil, err
	}
	rows, err := s.grades.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to load grades")
	}
	names := s.names(ctx, courseID)

	data := export.Dataset{
		Title:   fmt.Sprintf("Grades %s", courseID),
		Headers: []string{"Student ID", "Student", "Score", "Feedback", "Graded By"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, []string{
			row.StudentID,
			names[row.StudentID],
			strconv.FormatFloat(row.Score, 'f', -1, 64),
			row.Feedback,
			row.GradedBy,
		})
	}
	return s.render(f, models.WorkflowGrades, courseID, data)
}

func (s *ExportService) prepare(courseID, format string) (export.Format, error) {
	if strings.TrimSpace(courseID) == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "course id required")
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return f, nil
}

// names maps student ids to display names. A roster failure leaves names blank.
func (s *ExportService) names(ctx context.Context, courseID string) map[string]string {
	out := make(map[string]string)
	students, err := s.roster.List(ctx, courseID)
	if err != nil {
		s.logger.Warn("export roster lookup failed", zap.String("course_id", courseID), zap.Error(err))
		return out
	}
	for _, st := range students {
		out[st.ID] = st.FullName
	}
	return out
}

func (s *ExportService) render(f export.Format, workflow models.Workflow, courseID string, data export.Dataset) (*ExportFile, error) {
	body, err := export.Render(f, data)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to render export")
	}
	filename := fmt.Sprintf("%s_%s_%s.%s", workflow, sanitizeFilename(courseID), s.now().UTC().Format("20060102_150405"), f.Extension())
	s.logger.Info("export rendered", zap.String("file", filename), zap.Int("rows", len(data.Rows)))
	return &ExportFile{Filename: filename, ContentType: f.ContentType(), Body: body}, nil
}

func rangeLabel(from, to string) string {
	switch {
	case from == "" && to == "":
		return "All sessions"
	case from == "":
		return "Until " + to
	case to == "":
		return "From " + from
	default:
		return from + " to " + to
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
