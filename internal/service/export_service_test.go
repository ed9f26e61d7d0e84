package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-entry-sync/internal/models"
	appErrors "github.com/noah-isme/sma-entry-sync/pkg/errors"
)

func newExportServiceForTest() (*ExportService, *attendanceRepoStub, *gradeRepoStub, *rosterStub) {
	attendance := newAttendanceRepoStub(
		models.AttendanceRecord{ID: "r1", StudentID: "s1", CourseID: "c1", SessionDate: "2024-02-01", Status: models.AttendanceStatusPresent, RecordedBy: "t1"},
		models.AttendanceRecord{ID: "r2", StudentID: "s2", CourseID: "c1", SessionDate: "2024-02-05", Status: models.AttendanceStatusAbsent, Notes: "flu, fever", RecordedBy: "t1"},
	)
	grades := newGradeRepoStub(models.GradeRecord{ID: "g1", StudentID: "s3", CourseID: "c1", Score: 92.5, Feedback: "great", GradedBy: "t2"})
	roster := classRoster()
	svc := NewExportService(attendance, grades, roster, nil)
	svc.now = func() time.Time { return time.Date(2024, 2, 6, 9, 30, 0, 0, time.UTC) }
	return svc, attendance, grades, roster
}

func TestAttendanceExportCSV(t *testing.T) {
	svc, _, _, _ := newExportServiceForTest()

	file, err := svc.AttendanceExport(context.Background(), "c1", "2024-02-01", "2024-02-03", "csv")
	require.NoError(t, err)
	assert.Equal(t, "attendance_c1_20240206_093000.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)

	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date,Student ID,Student,Status,Notes,Recorded By", lines[0])
	assert.Equal(t, "2024-02-01,s1,Ada Lovelace,present,,t1", lines[1])
}

func TestAttendanceExportQuotesNotes(t *testing.T) {
	svc, _, _, _ := newExportServiceForTest()

	file, err := svc.AttendanceExport(context.Background(), "c1", "", "", "")
	require.NoError(t, err)
	assert.Contains(t, string(file.Body), `"flu, fever"`)
}

func TestGradeExportPDF(t *testing.T) {
	svc, _, _, _ := newExportServiceForTest()

	file, err := svc.GradeExport(context.Background(), "c1", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".pdf"))
	assert.True(t, strings.HasPrefix(string(file.Body), "%PDF"))
}

func TestGradeExportCSVFormatsScores(t *testing.T) {
	svc, _, _, _ := newExportServiceForTest()

	file, err := svc.GradeExport(context.Background(), "c1", "csv")
	require.NoError(t, err)
	assert.Contains(t, string(file.Body), "s3,Grace Hopper,92.5,great,t2")
}

func TestExportValidation(t *testing.T) {
	svc, _, _, _ := newExportServiceForTest()
	ctx := context.Background()

	_, err := svc.AttendanceExport(ctx, "c1", "", "", "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.AttendanceExport(ctx, "c1", "2024-03-01", "2024-02-01", "csv")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.GradeExport(ctx, " ", "csv")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestExportRemoteFailures(t *testing.T) {
	svc, attendance, _, roster := newExportServiceForTest()
	ctx := context.Background()

	roster.err = errors.New("roster offline")
	file, err := svc.GradeExport(ctx, "c1", "csv")
	require.NoError(t, err)
	assert.Contains(t, string(file.Body), "s3,,92.5")

	attendance.err = errors.New("db offline")
	_, err = svc.AttendanceExport(ctx, "c1", "", "", "csv")
	assert.ErrorIs(t, err, appErrors.ErrRemoteUnavailable)
}
