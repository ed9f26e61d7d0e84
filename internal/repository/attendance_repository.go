package repository

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-entry-sync/internal/models"
)

const attendanceColumns = `id, student_id, course_id, to_char(session_date, 'YYYY-MM-DD') AS session_date, status, notes, recorded_by, recorded_at`

// AttendanceRepository persists attendance rows in Postgres.
type AttendanceRepository struct {
	db       *sqlx.DB
	validate *validator.Validate
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *sqlx.DB, validate *validator.Validate) *AttendanceRepository {
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceRepository{db: db, validate: validate}
}

// BatchUpsert writes every record in one transaction keyed on
// (student_id, course_id, session_date) and returns the stored row ids.
func (r *AttendanceRepository) BatchUpsert(ctx context.Context, records []models.AttendanceRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if err := validateItems(r.validate, records); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance batch: %w", err)
	}
	const query = `INSERT INTO attendance (id, student_id, course_id, session_date, status, notes, recorded_by, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, course_id, session_date)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, recorded_by = EXCLUDED.recorded_by, recorded_at = EXCLUDED.recorded_at
RETURNING id`
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		var id string
		if err := tx.QueryRowxContext(ctx, query, rec.ID, rec.StudentID, rec.CourseID, rec.SessionDate, rec.Status, rec.Notes, rec.RecordedBy, rec.RecordedAt).Scan(&id); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, fmt.Errorf("upsert attendance %s: %w", rec.BusinessKey(), err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance batch: %w", err)
	}
	return ids, nil
}

// ListBySession returns the confirmed rows for one course session.
func (r *AttendanceRepository) ListBySession(ctx context.Context, courseID, sessionDate string) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE course_id = $1 AND session_date = $2 ORDER BY student_id`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, courseID, sessionDate); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return checkRows(rows)
}

// ListRange returns rows for a course between two dates inclusive. Empty
// bounds are open.
func (r *AttendanceRepository) ListRange(ctx context.Context, courseID, from, to string) ([]models.AttendanceRecord, error) {
	where, args := rangeClause(courseID, from, to)
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE ` + where + ` ORDER BY session_date, student_id`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance range: %w", err)
	}
	return checkRows(rows)
}

// Stats tallies every attendance row of a course by status.
func (r *AttendanceRepository) Stats(ctx context.Context, courseID string) (*models.AttendanceStats, error) {
	const query = `SELECT COUNT(*) AS total,
COUNT(*) FILTER (WHERE status = 'present') AS present,
COUNT(*) FILTER (WHERE status = 'absent') AS absent,
COUNT(*) FILTER (WHERE status = 'late') AS late,
COUNT(*) FILTER (WHERE status = 'excused') AS excused
FROM attendance WHERE course_id = $1`
	var stats models.AttendanceStats
	if err := r.db.GetContext(ctx, &stats, query, courseID); err != nil {
		return nil, fmt.Errorf("attendance stats: %w", err)
	}
	return &stats, nil
}

type dailyCount struct {
	SessionDate string                  `db:"session_date"`
	Status      models.AttendanceStatus `db:"status"`
	Count       int                     `db:"count"`
}

// DailyReport groups a course's rows by session date and status.
func (r *AttendanceRepository) DailyReport(ctx context.Context, courseID, from, to string) (models.DailyAttendanceReport, error) {
	where, args := rangeClause(courseID, from, to)
	query := `SELECT to_char(session_date, 'YYYY-MM-DD') AS session_date, status, COUNT(*) AS count FROM attendance WHERE ` + where + ` GROUP BY session_date, status ORDER BY session_date`
	var counts []dailyCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("attendance daily report: %w", err)
	}
	report := make(models.DailyAttendanceReport)
	for _, c := range counts {
		if !c.Status.Valid() {
			return nil, fmt.Errorf("attendance daily report: unknown status %q", c.Status)
		}
		day := report[c.SessionDate]
		for i := 0; i < c.Count; i++ {
			day.Add(c.Status)
		}
		report[c.SessionDate] = day
	}
	return report, nil
}

// History lists a student's sessions in a course, newest first.
func (r *AttendanceRepository) History(ctx context.Context, courseID, studentID string) ([]models.AttendanceHistoryRow, error) {
	const query = `SELECT to_char(session_date, 'YYYY-MM-DD') AS session_date, status, notes FROM attendance
WHERE course_id = $1 AND student_id = $2 ORDER BY session_date DESC`
	var rows []models.AttendanceHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID, studentID); err != nil {
		return nil, fmt.Errorf("attendance history: %w", err)
	}
	for _, row := range rows {
		if !row.Status.Valid() {
			return nil, fmt.Errorf("attendance history: unknown status %q", row.Status)
		}
	}
	return rows, nil
}

func rangeClause(courseID, from, to string) (string, []interface{}) {
	where := "course_id = $1"
	args := []interface{}{courseID}
	if from != "" {
		args = append(args, from)
		where += fmt.Sprintf(" AND session_date >= $%d", len(args))
	}
	if to != "" {
		args = append(args, to)
		where += fmt.Sprintf(" AND session_date <= $%d", len(args))
	}
	return where, args
}
