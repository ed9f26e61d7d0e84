package repository

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-entry-sync/internal/models"
)

// GradeRepository handles grade persistence.
type GradeRepository struct {
	db       *sqlx.DB
	validate *validator.Validate
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB, validate *validator.Validate) *GradeRepository {
	if validate == nil {
		validate = validator.New()
	}
	return &GradeRepository{db: db, validate: validate}
}

// BatchUpsert inserts or updates grades in a transaction keyed on (student_id, course_id).
func (r *GradeRepository) BatchUpsert(ctx context.Context, grades []models.GradeRecord) ([]string, error) {
	if len(grades) == 0 {
		return nil, nil
	}
	if err := validateItems(r.validate, grades); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin grade batch: %w", err)
	}
	const query = `INSERT INTO grades (id, student_id, course_id, score, feedback, graded_by, graded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (student_id, course_id)
DO UPDATE SET score = EXCLUDED.score, feedback = EXCLUDED.feedback, graded_by = EXCLUDED.graded_by, graded_at = EXCLUDED.graded_at
RETURNING id`
	ids := make([]string, 0, len(grades))
	for _, g := range grades {
		var id string
		if err := tx.QueryRowxContext(ctx, query, g.ID, g.StudentID, g.CourseID, g.Score, g.Feedback, g.GradedBy, g.GradedAt).Scan(&id); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, fmt.Errorf("upsert grade %s: %w", g.BusinessKey(), err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grades: %w", err)
	}
	return ids, nil
}

// ListByCourse returns the confirmed grades of a course.
func (r *GradeRepository) ListByCourse(ctx context.Context, courseID string) ([]models.GradeRecord, error) {
	const query = `SELECT id, student_id, course_id, score, feedback, graded_by, graded_at FROM grades WHERE course_id = $1 ORDER BY student_id`
	var grades []models.GradeRecord
	if err := r.db.SelectContext(ctx, &grades, query, courseID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return checkRows(grades)
}

// DeleteByIDs removes grades by id and reports how many rows went away.
func (r *GradeRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM grades WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build grade delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete grades: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete grades rows affected: %w", err)
	}
	return n, nil
}
