package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-entry-sync/internal/models"
)

// RosterRepository reads course enrollment rosters.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListByCourse returns enrolled students ordered by name, then id.
func (r *RosterRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Student, error) {
	const query = `SELECT s.id, s.full_name, COALESCE(s.email, '') AS email
FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.course_id = $1
ORDER BY s.full_name, s.id`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return checkRows(students)
}
