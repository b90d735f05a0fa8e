package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tams-dev/tams-api/internal/models"
)

// ExamRepository provides persistence for exams and their instructors.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs the repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

const examColumns = `id, course_code, course_name, date, duration_minutes, department, created_at, updated_at`

// Create inserts an exam together with its instructor associations.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam, instructorIDs []string) (err error) {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exam.CreatedAt = now
	exam.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exam transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertQuery = `INSERT INTO exams (id, course_code, course_name, date, duration_minutes, department, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, insertQuery,
		exam.ID, exam.CourseCode, exam.CourseName, exam.Date, exam.DurationMinutes, exam.Department, exam.CreatedAt, exam.UpdatedAt); err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	const linkQuery = `INSERT INTO exam_instructors (exam_id, instructor_id) VALUES ($1, $2)`
	for _, instructorID := range instructorIDs {
		if _, err = tx.ExecContext(ctx, linkQuery, exam.ID, instructorID); err != nil {
			return fmt.Errorf("link exam instructor: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit exam: %w", err)
	}
	return nil
}

// GetByID loads a single exam.
func (r *ExamRepository) GetByID(ctx context.Context, id string) (*models.Exam, error) {
	var exam models.Exam
	query := fmt.Sprintf(`SELECT %s FROM exams WHERE id = $1`, examColumns)
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// List returns exams matching the filter, soonest first.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error) {
	where := strings.Builder{}
	where.WriteString(" WHERE 1=1")
	args := []interface{}{}

	if filter.Department != "" {
		args = append(args, filter.Department)
		fmt.Fprintf(&where, " AND department = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		fmt.Fprintf(&where, " AND date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		fmt.Fprintf(&where, " AND date <= $%d", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM exams%s ORDER BY date ASC LIMIT %d OFFSET %d`,
		examColumns, where.String(), pageSize, (page-1)*pageSize)

	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// ListInstructors returns the instructors associated with an exam.
func (r *ExamRepository) ListInstructors(ctx context.Context, examID string) ([]models.User, error) {
	const query = `
SELECT u.id, u.email, u.password_hash, u.full_name, u.role, u.department, u.active, u.last_login, u.created_at, u.updated_at
FROM users u
JOIN exam_instructors ei ON ei.instructor_id = u.id
WHERE ei.exam_id = $1
ORDER BY u.full_name ASC`
	var instructors []models.User
	if err := r.db.SelectContext(ctx, &instructors, query, examID); err != nil {
		return nil, fmt.Errorf("list exam instructors: %w", err)
	}
	return instructors, nil
}

// CountUpcoming returns the number of exams from today onward, optionally
// scoped to a department.
func (r *ExamRepository) CountUpcoming(ctx context.Context, department string) (int, error) {
	var count int
	if department == "" {
		err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM exams WHERE date >= now()`)
		return count, err
	}
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM exams WHERE date >= now() AND department = $1`, department)
	return count, err
}
