package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tams-dev/tams-api/internal/dto"
	"github.com/tams-dev/tams-api/internal/models"
)

// Sentinel errors surfaced by assignment persistence. Services translate
// them into API-level conflicts.
var (
	ErrDuplicateActiveAssignment = errors.New("active assignment already exists for exam and ta")
	ErrInvalidTransition         = errors.New("assignment status does not allow this transition")
)

const pqUniqueViolation = "23505"

// ProctoringRepository provides persistence for proctoring assignments.
type ProctoringRepository struct {
	db *sqlx.DB
}

// NewProctoringRepository constructs the repository.
func NewProctoringRepository(db *sqlx.DB) *ProctoringRepository {
	return &ProctoringRepository{db: db}
}

const assignmentColumns = `id, exam_id, ta_id, status, department, created_at, updated_at`

// Create inserts a PENDING assignment. The at-most-one-active invariant
// is checked up front and additionally enforced by a partial unique index,
// which covers the race between concurrent creators.
func (r *ProctoringRepository) Create(ctx context.Context, assignment *models.ProctoringAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assignment.Status = models.AssignmentStatusPending
	assignment.CreatedAt = now
	assignment.UpdatedAt = now

	var exists bool
	const checkQuery = `SELECT EXISTS (
	SELECT 1 FROM proctoring_assignments
	WHERE exam_id = $1 AND ta_id = $2 AND status IN ('PENDING', 'ACCEPTED'))`
	if err := r.db.GetContext(ctx, &exists, checkQuery, assignment.ExamID, assignment.TAID); err != nil {
		return fmt.Errorf("check active assignment: %w", err)
	}
	if exists {
		return ErrDuplicateActiveAssignment
	}

	const insertQuery = `INSERT INTO proctoring_assignments (id, exam_id, ta_id, status, department, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, insertQuery,
		assignment.ID, assignment.ExamID, assignment.TAID, assignment.Status, assignment.Department, assignment.CreatedAt, assignment.UpdatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicateActiveAssignment
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// GetByID loads a single assignment.
func (r *ProctoringRepository) GetByID(ctx context.Context, id string) (*models.ProctoringAssignment, error) {
	var assignment models.ProctoringAssignment
	query := fmt.Sprintf(`SELECT %s FROM proctoring_assignments WHERE id = $1`, assignmentColumns)
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Transition moves an assignment to a new status if and only if its
// current status is in the allowed set, returning the prior status. The
// row is locked for the duration of the check so concurrent approvals
// cannot both claim the same assignment.
func (r *ProctoringRepository) Transition(ctx context.Context, id string, allowedFrom []models.AssignmentStatus, to models.AssignmentStatus) (prior models.AssignmentStatus, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin assignment transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.AssignmentStatus
	if err = tx.GetContext(ctx, &current, `SELECT status FROM proctoring_assignments WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sql.ErrNoRows
		}
		return "", fmt.Errorf("lock assignment: %w", err)
	}

	allowed := false
	for _, from := range allowedFrom {
		if current == from {
			allowed = true
			break
		}
	}
	if !allowed {
		err = ErrInvalidTransition
		return current, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE proctoring_assignments SET status = $2, updated_at = $3 WHERE id = $1`,
		id, to, time.Now().UTC()); err != nil {
		return current, fmt.Errorf("update assignment status: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return current, fmt.Errorf("commit assignment transition: %w", err)
	}
	return current, nil
}

// ListForTA returns the TA's assignments joined with exam details.
func (r *ProctoringRepository) ListForTA(ctx context.Context, taID string) ([]dto.AssignmentItem, error) {
	const query = `
SELECT
	pa.id,
	pa.exam_id,
	pa.ta_id,
	pa.status,
	pa.department,
	e.course_code,
	e.course_name,
	e.date AS exam_date,
	e.duration_minutes
FROM proctoring_assignments pa
JOIN exams e ON e.id = pa.exam_id
WHERE pa.ta_id = $1
ORDER BY e.date ASC`

	var items []dto.AssignmentItem
	if err := r.db.SelectContext(ctx, &items, query, taID); err != nil {
		return nil, fmt.Errorf("list assignments for ta: %w", err)
	}
	return items, nil
}

type affectedRow struct {
	AssignmentID     string                  `db:"assignment_id"`
	ExamID           string                  `db:"exam_id"`
	TAID             string                  `db:"ta_id"`
	Status           models.AssignmentStatus `db:"status"`
	Department       string                  `db:"department"`
	AssignedAt       time.Time               `db:"assigned_at"`
	CourseCode       string                  `db:"course_code"`
	CourseName       string                  `db:"course_name"`
	ExamDate         time.Time               `db:"exam_date"`
	DurationMinutes  int                     `db:"duration_minutes"`
	ExamDepartment   string                  `db:"exam_department"`
}

// ListActiveInWindow returns the TA's PENDING/ACCEPTED assignments whose
// exam date falls inside [start, end], bounds inclusive.
func (r *ProctoringRepository) ListActiveInWindow(ctx context.Context, taID string, start, end time.Time) ([]models.AffectedAssignment, error) {
	const query = `
SELECT
	pa.id AS assignment_id,
	pa.exam_id,
	pa.ta_id,
	pa.status,
	pa.department,
	pa.created_at AS assigned_at,
	e.course_code,
	e.course_name,
	e.date AS exam_date,
	e.duration_minutes,
	e.department AS exam_department
FROM proctoring_assignments pa
JOIN exams e ON e.id = pa.exam_id
WHERE pa.ta_id = $1
	AND pa.status IN ('PENDING', 'ACCEPTED')
	AND e.date::date BETWEEN $2::date AND $3::date
ORDER BY e.date ASC`

	var rows []affectedRow
	if err := r.db.SelectContext(ctx, &rows, query, taID, start, end); err != nil {
		return nil, fmt.Errorf("list affected assignments: %w", err)
	}

	affected := make([]models.AffectedAssignment, 0, len(rows))
	for _, row := range rows {
		affected = append(affected, models.AffectedAssignment{
			Assignment: models.ProctoringAssignment{
				ID:         row.AssignmentID,
				ExamID:     row.ExamID,
				TAID:       row.TAID,
				Status:     row.Status,
				Department: row.Department,
				CreatedAt:  row.AssignedAt,
			},
			Exam: models.Exam{
				ID:              row.ExamID,
				CourseCode:      row.CourseCode,
				CourseName:      row.CourseName,
				Date:            row.ExamDate,
				DurationMinutes: row.DurationMinutes,
				Department:      row.ExamDepartment,
			},
		})
	}
	return affected, nil
}

// StatusCounts returns per-status assignment counts for a TA.
func (r *ProctoringRepository) StatusCounts(ctx context.Context, taID string) (map[models.AssignmentStatus]int, error) {
	rows := []struct {
		Status models.AssignmentStatus `db:"status"`
		Count  int                     `db:"count"`
	}{}
	const query = `SELECT status, COUNT(*) AS count FROM proctoring_assignments WHERE ta_id = $1 GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query, taID); err != nil {
		return nil, fmt.Errorf("count assignments: %w", err)
	}
	counts := make(map[models.AssignmentStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
