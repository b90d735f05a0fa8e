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

// ReportRepository persists background report job metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message`

// Create inserts a QUEUED job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_jobs (id, type, params, status, progress, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		job.ID, job.Type, job.Params, job.Status, job.Progress, job.CreatedBy, job.CreatedAt); err != nil {
		return fmt.Errorf("insert report job: %w", err)
	}
	return nil
}

// GetByID loads a single job.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE id = $1`, reportColumns)
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateReportJobParams carries the mutable job fields.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies the non-nil fields to the job row.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	sets := []string{}
	args := []interface{}{id}

	if params.Status != nil {
		args = append(args, *params.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Progress != nil {
		args = append(args, *params.Progress)
		sets = append(sets, fmt.Sprintf("progress = $%d", len(args)))
	}
	if params.ResultURL != nil {
		args = append(args, *params.ResultURL)
		sets = append(sets, fmt.Sprintf("result_url = $%d", len(args)))
	}
	if params.ErrorMessage != nil {
		args = append(args, *params.ErrorMessage)
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if params.FinishedAt != nil {
		args = append(args, *params.FinishedAt)
		sets = append(sets, fmt.Sprintf("finished_at = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE report_jobs SET %s WHERE id = $1`, strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}

// ListQueued returns jobs still waiting for a worker, oldest first.
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit < 1 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`, reportColumns)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued report jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs older than the cutoff, used by
// the cleanup loop to expire stored files.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit < 1 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM report_jobs
WHERE status IN ('FINISHED', 'FAILED') AND finished_at IS NOT NULL AND finished_at < $1
ORDER BY finished_at ASC LIMIT $2`, reportColumns)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished report jobs: %w", err)
	}
	return jobs, nil
}

// ScheduleRow is one line of the proctoring schedule export.
type ScheduleRow struct {
	CourseCode      string                  `db:"course_code"`
	CourseName      string                  `db:"course_name"`
	ExamDate        time.Time               `db:"exam_date"`
	DurationMinutes int                     `db:"duration_minutes"`
	TAName          string                  `db:"ta_name"`
	TAEmail         string                  `db:"ta_email"`
	Department      string                  `db:"department"`
	Status          models.AssignmentStatus `db:"status"`
}

// ScheduleRows loads assignment rows for the proctoring schedule report,
// scoped by the job params.
func (r *ReportRepository) ScheduleRows(ctx context.Context, params models.ReportJobParams) ([]ScheduleRow, error) {
	query := `SELECT e.course_code, e.course_name, e.date AS exam_date, e.duration_minutes,
u.full_name AS ta_name, u.email AS ta_email, pa.department, pa.status
FROM proctoring_assignments pa
JOIN exams e ON e.id = pa.exam_id
JOIN users u ON u.id = pa.ta_id`
	conditions := []string{}
	args := []interface{}{}
	if params.Department != "" {
		args = append(args, params.Department)
		conditions = append(conditions, fmt.Sprintf("pa.department = $%d", len(args)))
	}
	if params.From != nil {
		args = append(args, *params.From)
		conditions = append(conditions, fmt.Sprintf("e.date >= $%d", len(args)))
	}
	if params.To != nil {
		args = append(args, *params.To)
		conditions = append(conditions, fmt.Sprintf("e.date <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.date ASC, e.course_code ASC, u.full_name ASC"

	var rows []ScheduleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list schedule rows: %w", err)
	}
	return rows, nil
}

// LeaveRow is one line of the leave summary export.
type LeaveRow struct {
	TAName     string             `db:"ta_name"`
	Department string             `db:"department"`
	StartDate  time.Time          `db:"start_date"`
	EndDate    time.Time          `db:"end_date"`
	Status     models.LeaveStatus `db:"status"`
	Reason     string             `db:"reason"`
	ReviewedAt *time.Time         `db:"reviewed_at"`
}

// LeaveRows loads leave request rows for the leave summary report.
func (r *ReportRepository) LeaveRows(ctx context.Context, params models.ReportJobParams) ([]LeaveRow, error) {
	query := `SELECT u.full_name AS ta_name, u.department, lr.start_date, lr.end_date, lr.status, lr.reason, lr.reviewed_at
FROM leave_requests lr
JOIN users u ON u.id = lr.ta_id`
	conditions := []string{}
	args := []interface{}{}
	if params.Department != "" {
		args = append(args, params.Department)
		conditions = append(conditions, fmt.Sprintf("u.department = $%d", len(args)))
	}
	if params.From != nil {
		args = append(args, *params.From)
		conditions = append(conditions, fmt.Sprintf("lr.end_date >= $%d", len(args)))
	}
	if params.To != nil {
		args = append(args, *params.To)
		conditions = append(conditions, fmt.Sprintf("lr.start_date <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY lr.start_date ASC, u.full_name ASC"

	var rows []LeaveRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list leave rows: %w", err)
	}
	return rows, nil
}
