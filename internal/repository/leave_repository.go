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

// LeaveRepository provides persistence for leave requests.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs the repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

const leaveColumns = `id, ta_id, start_date, end_date, reason, file_path, status, rejection_reason, reviewed_by, reviewed_at, created_at, updated_at`

// Create inserts a new WAITING leave request.
func (r *LeaveRepository) Create(ctx context.Context, req *models.LeaveRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.Status = models.LeaveStatusWaiting
	req.CreatedAt = now
	req.UpdatedAt = now
	const query = `INSERT INTO leave_requests (id, ta_id, start_date, end_date, reason, file_path, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		req.ID, req.TAID, req.StartDate, req.EndDate, req.Reason, req.FilePath, req.Status, req.CreatedAt, req.UpdatedAt); err != nil {
		return fmt.Errorf("insert leave request: %w", err)
	}
	return nil
}

// GetByID loads a single leave request.
func (r *LeaveRepository) GetByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	var req models.LeaveRequest
	query := fmt.Sprintf(`SELECT %s FROM leave_requests WHERE id = $1`, leaveColumns)
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns leave requests matching the filter, most recent first.
func (r *LeaveRepository) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, error) {
	where := strings.Builder{}
	where.WriteString(" WHERE 1=1")
	args := []interface{}{}

	if filter.TAID != "" {
		args = append(args, filter.TAID)
		fmt.Fprintf(&where, " AND lr.ta_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		fmt.Fprintf(&where, " AND lr.status = $%d", len(args))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		fmt.Fprintf(&where, " AND EXISTS (SELECT 1 FROM users u WHERE u.id = lr.ta_id AND u.department = $%d)", len(args))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM leave_requests lr%s ORDER BY lr.created_at DESC LIMIT %d OFFSET %d`,
		prefixColumns("lr", leaveColumns), where.String(), pageSize, (page-1)*pageSize)

	var items []models.LeaveRequest
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	return items, nil
}

// Decide transitions a WAITING request to a terminal status. The WHERE
// clause doubles as a compare-and-swap: a request already decided (or
// decided concurrently) matches zero rows and the caller gets false.
func (r *LeaveRepository) Decide(ctx context.Context, id string, status models.LeaveStatus, rejectionReason *string, reviewerID string) (bool, error) {
	now := time.Now().UTC()
	const query = `UPDATE leave_requests
SET status = $2, rejection_reason = $3, reviewed_by = $4, reviewed_at = $5, updated_at = $5
WHERE id = $1 AND status = 'WAITING'`
	result, err := r.db.ExecContext(ctx, query, id, status, rejectionReason, reviewerID, now)
	if err != nil {
		return false, fmt.Errorf("decide leave request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decide leave request: %w", err)
	}
	return affected == 1, nil
}

// CountWaiting returns the number of WAITING requests, optionally scoped
// to a department.
func (r *LeaveRepository) CountWaiting(ctx context.Context, department string) (int, error) {
	var count int
	if department == "" {
		err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM leave_requests WHERE status = 'WAITING'`)
		return count, err
	}
	const query = `SELECT COUNT(*) FROM leave_requests lr
JOIN users u ON u.id = lr.ta_id
WHERE lr.status = 'WAITING' AND u.department = $1`
	err := r.db.GetContext(ctx, &count, query, department)
	return count, err
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}
