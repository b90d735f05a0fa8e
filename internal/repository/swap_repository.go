package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tams-dev/tams-api/internal/models"
)

// SwapRepository provides persistence for TA-initiated swap requests.
type SwapRepository struct {
	db *sqlx.DB
}

// NewSwapRepository constructs the repository.
func NewSwapRepository(db *sqlx.DB) *SwapRepository {
	return &SwapRepository{db: db}
}

const swapColumns = `id, assignment_id, requester_id, target_ta_id, message, status, resolved_at, created_at`

// Create inserts an OPEN swap request.
func (r *SwapRepository) Create(ctx context.Context, swap *models.SwapRequest) error {
	if swap.ID == "" {
		swap.ID = uuid.NewString()
	}
	swap.Status = models.SwapStatusOpen
	swap.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO swap_requests (id, assignment_id, requester_id, target_ta_id, message, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		swap.ID, swap.AssignmentID, swap.RequesterID, swap.TargetTAID, swap.Message, swap.Status, swap.CreatedAt); err != nil {
		return fmt.Errorf("insert swap request: %w", err)
	}
	return nil
}

// GetByID loads a single swap request.
func (r *SwapRepository) GetByID(ctx context.Context, id string) (*models.SwapRequest, error) {
	var swap models.SwapRequest
	query := fmt.Sprintf(`SELECT %s FROM swap_requests WHERE id = $1`, swapColumns)
	if err := r.db.GetContext(ctx, &swap, query, id); err != nil {
		return nil, err
	}
	return &swap, nil
}

// ListForTA returns swaps the TA is involved in, either side, newest first.
func (r *SwapRepository) ListForTA(ctx context.Context, taID string) ([]models.SwapRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM swap_requests WHERE requester_id = $1 OR target_ta_id = $1 ORDER BY created_at DESC`, swapColumns)
	var swaps []models.SwapRequest
	if err := r.db.SelectContext(ctx, &swaps, query, taID); err != nil {
		return nil, fmt.Errorf("list swap requests: %w", err)
	}
	return swaps, nil
}

// Close transitions an OPEN swap to DECLINED or CANCELED.
func (r *SwapRepository) Close(ctx context.Context, id string, status models.SwapStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE swap_requests SET status = $2, resolved_at = $3 WHERE id = $1 AND status = 'OPEN'`,
		id, status, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("close swap request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close swap request: %w", err)
	}
	return affected == 1, nil
}

// Accept atomically resolves an OPEN swap: the requester's assignment is
// marked SWAPPED and a new PENDING assignment is created for the target,
// all inside one transaction so a crash never leaves the exam uncovered
// on paper while the swap reads accepted. The prior status of the
// swapped-out assignment is returned for workload correction.
func (r *SwapRepository) Accept(ctx context.Context, id string) (newAssignment *models.ProctoringAssignment, prior models.AssignmentStatus, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin swap transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var swap models.SwapRequest
	query := fmt.Sprintf(`SELECT %s FROM swap_requests WHERE id = $1 FOR UPDATE`, swapColumns)
	if err = tx.GetContext(ctx, &swap, query, id); err != nil {
		return nil, "", err
	}
	if swap.Status != models.SwapStatusOpen {
		err = ErrInvalidTransition
		return nil, "", err
	}

	var assignment models.ProctoringAssignment
	if err = tx.GetContext(ctx, &assignment,
		fmt.Sprintf(`SELECT %s FROM proctoring_assignments WHERE id = $1 FOR UPDATE`, assignmentColumns),
		swap.AssignmentID); err != nil {
		return nil, "", err
	}
	if !assignment.Status.Active() {
		err = ErrInvalidTransition
		return nil, "", err
	}

	var targetBusy bool
	const busyQuery = `SELECT EXISTS (
	SELECT 1 FROM proctoring_assignments
	WHERE exam_id = $1 AND ta_id = $2 AND status IN ('PENDING', 'ACCEPTED'))`
	if err = tx.GetContext(ctx, &targetBusy, busyQuery, assignment.ExamID, swap.TargetTAID); err != nil {
		return nil, "", fmt.Errorf("check target availability: %w", err)
	}
	if targetBusy {
		err = ErrDuplicateActiveAssignment
		return nil, "", err
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx,
		`UPDATE proctoring_assignments SET status = 'SWAPPED', updated_at = $2 WHERE id = $1`,
		assignment.ID, now); err != nil {
		return nil, assignment.Status, fmt.Errorf("swap out assignment: %w", err)
	}

	replacement := &models.ProctoringAssignment{
		ID:         uuid.NewString(),
		ExamID:     assignment.ExamID,
		TAID:       swap.TargetTAID,
		Status:     models.AssignmentStatusPending,
		Department: assignment.Department,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	const insertQuery = `INSERT INTO proctoring_assignments (id, exam_id, ta_id, status, department, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, insertQuery,
		replacement.ID, replacement.ExamID, replacement.TAID, replacement.Status, replacement.Department, replacement.CreatedAt, replacement.UpdatedAt); err != nil {
		return nil, assignment.Status, fmt.Errorf("insert replacement assignment: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE swap_requests SET status = 'ACCEPTED', resolved_at = $2 WHERE id = $1`,
		swap.ID, now); err != nil {
		return nil, assignment.Status, fmt.Errorf("resolve swap request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, assignment.Status, fmt.Errorf("commit swap: %w", err)
	}
	return replacement, assignment.Status, nil
}
