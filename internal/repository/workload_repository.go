package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tams-dev/tams-api/internal/models"
)

// WorkloadRepository tracks credited proctoring minutes per TA.
type WorkloadRepository struct {
	db *sqlx.DB
}

// NewWorkloadRepository constructs the repository.
func NewWorkloadRepository(db *sqlx.DB) *WorkloadRepository {
	return &WorkloadRepository{db: db}
}

// Adjust applies a signed delta to the TA's credited minutes, creating the
// row on first credit. The total is clamped at zero.
func (r *WorkloadRepository) Adjust(ctx context.Context, taID string, deltaMinutes int) error {
	const query = `INSERT INTO ta_workloads (ta_id, total_minutes, updated_at)
VALUES ($1, GREATEST($2, 0), $3)
ON CONFLICT (ta_id) DO UPDATE
SET total_minutes = GREATEST(ta_workloads.total_minutes + $2, 0), updated_at = $3`
	if _, err := r.db.ExecContext(ctx, query, taID, deltaMinutes, time.Now().UTC()); err != nil {
		return fmt.Errorf("adjust workload: %w", err)
	}
	return nil
}

// Get returns the TA's workload row; a missing row reads as zero minutes.
func (r *WorkloadRepository) Get(ctx context.Context, taID string) (*models.TAWorkload, error) {
	var workload models.TAWorkload
	const query = `SELECT ta_id, total_minutes, updated_at FROM ta_workloads WHERE ta_id = $1`
	if err := r.db.GetContext(ctx, &workload, query, taID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.TAWorkload{TAID: taID}, nil
		}
		return nil, fmt.Errorf("get workload: %w", err)
	}
	return &workload, nil
}
