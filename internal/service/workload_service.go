package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/tams-dev/tams-api/internal/models"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
)

type workloadRepository interface {
	Adjust(ctx context.Context, taID string, deltaMinutes int) error
	Get(ctx context.Context, taID string) (*models.TAWorkload, error)
}

// WorkloadService maintains per-TA proctoring hour balances. Callers in
// the assignment and swap flows treat adjustment failures as non-fatal:
// the triggering transition stands and the discrepancy is logged for
// manual correction.
type WorkloadService struct {
	repo   workloadRepository
	logger *zap.Logger
}

// NewWorkloadService constructs a WorkloadService.
func NewWorkloadService(repo workloadRepository, logger *zap.Logger) *WorkloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkloadService{repo: repo, logger: logger}
}

// Credit adds accepted proctoring minutes to the TA balance.
func (s *WorkloadService) Credit(ctx context.Context, taID string, minutes int) error {
	if minutes <= 0 {
		return nil
	}
	if err := s.repo.Adjust(ctx, taID, minutes); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit workload")
	}
	return nil
}

// Reduce removes minutes from the TA balance. The stored balance never
// goes below zero.
func (s *WorkloadService) Reduce(ctx context.Context, taID string, minutes int) error {
	if minutes <= 0 {
		return nil
	}
	if err := s.repo.Adjust(ctx, taID, -minutes); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reduce workload")
	}
	return nil
}

// Get returns the current balance for the TA, zero when none recorded.
func (s *WorkloadService) Get(ctx context.Context, taID string) (*models.TAWorkload, error) {
	workload, err := s.repo.Get(ctx, taID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workload")
	}
	return workload, nil
}
