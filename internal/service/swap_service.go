package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tams-dev/tams-api/internal/dto"
	"github.com/tams-dev/tams-api/internal/models"
	"github.com/tams-dev/tams-api/internal/repository"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
)

type swapRepository interface {
	Create(ctx context.Context, swap *models.SwapRequest) error
	GetByID(ctx context.Context, id string) (*models.SwapRequest, error)
	ListForTA(ctx context.Context, taID string) ([]models.SwapRequest, error)
	Close(ctx context.Context, id string, status models.SwapStatus) (bool, error)
	Accept(ctx context.Context, id string) (*models.ProctoringAssignment, models.AssignmentStatus, error)
}

type assignmentReader interface {
	GetByID(ctx context.Context, id string) (*models.ProctoringAssignment, error)
}

// SwapService handles TA-initiated swaps: the holder of an active
// assignment offers it to a named colleague, who accepts or declines.
type SwapService struct {
	repo        swapRepository
	assignments assignmentReader
	exams       examReader
	users       taReader
	workload    workloadAdjuster
	notify      notifier
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSwapService constructs a SwapService.
func NewSwapService(repo swapRepository, assignments assignmentReader, exams examReader, users taReader, workload workloadAdjuster, notify notifier, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *SwapService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwapService{repo: repo, assignments: assignments, exams: exams, users: users, workload: workload, notify: notify, audit: audit, validator: validate, logger: logger}
}

// Create opens a swap request against one of the requester's active
// assignments, addressed to a specific TA.
func (s *SwapService) Create(ctx context.Context, requesterID string, req dto.CreateSwapRequest) (*models.SwapRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swap payload")
	}
	if req.TargetTAID == requesterID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot swap with yourself")
	}

	assignment, err := s.assignments.GetByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.TAID != requesterID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another ta")
	}
	if !assignment.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "assignment is no longer active")
	}

	target, err := s.users.FindByID(ctx, req.TargetTAID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target ta not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target ta")
	}
	if target.Role != models.RoleTA || !target.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target is not an active ta")
	}

	swap := &models.SwapRequest{
		ID:           uuid.NewString(),
		AssignmentID: assignment.ID,
		RequesterID:  requesterID,
		TargetTAID:   target.ID,
		Message:      req.Message,
		Status:       models.SwapStatusOpen,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, swap); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create swap request")
	}

	if err := s.notify.Notify(ctx, target.ID, "Proctoring swap proposed",
		fmt.Sprintf("A colleague asked you to take over a proctoring duty. %s", req.Message)); err != nil {
		s.logger.Warn("failed to notify swap target", zap.String("ta_id", target.ID), zap.Error(err))
	}
	return swap, nil
}

// Accept resolves an OPEN swap in the target's favour: the requester's
// assignment is swapped out and a fresh PENDING assignment is created
// for the target, all in one transaction. If the requester had already
// accepted the duty their workload credit is taken back.
func (s *SwapService) Accept(ctx context.Context, id, actorID string) (*models.ProctoringAssignment, error) {
	swap, err := s.loadSwap(ctx, id)
	if err != nil {
		return nil, err
	}
	if swap.TargetTAID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "swap request is addressed to another ta")
	}

	replacement, prior, err := s.repo.Accept(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidTransition):
			return nil, appErrors.Clone(appErrors.ErrStateConflict, "swap request is no longer open")
		case errors.Is(err, repository.ErrDuplicateActiveAssignment):
			return nil, appErrors.Clone(appErrors.ErrConflict, "you already hold an active assignment for this exam")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "swap request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept swap")
	}

	if prior == models.AssignmentStatusAccepted {
		exam, err := s.exams.GetByID(ctx, replacement.ExamID)
		if err != nil {
			s.logger.Warn("failed to load exam for workload correction", zap.String("swap_id", id), zap.Error(err))
		} else if err := s.workload.Reduce(ctx, swap.RequesterID, exam.DurationMinutes); err != nil {
			s.logger.Warn("failed to reduce requester workload after swap",
				zap.String("ta_id", swap.RequesterID), zap.Error(err))
		}
	}

	if err := s.notify.Notify(ctx, swap.RequesterID, "Proctoring swap accepted",
		"Your swap request was accepted. The duty has been handed over."); err != nil {
		s.logger.Warn("failed to notify swap requester", zap.String("ta_id", swap.RequesterID), zap.Error(err))
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionSwapResolve,
		Resource:   "swap_request",
		ResourceID: &swap.ID,
		NewValues:  []byte(`{"status":"ACCEPTED"}`),
	}); err != nil {
		s.logger.Warn("failed to record swap audit log", zap.Error(err))
	}

	return replacement, nil
}

// Decline closes an OPEN swap without touching the assignment. Only the
// target may decline.
func (s *SwapService) Decline(ctx context.Context, id, actorID string) error {
	swap, err := s.loadSwap(ctx, id)
	if err != nil {
		return err
	}
	if swap.TargetTAID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "swap request is addressed to another ta")
	}
	if err := s.close(ctx, id, models.SwapStatusDeclined); err != nil {
		return err
	}
	if err := s.notify.Notify(ctx, swap.RequesterID, "Proctoring swap declined",
		"Your swap request was declined. The duty remains yours."); err != nil {
		s.logger.Warn("failed to notify swap requester", zap.String("ta_id", swap.RequesterID), zap.Error(err))
	}
	return nil
}

// Cancel withdraws an OPEN swap. Only the requester may cancel.
func (s *SwapService) Cancel(ctx context.Context, id, actorID string) error {
	swap, err := s.loadSwap(ctx, id)
	if err != nil {
		return err
	}
	if swap.RequesterID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "swap request belongs to another ta")
	}
	return s.close(ctx, id, models.SwapStatusCanceled)
}

// ListMine returns swaps where the TA is requester or target.
func (s *SwapService) ListMine(ctx context.Context, taID string) ([]models.SwapRequest, error) {
	swaps, err := s.repo.ListForTA(ctx, taID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list swap requests")
	}
	return swaps, nil
}

func (s *SwapService) loadSwap(ctx context.Context, id string) (*models.SwapRequest, error) {
	swap, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "swap request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load swap request")
	}
	return swap, nil
}

func (s *SwapService) close(ctx context.Context, id string, status models.SwapStatus) error {
	ok, err := s.repo.Close(ctx, id, status)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close swap request")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrStateConflict, "swap request is no longer open")
	}
	return nil
}
