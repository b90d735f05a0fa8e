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

type proctoringRepository interface {
	Create(ctx context.Context, assignment *models.ProctoringAssignment) error
	GetByID(ctx context.Context, id string) (*models.ProctoringAssignment, error)
	Transition(ctx context.Context, id string, allowedFrom []models.AssignmentStatus, to models.AssignmentStatus) (models.AssignmentStatus, error)
	ListForTA(ctx context.Context, taID string) ([]dto.AssignmentItem, error)
}

type examReader interface {
	GetByID(ctx context.Context, id string) (*models.Exam, error)
}

type taReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type workloadAdjuster interface {
	Credit(ctx context.Context, taID string, minutes int) error
	Reduce(ctx context.Context, taID string, minutes int) error
}

type notifier interface {
	Notify(ctx context.Context, recipientID, subject, message string) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ProctoringService manages the proctoring assignment lifecycle: creation
// by staff, accept/reject by the assigned TA, and duty listing.
type ProctoringService struct {
	repo      proctoringRepository
	exams     examReader
	users     taReader
	workload  workloadAdjuster
	notify    notifier
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProctoringService constructs a ProctoringService.
func NewProctoringService(repo proctoringRepository, exams examReader, users taReader, workload workloadAdjuster, notify notifier, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *ProctoringService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProctoringService{repo: repo, exams: exams, users: users, workload: workload, notify: notify, audit: audit, validator: validate, logger: logger}
}

// AssignProctors attaches the requested TAs to an exam as PENDING
// proctors. A TA already holding an active assignment for the exam is
// rejected with a conflict.
func (s *ProctoringService) AssignProctors(ctx context.Context, examID string, req dto.AssignProctorsRequest, assignedBy string) ([]models.ProctoringAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}

	created := make([]models.ProctoringAssignment, 0, len(req.TAIDs))
	for _, taID := range req.TAIDs {
		ta, err := s.users.FindByID(ctx, taID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return created, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("ta %s not found", taID))
			}
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ta")
		}
		if ta.Role != models.RoleTA || !ta.Active {
			return created, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("user %s is not an active ta", taID))
		}

		now := time.Now().UTC()
		assignment := &models.ProctoringAssignment{
			ID:         uuid.NewString(),
			ExamID:     exam.ID,
			TAID:       ta.ID,
			Status:     models.AssignmentStatusPending,
			Department: exam.Department,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.repo.Create(ctx, assignment); err != nil {
			if errors.Is(err, repository.ErrDuplicateActiveAssignment) {
				return created, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("ta %s already has an active assignment for this exam", taID))
			}
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
		}
		created = append(created, *assignment)

		if err := s.notify.Notify(ctx, ta.ID, "New proctoring assignment",
			fmt.Sprintf("You have been assigned to proctor %s (%s) on %s.", exam.CourseName, exam.CourseCode, exam.Date.Format("2006-01-02 15:04"))); err != nil {
			s.logger.Warn("failed to notify assigned ta", zap.String("ta_id", ta.ID), zap.Error(err))
		}
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &assignedBy,
		Action:     models.AuditActionExamAssign,
		Resource:   "exam",
		ResourceID: &examID,
		NewValues:  []byte(fmt.Sprintf(`{"assigned":%d}`, len(created))),
	}); err != nil {
		s.logger.Warn("failed to record assignment audit log", zap.Error(err))
	}

	return created, nil
}

// Accept moves a PENDING assignment to ACCEPTED and credits the exam
// duration to the TA workload. Only the assigned TA may accept.
func (s *ProctoringService) Accept(ctx context.Context, id, taID string) (*models.ProctoringAssignment, error) {
	assignment, err := s.loadOwned(ctx, id, taID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Transition(ctx, id, []models.AssignmentStatus{models.AssignmentStatusPending}, models.AssignmentStatusAccepted); err != nil {
		return nil, s.mapTransitionErr(err)
	}
	assignment.Status = models.AssignmentStatusAccepted

	exam, err := s.exams.GetByID(ctx, assignment.ExamID)
	if err != nil {
		s.logger.Warn("failed to load exam for workload credit", zap.String("assignment_id", id), zap.Error(err))
		return assignment, nil
	}
	if err := s.workload.Credit(ctx, taID, exam.DurationMinutes); err != nil {
		s.logger.Warn("failed to credit workload after accept", zap.String("ta_id", taID), zap.Error(err))
	}
	return assignment, nil
}

// Reject moves a PENDING assignment to REJECTED. Only the assigned TA
// may reject, and only before accepting.
func (s *ProctoringService) Reject(ctx context.Context, id, taID string) (*models.ProctoringAssignment, error) {
	assignment, err := s.loadOwned(ctx, id, taID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Transition(ctx, id, []models.AssignmentStatus{models.AssignmentStatusPending}, models.AssignmentStatusRejected); err != nil {
		return nil, s.mapTransitionErr(err)
	}
	assignment.Status = models.AssignmentStatusRejected
	return assignment, nil
}

// MyAssignments lists the TA's assignments joined with exam details.
func (s *ProctoringService) MyAssignments(ctx context.Context, taID string) ([]dto.AssignmentItem, error) {
	items, err := s.repo.ListForTA(ctx, taID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return items, nil
}

func (s *ProctoringService) loadOwned(ctx context.Context, id, taID string) (*models.ProctoringAssignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.TAID != taID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another ta")
	}
	return assignment, nil
}

func (s *ProctoringService) mapTransitionErr(err error) error {
	if errors.Is(err, repository.ErrInvalidTransition) {
		return appErrors.Clone(appErrors.ErrStateConflict, "assignment status does not allow this transition")
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
}
