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

type leaveRepository interface {
	Create(ctx context.Context, req *models.LeaveRequest) error
	GetByID(ctx context.Context, id string) (*models.LeaveRequest, error)
	List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, error)
	Decide(ctx context.Context, id string, status models.LeaveStatus, rejectionReason *string, reviewerID string) (bool, error)
}

type affectedAssignmentLister interface {
	ListActiveInWindow(ctx context.Context, taID string, start, end time.Time) ([]models.AffectedAssignment, error)
	Transition(ctx context.Context, id string, allowedFrom []models.AssignmentStatus, to models.AssignmentStatus) (models.AssignmentStatus, error)
}

type replacementFinder interface {
	FindReplacement(ctx context.Context, exam *models.Exam, excludeTAID string) (*models.ProctoringAssignment, bool, error)
}

type examInstructorLister interface {
	ListInstructors(ctx context.Context, examID string) ([]models.User, error)
}

// LeaveService owns the leave request lifecycle. Approval is the heavy
// operation: the decision itself is atomic, then each affected exam is
// handled in isolation so one failed reassignment never blocks or
// reverts the others.
type LeaveService struct {
	repo        leaveRepository
	assignments affectedAssignmentLister
	replacement replacementFinder
	instructors examInstructorLister
	workload    workloadAdjuster
	notify      notifier
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewLeaveService constructs a LeaveService.
func NewLeaveService(repo leaveRepository, assignments affectedAssignmentLister, replacement replacementFinder, instructors examInstructorLister, workload workloadAdjuster, notify notifier, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveService{repo: repo, assignments: assignments, replacement: replacement, instructors: instructors, workload: workload, notify: notify, audit: audit, validator: validate, logger: logger}
}

// Submit files a new WAITING leave request for the TA.
func (s *LeaveService) Submit(ctx context.Context, taID string, req dto.CreateLeaveRequest) (*models.LeaveRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}
	now := time.Now().UTC()
	leave := &models.LeaveRequest{
		ID:        uuid.NewString(),
		TAID:      taID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Reason:    req.Reason,
		FilePath:  req.FilePath,
		Status:    models.LeaveStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create leave request")
	}
	return leave, nil
}

// Get loads a leave request. TAs may only see their own.
func (s *LeaveService) Get(ctx context.Context, id, userID string, role models.UserRole) (*models.LeaveRequest, error) {
	leave, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	if role == models.RoleTA && leave.TAID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "leave request belongs to another ta")
	}
	return leave, nil
}

// List returns leave requests matching the filter.
func (s *LeaveService) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, error) {
	leaves, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leave requests")
	}
	return leaves, nil
}

// Approve decides a WAITING request exactly once and then reassigns
// every active proctoring duty inside the leave window. The decision is
// a compare-and-set: a request already decided, by anyone, yields a
// state conflict and no side effects. Reassignment is best effort per
// exam and the returned outcomes record what happened to each one.
func (s *LeaveService) Approve(ctx context.Context, id, reviewerID string) (*dto.LeaveDecisionResponse, error) {
	leave, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}

	decided, err := s.repo.Decide(ctx, id, models.LeaveStatusApproved, nil, reviewerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve leave request")
	}
	if !decided {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "leave request already decided")
	}

	now := time.Now().UTC()
	leave.Status = models.LeaveStatusApproved
	leave.ReviewedBy = &reviewerID
	leave.ReviewedAt = &now
	leave.UpdatedAt = now

	// The TA hears about the approval before any removal messages.
	if err := s.notify.Notify(ctx, leave.TAID, "Leave request approved",
		fmt.Sprintf("Your leave from %s to %s has been approved.",
			leave.StartDate.Format("2006-01-02"), leave.EndDate.Format("2006-01-02"))); err != nil {
		s.logger.Warn("failed to notify ta of approval", zap.String("ta_id", leave.TAID), zap.Error(err))
	}

	outcomes := s.reassignAffected(ctx, leave)

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &reviewerID,
		Action:     models.AuditActionLeaveApprove,
		Resource:   "leave_request",
		ResourceID: &leave.ID,
		NewValues:  []byte(fmt.Sprintf(`{"status":"APPROVED","affected_exams":%d}`, len(outcomes))),
	}); err != nil {
		s.logger.Warn("failed to record approval audit log", zap.Error(err))
	}

	return &dto.LeaveDecisionResponse{LeaveRequest: leave, Outcomes: outcomes}, nil
}

// Reject decides a WAITING request exactly once with a mandatory reason.
// No assignments are touched.
func (s *LeaveService) Reject(ctx context.Context, id, reviewerID string, req dto.RejectLeaveRequest) (*dto.LeaveDecisionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	leave, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}

	decided, err := s.repo.Decide(ctx, id, models.LeaveStatusRejected, &req.Reason, reviewerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject leave request")
	}
	if !decided {
		return nil, appErrors.Clone(appErrors.ErrStateConflict, "leave request already decided")
	}

	now := time.Now().UTC()
	leave.Status = models.LeaveStatusRejected
	leave.RejectionReason = &req.Reason
	leave.ReviewedBy = &reviewerID
	leave.ReviewedAt = &now
	leave.UpdatedAt = now

	if err := s.notify.Notify(ctx, leave.TAID, "Leave request rejected",
		fmt.Sprintf("Your leave from %s to %s has been rejected: %s",
			leave.StartDate.Format("2006-01-02"), leave.EndDate.Format("2006-01-02"), req.Reason)); err != nil {
		s.logger.Warn("failed to notify ta of rejection", zap.String("ta_id", leave.TAID), zap.Error(err))
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &reviewerID,
		Action:     models.AuditActionLeaveReject,
		Resource:   "leave_request",
		ResourceID: &leave.ID,
		NewValues:  []byte(`{"status":"REJECTED"}`),
	}); err != nil {
		s.logger.Warn("failed to record rejection audit log", zap.Error(err))
	}

	return &dto.LeaveDecisionResponse{LeaveRequest: leave}, nil
}

// reassignAffected swaps out every active assignment inside the leave
// window and tries to fill each vacated slot. Failures are recorded in
// the outcome for the exam and processing moves on: completed swaps for
// earlier exams stand regardless of what happens to later ones.
func (s *LeaveService) reassignAffected(ctx context.Context, leave *models.LeaveRequest) []dto.ExamOutcome {
	affected, err := s.assignments.ListActiveInWindow(ctx, leave.TAID, leave.StartDate, leave.EndDate)
	if err != nil {
		s.logger.Error("failed to scan affected assignments",
			zap.String("leave_id", leave.ID), zap.Error(err))
		msg := "failed to scan affected assignments"
		return []dto.ExamOutcome{{Error: &msg}}
	}

	outcomes := make([]dto.ExamOutcome, 0, len(affected))
	for i := range affected {
		assignment := affected[i].Assignment
		exam := affected[i].Exam
		outcome := dto.ExamOutcome{
			ExamID:       exam.ID,
			CourseCode:   exam.CourseCode,
			AssignmentID: assignment.ID,
		}

		prior, err := s.assignments.Transition(ctx, assignment.ID,
			[]models.AssignmentStatus{models.AssignmentStatusPending, models.AssignmentStatusAccepted},
			models.AssignmentStatusSwapped)
		if err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				msg := "assignment no longer active"
				outcome.Error = &msg
			} else {
				s.logger.Error("failed to swap out assignment",
					zap.String("assignment_id", assignment.ID), zap.Error(err))
				msg := "failed to swap out assignment"
				outcome.Error = &msg
			}
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Swapped = true

		if err := s.notify.Notify(ctx, leave.TAID, "Proctoring duty removed",
			fmt.Sprintf("Your proctoring duty for %s on %s was removed for your approved leave.",
				exam.CourseCode, exam.Date.Format("2006-01-02"))); err != nil {
			s.logger.Warn("failed to notify ta of removed duty",
				zap.String("ta_id", leave.TAID), zap.String("exam_id", exam.ID), zap.Error(err))
		}

		if prior == models.AssignmentStatusAccepted {
			if err := s.workload.Reduce(ctx, leave.TAID, exam.DurationMinutes); err != nil {
				s.logger.Warn("failed to reduce workload for swapped assignment",
					zap.String("ta_id", leave.TAID), zap.String("exam_id", exam.ID), zap.Error(err))
			} else {
				outcome.WorkloadAdjusted = true
			}
		}

		replacement, found, err := s.replacement.FindReplacement(ctx, &exam, leave.TAID)
		switch {
		case err != nil:
			s.logger.Error("replacement search failed",
				zap.String("exam_id", exam.ID), zap.Error(err))
			msg := "replacement search failed"
			outcome.Error = &msg
			s.escalateUnfilled(ctx, &exam)
		case found:
			outcome.ReplacementFound = true
			outcome.ReplacementTAID = &replacement.TAID
		default:
			s.escalateUnfilled(ctx, &exam)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// escalateUnfilled tells every instructor of the exam that a proctoring
// slot is vacant and needs manual staffing.
func (s *LeaveService) escalateUnfilled(ctx context.Context, exam *models.Exam) {
	instructors, err := s.instructors.ListInstructors(ctx, exam.ID)
	if err != nil {
		s.logger.Error("failed to list instructors for unfilled exam",
			zap.String("exam_id", exam.ID), zap.Error(err))
		return
	}
	for _, instructor := range instructors {
		if err := s.notify.Notify(ctx, instructor.ID, "Proctoring slot unfilled",
			fmt.Sprintf("No replacement proctor was found for %s on %s. Please assign one manually.",
				exam.CourseCode, exam.Date.Format("2006-01-02"))); err != nil {
			s.logger.Warn("failed to notify instructor of unfilled slot",
				zap.String("instructor_id", instructor.ID), zap.String("exam_id", exam.ID), zap.Error(err))
		}
	}
}
