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
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
)

type examRepository interface {
	Create(ctx context.Context, exam *models.Exam, instructorIDs []string) error
	GetByID(ctx context.Context, id string) (*models.Exam, error)
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error)
	ListInstructors(ctx context.Context, examID string) ([]models.User, error)
}

// ExamService manages exam records.
type ExamService struct {
	repo      examRepository
	users     taReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs an ExamService.
func NewExamService(repo examRepository, users taReader, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{repo: repo, users: users, validator: validate, logger: logger}
}

// Create registers an exam and links its instructors.
func (s *ExamService) Create(ctx context.Context, req dto.CreateExamRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	for _, instructorID := range req.InstructorIDs {
		instructor, err := s.users.FindByID(ctx, instructorID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("instructor %s not found", instructorID))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
		}
		if instructor.Role != models.RoleInstructor {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("user %s is not an instructor", instructorID))
		}
	}

	now := time.Now().UTC()
	exam := &models.Exam{
		ID:              uuid.NewString(),
		CourseCode:      req.CourseCode,
		CourseName:      req.CourseName,
		Date:            req.Date,
		DurationMinutes: req.DurationMinutes,
		Department:      req.Department,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, exam, req.InstructorIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}
	return exam, nil
}

// Get loads a single exam.
func (s *ExamService) Get(ctx context.Context, id string) (*models.Exam, error) {
	exam, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// List returns exams matching the filter.
func (s *ExamService) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error) {
	exams, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return exams, nil
}

// Instructors returns the instructors linked to an exam.
func (s *ExamService) Instructors(ctx context.Context, examID string) ([]models.User, error) {
	if _, err := s.Get(ctx, examID); err != nil {
		return nil, err
	}
	instructors, err := s.repo.ListInstructors(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructors")
	}
	return instructors, nil
}
