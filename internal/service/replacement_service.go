package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tams-dev/tams-api/internal/models"
	"github.com/tams-dev/tams-api/internal/repository"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
)

type candidateLister interface {
	ListAvailableTAs(ctx context.Context, examID string, examDate time.Time, excludeTAID string) ([]repository.TACandidate, error)
}

type assignmentCreator interface {
	Create(ctx context.Context, assignment *models.ProctoringAssignment) error
}

// RankingPolicy orders candidate TAs for a replacement slot. The search
// tries candidates in the returned order.
type RankingPolicy interface {
	Rank(exam *models.Exam, candidates []repository.TACandidate) []repository.TACandidate
}

// DeptFirstRanking is the default policy: TAs from the exam's department
// come first, candidates at or over the load ceiling come last, ties
// break on fewest active assignments and then on TA id.
type DeptFirstRanking struct {
	MaxActiveAssignments int
}

// Rank sorts a copy of the candidate list. The ordering is total, so a
// given exam and candidate set always produces the same ranking.
func (p DeptFirstRanking) Rank(exam *models.Exam, candidates []repository.TACandidate) []repository.TACandidate {
	ceiling := p.MaxActiveAssignments
	if ceiling <= 0 {
		ceiling = 5
	}
	ranked := make([]repository.TACandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		aDept := a.Department == exam.Department
		bDept := b.Department == exam.Department
		if aDept != bDept {
			return aDept
		}
		aOver := a.ActiveAssignments >= ceiling
		bOver := b.ActiveAssignments >= ceiling
		if aOver != bOver {
			return bOver
		}
		if a.ActiveAssignments != b.ActiveAssignments {
			return a.ActiveAssignments < b.ActiveAssignments
		}
		return a.ID < b.ID
	})
	return ranked
}

// ReplacementService finds a substitute proctor for an exam slot vacated
// by an approved leave.
type ReplacementService struct {
	candidates  candidateLister
	assignments assignmentCreator
	notify      notifier
	policy      RankingPolicy
	logger      *zap.Logger
}

// NewReplacementService constructs a ReplacementService.
func NewReplacementService(candidates candidateLister, assignments assignmentCreator, notify notifier, policy RankingPolicy, logger *zap.Logger) *ReplacementService {
	if policy == nil {
		policy = DeptFirstRanking{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplacementService{candidates: candidates, assignments: assignments, notify: notify, policy: policy, logger: logger}
}

// FindReplacement selects the best available TA for the exam, excluding
// the TA being replaced, and creates a PENDING assignment for them. It
// returns (nil, false, nil) when no candidate is available: an empty
// pool is an expected outcome, not an error. A candidate lost to a
// concurrent assignment is skipped and the next one tried.
func (s *ReplacementService) FindReplacement(ctx context.Context, exam *models.Exam, excludeTAID string) (*models.ProctoringAssignment, bool, error) {
	candidates, err := s.candidates.ListAvailableTAs(ctx, exam.ID, exam.Date, excludeTAID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list replacement candidates")
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}

	for _, candidate := range s.policy.Rank(exam, candidates) {
		now := time.Now().UTC()
		assignment := &models.ProctoringAssignment{
			ID:         uuid.NewString(),
			ExamID:     exam.ID,
			TAID:       candidate.ID,
			Status:     models.AssignmentStatusPending,
			Department: exam.Department,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.assignments.Create(ctx, assignment); err != nil {
			if errors.Is(err, repository.ErrDuplicateActiveAssignment) {
				s.logger.Debug("replacement candidate taken concurrently",
					zap.String("exam_id", exam.ID), zap.String("ta_id", candidate.ID))
				continue
			}
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create replacement assignment")
		}

		if err := s.notify.Notify(ctx, candidate.ID, "Replacement proctoring assignment",
			fmt.Sprintf("You have been assigned as replacement proctor for %s (%s) on %s.",
				exam.CourseName, exam.CourseCode, exam.Date.Format("2006-01-02 15:04"))); err != nil {
			s.logger.Warn("failed to notify replacement ta", zap.String("ta_id", candidate.ID), zap.Error(err))
		}
		return assignment, true, nil
	}
	return nil, false, nil
}
