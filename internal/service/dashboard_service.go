package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tams-dev/tams-api/internal/dto"
	"github.com/tams-dev/tams-api/internal/models"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
)

type waitingLeaveCounter interface {
	CountWaiting(ctx context.Context, department string) (int, error)
}

type assignmentCounter interface {
	StatusCounts(ctx context.Context, taID string) (map[models.AssignmentStatus]int, error)
}

type upcomingExamCounter interface {
	CountUpcoming(ctx context.Context, department string) (int, error)
}

type unreadCounter interface {
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

type workloadReader interface {
	Get(ctx context.Context, taID string) (*models.TAWorkload, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardService composes the per-user landing page counters. The
// payload is cached per user; a cold or unavailable cache falls through
// to the database.
type DashboardService struct {
	leaves      waitingLeaveCounter
	assignments assignmentCounter
	exams       upcomingExamCounter
	unread      unreadCounter
	workload    workloadReader
	cache       summaryCache
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(leaves waitingLeaveCounter, assignments assignmentCounter, exams upcomingExamCounter, unread unreadCounter, workload workloadReader, cache summaryCache, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{leaves: leaves, assignments: assignments, exams: exams, unread: unread, workload: workload, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Summary returns the dashboard payload for the user and whether it was
// served from cache.
func (s *DashboardService) Summary(ctx context.Context, claims *models.JWTClaims) (*dto.DashboardSummary, bool, error) {
	key := fmt.Sprintf("dashboard:summary:%s", claims.UserID)
	if s.cache != nil {
		var cached dto.DashboardSummary
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, true, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache lookup failed", zap.String("key", key), zap.Error(err))
		}
	}

	summary, err := s.build(ctx, claims)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache store failed", zap.String("key", key), zap.Error(err))
		}
	}
	return summary, false, nil
}

func (s *DashboardService) build(ctx context.Context, claims *models.JWTClaims) (*dto.DashboardSummary, error) {
	summary := &dto.DashboardSummary{}

	// Department-scoped roles only see their own department's queue.
	department := ""
	if claims.Role == models.RoleSecretary || claims.Role == models.RoleInstructor {
		department = claims.Department
	}

	if claims.Role == models.RoleTA {
		counts, err := s.assignments.StatusCounts(ctx, claims.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
		}
		summary.PendingAssignments = counts[models.AssignmentStatusPending]
		summary.AcceptedAssignments = counts[models.AssignmentStatusAccepted]
		summary.SwappedAssignments = counts[models.AssignmentStatusSwapped]

		workload, err := s.workload.Get(ctx, claims.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workload")
		}
		summary.WorkloadMinutes = workload.TotalMinutes
		department = claims.Department
	} else {
		waiting, err := s.leaves.CountWaiting(ctx, department)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count leave requests")
		}
		summary.WaitingLeaveRequests = waiting
	}

	upcoming, err := s.exams.CountUpcoming(ctx, department)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count upcoming exams")
	}
	summary.UpcomingExams = upcoming

	unread, err := s.unread.CountUnread(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	summary.UnreadNotifications = unread

	return summary, nil
}
