package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tams-dev/tams-api/internal/models"
	"github.com/tams-dev/tams-api/internal/repository"
)

type mockCandidateLister struct {
	candidates []repository.TACandidate
	err        error
}

func (m *mockCandidateLister) ListAvailableTAs(ctx context.Context, examID string, examDate time.Time, excludeTAID string) ([]repository.TACandidate, error) {
	return m.candidates, m.err
}

type mockAssignmentCreator struct {
	created   []models.ProctoringAssignment
	duplicate map[string]bool
}

func (m *mockAssignmentCreator) Create(ctx context.Context, assignment *models.ProctoringAssignment) error {
	if m.duplicate[assignment.TAID] {
		return repository.ErrDuplicateActiveAssignment
	}
	m.created = append(m.created, *assignment)
	return nil
}

func mathExam() *models.Exam {
	return &models.Exam{
		ID:              "e1",
		CourseCode:      "MATH202",
		CourseName:      "Linear Algebra",
		Date:            time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 120,
		Department:      "MATH",
	}
}

func TestDeptFirstRankingOrder(t *testing.T) {
	policy := DeptFirstRanking{MaxActiveAssignments: 5}
	candidates := []repository.TACandidate{
		{ID: "ta-busy", Department: "MATH", ActiveAssignments: 6},
		{ID: "ta-other", Department: "PHYS", ActiveAssignments: 0},
		{ID: "ta-b", Department: "MATH", ActiveAssignments: 2},
		{ID: "ta-a", Department: "MATH", ActiveAssignments: 2},
		{ID: "ta-c", Department: "MATH", ActiveAssignments: 1},
	}

	ranked := policy.Rank(mathExam(), candidates)

	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"ta-c", "ta-a", "ta-b", "ta-busy", "ta-other"}, ids)
}

func TestDeptFirstRankingDeterministic(t *testing.T) {
	policy := DeptFirstRanking{}
	candidates := []repository.TACandidate{
		{ID: "ta-2", Department: "MATH", ActiveAssignments: 1},
		{ID: "ta-1", Department: "MATH", ActiveAssignments: 1},
		{ID: "ta-3", Department: "CS", ActiveAssignments: 0},
	}

	first := policy.Rank(mathExam(), candidates)
	second := policy.Rank(mathExam(), candidates)
	assert.Equal(t, first, second)
	assert.Equal(t, "ta-1", first[0].ID)
}

func TestFindReplacementCreatesPendingAssignment(t *testing.T) {
	candidates := &mockCandidateLister{candidates: []repository.TACandidate{
		{ID: "ta-2", Department: "MATH", ActiveAssignments: 1},
	}}
	creator := &mockAssignmentCreator{}
	notify := &stubNotifier{}
	svc := NewReplacementService(candidates, creator, notify, nil, zap.NewNop())

	assignment, found, err := svc.FindReplacement(context.Background(), mathExam(), "ta-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ta-2", assignment.TAID)
	assert.Equal(t, models.AssignmentStatusPending, assignment.Status)
	assert.Equal(t, "MATH", assignment.Department)
	require.Len(t, creator.created, 1)
	assert.Contains(t, notify.sent, "ta-2")
}

func TestFindReplacementEmptyPool(t *testing.T) {
	svc := NewReplacementService(&mockCandidateLister{}, &mockAssignmentCreator{}, &stubNotifier{}, nil, zap.NewNop())

	assignment, found, err := svc.FindReplacement(context.Background(), mathExam(), "ta-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, assignment)
}

func TestFindReplacementSkipsTakenCandidate(t *testing.T) {
	candidates := &mockCandidateLister{candidates: []repository.TACandidate{
		{ID: "ta-2", Department: "MATH", ActiveAssignments: 0},
		{ID: "ta-3", Department: "MATH", ActiveAssignments: 3},
	}}
	creator := &mockAssignmentCreator{duplicate: map[string]bool{"ta-2": true}}
	svc := NewReplacementService(candidates, creator, &stubNotifier{}, nil, zap.NewNop())

	assignment, found, err := svc.FindReplacement(context.Background(), mathExam(), "ta-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ta-3", assignment.TAID)
}

func TestFindReplacementAllCandidatesTaken(t *testing.T) {
	candidates := &mockCandidateLister{candidates: []repository.TACandidate{
		{ID: "ta-2", Department: "MATH"},
	}}
	creator := &mockAssignmentCreator{duplicate: map[string]bool{"ta-2": true}}
	svc := NewReplacementService(candidates, creator, &stubNotifier{}, nil, zap.NewNop())

	assignment, found, err := svc.FindReplacement(context.Background(), mathExam(), "ta-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, assignment)
}
