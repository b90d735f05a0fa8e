package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tams-dev/tams-api/internal/dto"
	"github.com/tams-dev/tams-api/internal/models"
	"github.com/tams-dev/tams-api/internal/repository"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
)

type mockSwapRepo struct {
	swaps       map[string]models.SwapRequest
	closed      map[string]models.SwapStatus
	replacement *models.ProctoringAssignment
	prior       models.AssignmentStatus
	acceptErr   error
}

func (m *mockSwapRepo) Create(ctx context.Context, swap *models.SwapRequest) error {
	if m.swaps == nil {
		m.swaps = make(map[string]models.SwapRequest)
	}
	m.swaps[swap.ID] = *swap
	return nil
}

func (m *mockSwapRepo) GetByID(ctx context.Context, id string) (*models.SwapRequest, error) {
	if s, ok := m.swaps[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSwapRepo) ListForTA(ctx context.Context, taID string) ([]models.SwapRequest, error) {
	var out []models.SwapRequest
	for _, s := range m.swaps {
		if s.RequesterID == taID || s.TargetTAID == taID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSwapRepo) Close(ctx context.Context, id string, status models.SwapStatus) (bool, error) {
	s, ok := m.swaps[id]
	if !ok || s.Status != models.SwapStatusOpen {
		return false, nil
	}
	s.Status = status
	m.swaps[id] = s
	if m.closed == nil {
		m.closed = make(map[string]models.SwapStatus)
	}
	m.closed[id] = status
	return true, nil
}

func (m *mockSwapRepo) Accept(ctx context.Context, id string) (*models.ProctoringAssignment, models.AssignmentStatus, error) {
	if m.acceptErr != nil {
		return nil, "", m.acceptErr
	}
	s := m.swaps[id]
	s.Status = models.SwapStatusAccepted
	m.swaps[id] = s
	return m.replacement, m.prior, nil
}

type mockAssignmentReader struct {
	assignments map[string]models.ProctoringAssignment
}

func (m *mockAssignmentReader) GetByID(ctx context.Context, id string) (*models.ProctoringAssignment, error) {
	if a, ok := m.assignments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func openSwap(id string) models.SwapRequest {
	return models.SwapRequest{
		ID:           id,
		AssignmentID: "a1",
		RequesterID:  "ta-1",
		TargetTAID:   "ta-2",
		Status:       models.SwapStatusOpen,
	}
}

func newSwapFixture() (*mockSwapRepo, *mockAssignmentReader, *mockExamReader, *mockTAReader, *stubWorkload, *stubNotifier, *stubAudit) {
	repo := &mockSwapRepo{swaps: map[string]models.SwapRequest{"s1": openSwap("s1")}}
	assignments := &mockAssignmentReader{assignments: map[string]models.ProctoringAssignment{
		"a1": {ID: "a1", ExamID: "e1", TAID: "ta-1", Status: models.AssignmentStatusAccepted},
	}}
	exams := &mockExamReader{exams: map[string]models.Exam{
		"e1": {ID: "e1", CourseCode: "CS101", DurationMinutes: 90, Department: "CS"},
	}}
	users := &mockTAReader{users: map[string]models.User{
		"ta-1": activeTA("ta-1", "CS"),
		"ta-2": activeTA("ta-2", "CS"),
	}}
	return repo, assignments, exams, users, &stubWorkload{}, &stubNotifier{}, &stubAudit{}
}

func TestSwapServiceCreate(t *testing.T) {
	repo, _, exams, _, workload, notify, audit := newSwapFixture()
	assignmentID := uuid.NewString()
	targetID := uuid.NewString()
	assignments := &mockAssignmentReader{assignments: map[string]models.ProctoringAssignment{
		assignmentID: {ID: assignmentID, ExamID: "e1", TAID: "ta-1", Status: models.AssignmentStatusAccepted},
	}}
	users := &mockTAReader{users: map[string]models.User{targetID: activeTA(targetID, "CS")}}
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	swap, err := svc.Create(context.Background(), "ta-1", dto.CreateSwapRequest{
		AssignmentID: assignmentID,
		TargetTAID:   targetID,
		Message:      "covering a clash",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusOpen, swap.Status)
	assert.Equal(t, "ta-1", swap.RequesterID)
	assert.Contains(t, notify.sent, targetID)
}

func TestSwapServiceCreateNotOwner(t *testing.T) {
	repo, _, exams, _, workload, notify, audit := newSwapFixture()
	assignmentID := uuid.NewString()
	targetID := uuid.NewString()
	assignments := &mockAssignmentReader{assignments: map[string]models.ProctoringAssignment{
		assignmentID: {ID: assignmentID, ExamID: "e1", TAID: "ta-9", Status: models.AssignmentStatusAccepted},
	}}
	users := &mockTAReader{users: map[string]models.User{targetID: activeTA(targetID, "CS")}}
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "ta-1", dto.CreateSwapRequest{AssignmentID: assignmentID, TargetTAID: targetID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSwapServiceCreateInactiveAssignment(t *testing.T) {
	repo, _, exams, _, workload, notify, audit := newSwapFixture()
	assignmentID := uuid.NewString()
	targetID := uuid.NewString()
	assignments := &mockAssignmentReader{assignments: map[string]models.ProctoringAssignment{
		assignmentID: {ID: assignmentID, ExamID: "e1", TAID: "ta-1", Status: models.AssignmentStatusSwapped},
	}}
	users := &mockTAReader{users: map[string]models.User{targetID: activeTA(targetID, "CS")}}
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "ta-1", dto.CreateSwapRequest{AssignmentID: assignmentID, TargetTAID: targetID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestSwapServiceAccept(t *testing.T) {
	repo, assignments, exams, users, workload, notify, audit := newSwapFixture()
	repo.replacement = &models.ProctoringAssignment{ID: "a2", ExamID: "e1", TAID: "ta-2", Status: models.AssignmentStatusPending}
	repo.prior = models.AssignmentStatusAccepted
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	replacement, err := svc.Accept(context.Background(), "s1", "ta-2")
	require.NoError(t, err)
	assert.Equal(t, "ta-2", replacement.TAID)
	assert.Equal(t, 90, workload.reduced["ta-1"])
	assert.Contains(t, notify.sent, "ta-1")
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSwapResolve, audit.logs[0].Action)
}

func TestSwapServiceAcceptPendingPriorSkipsWorkload(t *testing.T) {
	repo, assignments, exams, users, workload, notify, audit := newSwapFixture()
	repo.replacement = &models.ProctoringAssignment{ID: "a2", ExamID: "e1", TAID: "ta-2", Status: models.AssignmentStatusPending}
	repo.prior = models.AssignmentStatusPending
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	_, err := svc.Accept(context.Background(), "s1", "ta-2")
	require.NoError(t, err)
	assert.Empty(t, workload.reduced)
}

func TestSwapServiceAcceptWrongActor(t *testing.T) {
	repo, assignments, exams, users, workload, notify, audit := newSwapFixture()
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	_, err := svc.Accept(context.Background(), "s1", "ta-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSwapServiceAcceptNoLongerOpen(t *testing.T) {
	repo, assignments, exams, users, workload, notify, audit := newSwapFixture()
	repo.acceptErr = repository.ErrInvalidTransition
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	_, err := svc.Accept(context.Background(), "s1", "ta-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
}

func TestSwapServiceAcceptTargetBusy(t *testing.T) {
	repo, assignments, exams, users, workload, notify, audit := newSwapFixture()
	repo.acceptErr = repository.ErrDuplicateActiveAssignment
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	_, err := svc.Accept(context.Background(), "s1", "ta-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSwapServiceDecline(t *testing.T) {
	repo, assignments, exams, users, workload, notify, audit := newSwapFixture()
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	require.NoError(t, svc.Decline(context.Background(), "s1", "ta-2"))
	assert.Equal(t, models.SwapStatusDeclined, repo.closed["s1"])
	assert.Contains(t, notify.sent, "ta-1")
}

func TestSwapServiceCancelRequesterOnly(t *testing.T) {
	repo, assignments, exams, users, workload, notify, audit := newSwapFixture()
	svc := NewSwapService(repo, assignments, exams, users, workload, notify, audit, validator.New(), zap.NewNop())

	err := svc.Cancel(context.Background(), "s1", "ta-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Cancel(context.Background(), "s1", "ta-1"))
	assert.Equal(t, models.SwapStatusCanceled, repo.closed["s1"])
}
