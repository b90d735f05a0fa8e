package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tams-dev/tams-api/internal/dto"
	"github.com/tams-dev/tams-api/internal/models"
	"github.com/tams-dev/tams-api/internal/repository"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
)

type stubNotifier struct {
	sent     []string
	subjects []string
	err      error
}

func (s *stubNotifier) Notify(ctx context.Context, recipientID, subject, message string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, recipientID)
	s.subjects = append(s.subjects, subject)
	return nil
}

type stubAudit struct {
	logs []models.AuditLog
}

func (s *stubAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

type stubWorkload struct {
	credited map[string]int
	reduced  map[string]int
	err      error
}

func (s *stubWorkload) Credit(ctx context.Context, taID string, minutes int) error {
	if s.err != nil {
		return s.err
	}
	if s.credited == nil {
		s.credited = make(map[string]int)
	}
	s.credited[taID] += minutes
	return nil
}

func (s *stubWorkload) Reduce(ctx context.Context, taID string, minutes int) error {
	if s.err != nil {
		return s.err
	}
	if s.reduced == nil {
		s.reduced = make(map[string]int)
	}
	s.reduced[taID] += minutes
	return nil
}

type mockLeaveRepo struct {
	leaves  map[string]models.LeaveRequest
	decided map[string]bool
}

func (m *mockLeaveRepo) Create(ctx context.Context, req *models.LeaveRequest) error {
	if m.leaves == nil {
		m.leaves = make(map[string]models.LeaveRequest)
	}
	m.leaves[req.ID] = *req
	return nil
}

func (m *mockLeaveRepo) GetByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	if l, ok := m.leaves[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLeaveRepo) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, error) {
	var out []models.LeaveRequest
	for _, l := range m.leaves {
		out = append(out, l)
	}
	return out, nil
}

func (m *mockLeaveRepo) Decide(ctx context.Context, id string, status models.LeaveStatus, rejectionReason *string, reviewerID string) (bool, error) {
	l, ok := m.leaves[id]
	if !ok || l.Status != models.LeaveStatusWaiting {
		return false, nil
	}
	l.Status = status
	l.RejectionReason = rejectionReason
	l.ReviewedBy = &reviewerID
	m.leaves[id] = l
	if m.decided == nil {
		m.decided = make(map[string]bool)
	}
	m.decided[id] = true
	return true, nil
}

type mockAssignmentLister struct {
	affected      []models.AffectedAssignment
	listErr       error
	transitionErr map[string]error
	transitions   map[string]models.AssignmentStatus
	prior         map[string]models.AssignmentStatus
}

func (m *mockAssignmentLister) ListActiveInWindow(ctx context.Context, taID string, start, end time.Time) ([]models.AffectedAssignment, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.affected, nil
}

func (m *mockAssignmentLister) Transition(ctx context.Context, id string, allowedFrom []models.AssignmentStatus, to models.AssignmentStatus) (models.AssignmentStatus, error) {
	if err, ok := m.transitionErr[id]; ok {
		return "", err
	}
	if m.transitions == nil {
		m.transitions = make(map[string]models.AssignmentStatus)
	}
	m.transitions[id] = to
	if p, ok := m.prior[id]; ok {
		return p, nil
	}
	return models.AssignmentStatusPending, nil
}

type mockReplacementFinder struct {
	replacement *models.ProctoringAssignment
	found       bool
	err         error
	calls       int
}

func (m *mockReplacementFinder) FindReplacement(ctx context.Context, exam *models.Exam, excludeTAID string) (*models.ProctoringAssignment, bool, error) {
	m.calls++
	return m.replacement, m.found, m.err
}

type stubInstructorLister struct {
	instructors map[string][]models.User
	calls       int
	err         error
}

func (s *stubInstructorLister) ListInstructors(ctx context.Context, examID string) ([]models.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.instructors[examID], nil
}

func waitingLeave(id, taID string) models.LeaveRequest {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return models.LeaveRequest{
		ID:        id,
		TAID:      taID,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 4),
		Reason:    "conference travel",
		Status:    models.LeaveStatusWaiting,
	}
}

func TestLeaveServiceSubmit(t *testing.T) {
	repo := &mockLeaveRepo{}
	svc := NewLeaveService(repo, &mockAssignmentLister{}, &mockReplacementFinder{}, &stubInstructorLister{}, &stubWorkload{}, &stubNotifier{}, &stubAudit{}, validator.New(), zap.NewNop())

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	leave, err := svc.Submit(context.Background(), "ta-1", dto.CreateLeaveRequest{
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 2),
		Reason:    "medical",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusWaiting, leave.Status)
	assert.Equal(t, "ta-1", leave.TAID)
	assert.Contains(t, repo.leaves, leave.ID)
}

func TestLeaveServiceSubmitInvertedWindow(t *testing.T) {
	svc := NewLeaveService(&mockLeaveRepo{}, &mockAssignmentLister{}, &mockReplacementFinder{}, &stubInstructorLister{}, &stubWorkload{}, &stubNotifier{}, &stubAudit{}, validator.New(), zap.NewNop())

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.Submit(context.Background(), "ta-1", dto.CreateLeaveRequest{
		StartDate: start,
		EndDate:   start.AddDate(0, 0, -1),
		Reason:    "medical",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLeaveServiceApprove(t *testing.T) {
	repo := &mockLeaveRepo{leaves: map[string]models.LeaveRequest{"l1": waitingLeave("l1", "ta-1")}}
	exam := models.Exam{ID: "e1", CourseCode: "MATH202", DurationMinutes: 120, Department: "MATH"}
	assignments := &mockAssignmentLister{
		affected: []models.AffectedAssignment{{
			Assignment: models.ProctoringAssignment{ID: "a1", ExamID: "e1", TAID: "ta-1", Status: models.AssignmentStatusAccepted},
			Exam:       exam,
		}},
		prior: map[string]models.AssignmentStatus{"a1": models.AssignmentStatusAccepted},
	}
	replacement := &mockReplacementFinder{
		replacement: &models.ProctoringAssignment{ID: "a2", ExamID: "e1", TAID: "ta-2"},
		found:       true,
	}
	instructors := &stubInstructorLister{}
	workload := &stubWorkload{}
	notify := &stubNotifier{}
	audit := &stubAudit{}
	svc := NewLeaveService(repo, assignments, replacement, instructors, workload, notify, audit, validator.New(), zap.NewNop())

	resp, err := svc.Approve(context.Background(), "l1", "dean-1")
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusApproved, resp.LeaveRequest.Status)
	require.Len(t, resp.Outcomes, 1)

	outcome := resp.Outcomes[0]
	assert.True(t, outcome.Swapped)
	assert.True(t, outcome.WorkloadAdjusted)
	assert.True(t, outcome.ReplacementFound)
	require.NotNil(t, outcome.ReplacementTAID)
	assert.Equal(t, "ta-2", *outcome.ReplacementTAID)

	assert.Equal(t, models.AssignmentStatusSwapped, assignments.transitions["a1"])
	assert.Equal(t, 120, workload.reduced["ta-1"])

	// Approval message first, then the per-exam removal; the filled slot
	// needs no instructor escalation.
	require.Equal(t, []string{"ta-1", "ta-1"}, notify.sent)
	assert.Equal(t, "Leave request approved", notify.subjects[0])
	assert.Equal(t, "Proctoring duty removed", notify.subjects[1])
	assert.Zero(t, instructors.calls)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLeaveApprove, audit.logs[0].Action)
}

func TestLeaveServiceApproveUnfilledNotifiesInstructors(t *testing.T) {
	repo := &mockLeaveRepo{leaves: map[string]models.LeaveRequest{"l1": waitingLeave("l1", "ta-1")}}
	assignments := &mockAssignmentLister{
		affected: []models.AffectedAssignment{{
			Assignment: models.ProctoringAssignment{ID: "a1", ExamID: "e1", TAID: "ta-1", Status: models.AssignmentStatusAccepted},
			Exam:       models.Exam{ID: "e1", CourseCode: "MATH202", DurationMinutes: 120},
		}},
		prior: map[string]models.AssignmentStatus{"a1": models.AssignmentStatusAccepted},
	}
	instructors := &stubInstructorLister{instructors: map[string][]models.User{
		"e1": {{ID: "inst-1"}, {ID: "inst-2"}},
	}}
	notify := &stubNotifier{}
	svc := NewLeaveService(repo, assignments, &mockReplacementFinder{}, instructors, &stubWorkload{}, notify, &stubAudit{}, validator.New(), zap.NewNop())

	resp, err := svc.Approve(context.Background(), "l1", "dean-1")
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 1)
	assert.True(t, resp.Outcomes[0].Swapped)
	assert.False(t, resp.Outcomes[0].ReplacementFound)

	// Approval + removal to the TA, then one message per instructor of
	// the exam left without a proctor.
	require.Equal(t, []string{"ta-1", "ta-1", "inst-1", "inst-2"}, notify.sent)
	assert.Equal(t, "Proctoring slot unfilled", notify.subjects[2])
	assert.Equal(t, 1, instructors.calls)
}

func TestLeaveServiceApproveAlreadyDecided(t *testing.T) {
	decided := waitingLeave("l1", "ta-1")
	decided.Status = models.LeaveStatusApproved
	repo := &mockLeaveRepo{leaves: map[string]models.LeaveRequest{"l1": decided}}
	replacement := &mockReplacementFinder{}
	svc := NewLeaveService(repo, &mockAssignmentLister{}, replacement, &stubInstructorLister{}, &stubWorkload{}, &stubNotifier{}, &stubAudit{}, validator.New(), zap.NewNop())

	_, err := svc.Approve(context.Background(), "l1", "dean-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateConflict.Code, appErrors.FromError(err).Code)
	assert.Zero(t, replacement.calls)
}

func TestLeaveServiceApprovePendingPriorSkipsWorkload(t *testing.T) {
	repo := &mockLeaveRepo{leaves: map[string]models.LeaveRequest{"l1": waitingLeave("l1", "ta-1")}}
	assignments := &mockAssignmentLister{
		affected: []models.AffectedAssignment{{
			Assignment: models.ProctoringAssignment{ID: "a1", ExamID: "e1", TAID: "ta-1", Status: models.AssignmentStatusPending},
			Exam:       models.Exam{ID: "e1", CourseCode: "CS101", DurationMinutes: 90},
		}},
		prior: map[string]models.AssignmentStatus{"a1": models.AssignmentStatusPending},
	}
	workload := &stubWorkload{}
	svc := NewLeaveService(repo, assignments, &mockReplacementFinder{}, &stubInstructorLister{}, workload, &stubNotifier{}, &stubAudit{}, validator.New(), zap.NewNop())

	resp, err := svc.Approve(context.Background(), "l1", "dean-1")
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 1)
	assert.True(t, resp.Outcomes[0].Swapped)
	assert.False(t, resp.Outcomes[0].WorkloadAdjusted)
	assert.Empty(t, workload.reduced)
}

func TestLeaveServiceApproveContinuesPastFailedExam(t *testing.T) {
	repo := &mockLeaveRepo{leaves: map[string]models.LeaveRequest{"l1": waitingLeave("l1", "ta-1")}}
	assignments := &mockAssignmentLister{
		affected: []models.AffectedAssignment{
			{
				Assignment: models.ProctoringAssignment{ID: "a1", ExamID: "e1", TAID: "ta-1"},
				Exam:       models.Exam{ID: "e1", CourseCode: "CS101", DurationMinutes: 90},
			},
			{
				Assignment: models.ProctoringAssignment{ID: "a2", ExamID: "e2", TAID: "ta-1"},
				Exam:       models.Exam{ID: "e2", CourseCode: "CS102", DurationMinutes: 60},
			},
		},
		transitionErr: map[string]error{"a1": repository.ErrInvalidTransition},
	}
	svc := NewLeaveService(repo, assignments, &mockReplacementFinder{found: true, replacement: &models.ProctoringAssignment{TAID: "ta-3"}}, &stubInstructorLister{}, &stubWorkload{}, &stubNotifier{}, &stubAudit{}, validator.New(), zap.NewNop())

	resp, err := svc.Approve(context.Background(), "l1", "dean-1")
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 2)

	require.NotNil(t, resp.Outcomes[0].Error)
	assert.Equal(t, "assignment no longer active", *resp.Outcomes[0].Error)
	assert.False(t, resp.Outcomes[0].Swapped)

	assert.True(t, resp.Outcomes[1].Swapped)
	assert.True(t, resp.Outcomes[1].ReplacementFound)
}

func TestLeaveServiceApproveReplacementSearchError(t *testing.T) {
	repo := &mockLeaveRepo{leaves: map[string]models.LeaveRequest{"l1": waitingLeave("l1", "ta-1")}}
	assignments := &mockAssignmentLister{
		affected: []models.AffectedAssignment{{
			Assignment: models.ProctoringAssignment{ID: "a1", ExamID: "e1", TAID: "ta-1"},
			Exam:       models.Exam{ID: "e1", CourseCode: "CS101"},
		}},
	}
	instructors := &stubInstructorLister{instructors: map[string][]models.User{"e1": {{ID: "inst-1"}}}}
	notify := &stubNotifier{}
	svc := NewLeaveService(repo, assignments, &mockReplacementFinder{err: errors.New("db down")}, instructors, &stubWorkload{}, notify, &stubAudit{}, validator.New(), zap.NewNop())

	resp, err := svc.Approve(context.Background(), "l1", "dean-1")
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 1)
	assert.True(t, resp.Outcomes[0].Swapped)
	assert.False(t, resp.Outcomes[0].ReplacementFound)
	require.NotNil(t, resp.Outcomes[0].Error)
	assert.Equal(t, "replacement search failed", *resp.Outcomes[0].Error)

	// A failed search leaves the slot unfilled, so instructors still hear
	// about it.
	assert.Contains(t, notify.sent, "inst-1")
}

func TestLeaveServiceReject(t *testing.T) {
	repo := &mockLeaveRepo{leaves: map[string]models.LeaveRequest{"l1": waitingLeave("l1", "ta-1")}}
	assignments := &mockAssignmentLister{}
	notify := &stubNotifier{}
	audit := &stubAudit{}
	svc := NewLeaveService(repo, assignments, &mockReplacementFinder{}, &stubInstructorLister{}, &stubWorkload{}, notify, audit, validator.New(), zap.NewNop())

	resp, err := svc.Reject(context.Background(), "l1", "sec-1", dto.RejectLeaveRequest{Reason: "exam week"})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusRejected, resp.LeaveRequest.Status)
	require.NotNil(t, resp.LeaveRequest.RejectionReason)
	assert.Equal(t, "exam week", *resp.LeaveRequest.RejectionReason)
	assert.Empty(t, resp.Outcomes)
	assert.Empty(t, assignments.transitions)
	assert.Contains(t, notify.sent, "ta-1")
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLeaveReject, audit.logs[0].Action)
}

func TestLeaveServiceRejectRequiresReason(t *testing.T) {
	repo := &mockLeaveRepo{leaves: map[string]models.LeaveRequest{"l1": waitingLeave("l1", "ta-1")}}
	svc := NewLeaveService(repo, &mockAssignmentLister{}, &mockReplacementFinder{}, &stubInstructorLister{}, &stubWorkload{}, &stubNotifier{}, &stubAudit{}, validator.New(), zap.NewNop())

	_, err := svc.Reject(context.Background(), "l1", "sec-1", dto.RejectLeaveRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.LeaveStatusWaiting, repo.leaves["l1"].Status)
}

func TestLeaveServiceGetOwnership(t *testing.T) {
	repo := &mockLeaveRepo{leaves: map[string]models.LeaveRequest{"l1": waitingLeave("l1", "ta-1")}}
	svc := NewLeaveService(repo, &mockAssignmentLister{}, &mockReplacementFinder{}, &stubInstructorLister{}, &stubWorkload{}, &stubNotifier{}, &stubAudit{}, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), "l1", "ta-2", models.RoleTA)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	leave, err := svc.Get(context.Background(), "l1", "sec-1", models.RoleSecretary)
	require.NoError(t, err)
	assert.Equal(t, "l1", leave.ID)
}
