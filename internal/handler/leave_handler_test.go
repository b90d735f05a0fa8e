package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tams-dev/tams-api/internal/dto"
	"github.com/tams-dev/tams-api/internal/middleware"
	"github.com/tams-dev/tams-api/internal/models"
	"github.com/tams-dev/tams-api/internal/service"
	"github.com/tams-dev/tams-api/pkg/response"
)

type leaveRepoStub struct {
	leaves map[string]models.LeaveRequest
}

func (s *leaveRepoStub) Create(ctx context.Context, req *models.LeaveRequest) error {
	if s.leaves == nil {
		s.leaves = make(map[string]models.LeaveRequest)
	}
	s.leaves[req.ID] = *req
	return nil
}

func (s *leaveRepoStub) GetByID(ctx context.Context, id string) (*models.LeaveRequest, error) {
	if l, ok := s.leaves[id]; ok {
		return &l, nil
	}
	return nil, sql.ErrNoRows
}

func (s *leaveRepoStub) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, error) {
	var out []models.LeaveRequest
	for _, l := range s.leaves {
		out = append(out, l)
	}
	return out, nil
}

func (s *leaveRepoStub) Decide(ctx context.Context, id string, status models.LeaveStatus, rejectionReason *string, reviewerID string) (bool, error) {
	l, ok := s.leaves[id]
	if !ok || l.Status != models.LeaveStatusWaiting {
		return false, nil
	}
	l.Status = status
	s.leaves[id] = l
	return true, nil
}

type assignmentListerStub struct{}

func (assignmentListerStub) ListActiveInWindow(ctx context.Context, taID string, start, end time.Time) ([]models.AffectedAssignment, error) {
	return nil, nil
}

func (assignmentListerStub) Transition(ctx context.Context, id string, allowedFrom []models.AssignmentStatus, to models.AssignmentStatus) (models.AssignmentStatus, error) {
	return models.AssignmentStatusPending, nil
}

type replacementFinderStub struct{}

func (replacementFinderStub) FindReplacement(ctx context.Context, exam *models.Exam, excludeTAID string) (*models.ProctoringAssignment, bool, error) {
	return nil, false, nil
}

type instructorListerStub struct{}

func (instructorListerStub) ListInstructors(ctx context.Context, examID string) ([]models.User, error) {
	return nil, nil
}

type workloadStub struct{}

func (workloadStub) Credit(ctx context.Context, taID string, minutes int) error { return nil }
func (workloadStub) Reduce(ctx context.Context, taID string, minutes int) error { return nil }

type notifierStub struct{}

func (notifierStub) Notify(ctx context.Context, recipientID, subject, message string) error {
	return nil
}

type auditStub struct{}

func (auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

func newLeaveHandler(repo *leaveRepoStub) *LeaveHandler {
	svc := service.NewLeaveService(repo, assignmentListerStub{}, replacementFinderStub{}, instructorListerStub{}, workloadStub{}, notifierStub{}, auditStub{}, nil, nil)
	return NewLeaveHandler(svc, nil)
}

func waitingLeaveFixture(id string) models.LeaveRequest {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	return models.LeaveRequest{
		ID:        id,
		TAID:      "ta-1",
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 3),
		Reason:    "medical",
		Status:    models.LeaveStatusWaiting,
	}
}

func TestLeaveHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newLeaveHandler(&leaveRepoStub{})

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	payload, _ := json.Marshal(dto.CreateLeaveRequest{StartDate: start, EndDate: start.AddDate(0, 0, 2), Reason: "medical"})
	c, w := newGinContext(http.MethodPost, "/leave-requests", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "ta-1", Role: models.RoleTA})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestLeaveHandlerApprove(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &leaveRepoStub{leaves: map[string]models.LeaveRequest{"l1": waitingLeaveFixture("l1")}}
	handler := newLeaveHandler(repo)

	c, w := newGinContext(http.MethodPost, "/leave-requests/l1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "l1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "dean-1", Role: models.RoleDean})

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Nil(t, envelope.Error)
}

func decideRoute(handler *LeaveHandler, claims *models.JWTClaims) *gin.Engine {
	r := gin.New()
	r.POST("/leave-requests/:id/approve", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, claims)
	}, middleware.RequireRoles(models.RoleInstructor, models.RoleSecretary, models.RoleDean), handler.Approve)
	return r
}

func TestLeaveHandlerApproveAsInstructor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &leaveRepoStub{leaves: map[string]models.LeaveRequest{"l1": waitingLeaveFixture("l1")}}
	r := decideRoute(newLeaveHandler(repo), &models.JWTClaims{UserID: "inst-1", Role: models.RoleInstructor})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/leave-requests/l1/approve", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.LeaveStatusApproved, repo.leaves["l1"].Status)
}

func TestLeaveHandlerApproveForbiddenForTA(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &leaveRepoStub{leaves: map[string]models.LeaveRequest{"l1": waitingLeaveFixture("l1")}}
	r := decideRoute(newLeaveHandler(repo), &models.JWTClaims{UserID: "ta-1", Role: models.RoleTA})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/leave-requests/l1/approve", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, models.LeaveStatusWaiting, repo.leaves["l1"].Status)
}

func TestLeaveHandlerApproveAlreadyDecided(t *testing.T) {
	gin.SetMode(gin.TestMode)
	decided := waitingLeaveFixture("l1")
	decided.Status = models.LeaveStatusApproved
	repo := &leaveRepoStub{leaves: map[string]models.LeaveRequest{"l1": decided}}
	handler := newLeaveHandler(repo)

	c, w := newGinContext(http.MethodPost, "/leave-requests/l1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "l1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "dean-1", Role: models.RoleDean})

	handler.Approve(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestLeaveHandlerRejectMissingReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &leaveRepoStub{leaves: map[string]models.LeaveRequest{"l1": waitingLeaveFixture("l1")}}
	handler := newLeaveHandler(repo)

	c, w := newGinContext(http.MethodPost, "/leave-requests/l1/reject", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "l1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "sec-1", Role: models.RoleSecretary})

	handler.Reject(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaveHandlerReject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &leaveRepoStub{leaves: map[string]models.LeaveRequest{"l1": waitingLeaveFixture("l1")}}
	handler := newLeaveHandler(repo)

	c, w := newGinContext(http.MethodPost, "/leave-requests/l1/reject", []byte(`{"reason":"exam week"}`))
	c.Params = gin.Params{{Key: "id", Value: "l1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "sec-1", Role: models.RoleSecretary})

	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLeaveHandlerCreateUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newLeaveHandler(&leaveRepoStub{})

	c, w := newGinContext(http.MethodPost, "/leave-requests", nil)
	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
