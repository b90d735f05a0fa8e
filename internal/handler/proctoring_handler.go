package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tams-dev/tams-api/internal/dto"
	"github.com/tams-dev/tams-api/internal/service"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
	"github.com/tams-dev/tams-api/pkg/response"
)

// ProctoringHandler exposes proctoring assignment endpoints.
type ProctoringHandler struct {
	proctoring *service.ProctoringService
}

// NewProctoringHandler constructs ProctoringHandler.
func NewProctoringHandler(proctoring *service.ProctoringService) *ProctoringHandler {
	return &ProctoringHandler{proctoring: proctoring}
}

// Assign godoc
// @Summary Assign TAs to an exam
// @Tags Proctoring
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body dto.AssignProctorsRequest true "TA ids"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /exams/{id}/proctors [post]
func (h *ProctoringHandler) Assign(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AssignProctorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignments, err := h.proctoring.AssignProctors(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignments)
}

// Mine godoc
// @Summary List my proctoring assignments
// @Tags Proctoring
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/mine [get]
func (h *ProctoringHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.proctoring.MyAssignments(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Accept godoc
// @Summary Accept a pending assignment
// @Tags Proctoring
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/{id}/accept [post]
func (h *ProctoringHandler) Accept(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	assignment, err := h.proctoring.Accept(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Reject godoc
// @Summary Reject a pending assignment
// @Tags Proctoring
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/{id}/reject [post]
func (h *ProctoringHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	assignment, err := h.proctoring.Reject(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
