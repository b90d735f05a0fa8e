package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tams-dev/tams-api/internal/service"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
	"github.com/tams-dev/tams-api/pkg/response"
)

// WorkloadHandler exposes TA workload endpoints.
type WorkloadHandler struct {
	workload *service.WorkloadService
}

// NewWorkloadHandler constructs WorkloadHandler.
func NewWorkloadHandler(workload *service.WorkloadService) *WorkloadHandler {
	return &WorkloadHandler{workload: workload}
}

// Mine godoc
// @Summary My workload balance
// @Tags Workload
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /workload/mine [get]
func (h *WorkloadHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	workload, err := h.workload.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workload, nil)
}

// Get godoc
// @Summary Workload balance for a TA
// @Tags Workload
// @Produce json
// @Param id path string true "TA ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /workload/{id} [get]
func (h *WorkloadHandler) Get(c *gin.Context) {
	workload, err := h.workload.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workload, nil)
}
