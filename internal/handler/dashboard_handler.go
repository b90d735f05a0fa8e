package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tams-dev/tams-api/internal/middleware"
	"github.com/tams-dev/tams-api/internal/service"
	appErrors "github.com/tams-dev/tams-api/pkg/errors"
	"github.com/tams-dev/tams-api/pkg/response"
)

// DashboardHandler exposes the landing page summary endpoint.
type DashboardHandler struct {
	dashboard *service.DashboardService
	metrics   *service.MetricsService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService, metrics *service.MetricsService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, metrics: metrics}
}

// Summary godoc
// @Summary Dashboard counters for the current user
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, cacheHit, err := h.dashboard.Summary(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ObserveCache(cacheHit)
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
