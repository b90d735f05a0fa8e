package dto

import (
	"time"

	"github.com/tams-dev/tams-api/internal/models"
)

// ReportRequest asks for an asynchronous export.
type ReportRequest struct {
	Type       models.ReportType   `json:"type" validate:"required,oneof=proctoring_schedule leave_summary"`
	Format     models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	Department string              `json:"department,omitempty"`
	From       *time.Time          `json:"from,omitempty"`
	To         *time.Time          `json:"to,omitempty"`
}

// ReportJobResponse acknowledges a queued job.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress and download location.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
