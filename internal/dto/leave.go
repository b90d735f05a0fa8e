package dto

import (
	"time"

	"github.com/tams-dev/tams-api/internal/models"
)

// CreateLeaveRequest is submitted by a TA applying for leave.
type CreateLeaveRequest struct {
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	Reason    string    `json:"reason" validate:"required"`
	FilePath  *string   `json:"file_path,omitempty"`
}

// RejectLeaveRequest carries the mandatory rejection reason.
type RejectLeaveRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ExamOutcome reports how one affected proctoring assignment was handled
// during a leave approval. Failed steps are recorded, not rolled back, so
// callers can see exactly which exams still need manual attention.
type ExamOutcome struct {
	ExamID           string  `json:"exam_id"`
	CourseCode       string  `json:"course_code"`
	AssignmentID     string  `json:"assignment_id"`
	Swapped          bool    `json:"swapped"`
	WorkloadAdjusted bool    `json:"workload_adjusted"`
	ReplacementFound bool    `json:"replacement_found"`
	ReplacementTAID  *string `json:"replacement_ta_id,omitempty"`
	Error            *string `json:"error,omitempty"`
}

// LeaveDecisionResponse is returned by approve/reject endpoints.
type LeaveDecisionResponse struct {
	LeaveRequest *models.LeaveRequest `json:"leave_request"`
	Outcomes     []ExamOutcome        `json:"outcomes,omitempty"`
}
