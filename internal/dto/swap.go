package dto

// CreateSwapRequest proposes handing an assignment to a specific TA.
type CreateSwapRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required,uuid4"`
	TargetTAID   string `json:"target_ta_id" validate:"required,uuid4"`
	Message      string `json:"message"`
}
