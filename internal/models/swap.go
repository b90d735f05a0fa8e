package models

import "time"

// SwapStatus captures the lifecycle of a TA-initiated swap request. This
// is distinct from the leave-driven reassignment flow: the requester
// proposes a specific target TA who accepts or declines.
type SwapStatus string

const (
	SwapStatusOpen     SwapStatus = "OPEN"
	SwapStatusAccepted SwapStatus = "ACCEPTED"
	SwapStatusDeclined SwapStatus = "DECLINED"
	SwapStatusCanceled SwapStatus = "CANCELED"
)

// SwapRequest is a TA-initiated proposal to hand a proctoring assignment
// to another TA.
type SwapRequest struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	RequesterID  string     `db:"requester_id" json:"requester_id"`
	TargetTAID   string     `db:"target_ta_id" json:"target_ta_id"`
	Message      string     `db:"message" json:"message"`
	Status       SwapStatus `db:"status" json:"status"`
	ResolvedAt   *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
