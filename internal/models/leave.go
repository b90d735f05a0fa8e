package models

import "time"

// LeaveStatus captures the lifecycle of a leave request. A request moves
// from WAITING to exactly one terminal state and is immutable afterwards.
type LeaveStatus string

const (
	LeaveStatusWaiting  LeaveStatus = "WAITING"
	LeaveStatusApproved LeaveStatus = "APPROVED"
	LeaveStatusRejected LeaveStatus = "REJECTED"
)

// Terminal reports whether the status admits no further transitions.
func (s LeaveStatus) Terminal() bool {
	return s == LeaveStatusApproved || s == LeaveStatusRejected
}

// LeaveRequest is a TA's application to be excused from duties over a date range.
type LeaveRequest struct {
	ID              string      `db:"id" json:"id"`
	TAID            string      `db:"ta_id" json:"ta_id"`
	StartDate       time.Time   `db:"start_date" json:"start_date"`
	EndDate         time.Time   `db:"end_date" json:"end_date"`
	Reason          string      `db:"reason" json:"reason"`
	FilePath        *string     `db:"file_path" json:"file_path,omitempty"`
	Status          LeaveStatus `db:"status" json:"status"`
	RejectionReason *string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ReviewedBy      *string     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time  `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// Covers reports whether the given date falls inside the leave window,
// bounds inclusive. Comparison is done on calendar days in UTC.
func (l LeaveRequest) Covers(date time.Time) bool {
	day := date.UTC().Truncate(24 * time.Hour)
	start := l.StartDate.UTC().Truncate(24 * time.Hour)
	end := l.EndDate.UTC().Truncate(24 * time.Hour)
	return !day.Before(start) && !day.After(end)
}

// LeaveFilter captures listing criteria for leave requests.
type LeaveFilter struct {
	TAID       string
	Status     *LeaveStatus
	Department string
	Page       int
	PageSize   int
}
