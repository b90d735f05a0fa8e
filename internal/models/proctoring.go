package models

import "time"

// AssignmentStatus captures the lifecycle of a proctoring assignment.
// PENDING and ACCEPTED are the active states; REJECTED and SWAPPED are
// terminal. A replacement is always a new assignment row, never a reuse
// of a terminal one.
type AssignmentStatus string

const (
	AssignmentStatusPending  AssignmentStatus = "PENDING"
	AssignmentStatusAccepted AssignmentStatus = "ACCEPTED"
	AssignmentStatusRejected AssignmentStatus = "REJECTED"
	AssignmentStatusSwapped  AssignmentStatus = "SWAPPED"
)

// Active reports whether the status counts against the
// at-most-one-active-assignment-per-(exam,ta) invariant.
func (s AssignmentStatus) Active() bool {
	return s == AssignmentStatusPending || s == AssignmentStatusAccepted
}

// ProctoringAssignment binds a TA to an exam as a supervisor.
type ProctoringAssignment struct {
	ID         string           `db:"id" json:"id"`
	ExamID     string           `db:"exam_id" json:"exam_id"`
	TAID       string           `db:"ta_id" json:"ta_id"`
	Status     AssignmentStatus `db:"status" json:"status"`
	Department string           `db:"department" json:"department"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// AffectedAssignment pairs an active assignment with its exam, as loaded
// by the leave approval scan.
type AffectedAssignment struct {
	Assignment ProctoringAssignment
	Exam       Exam
}

// AssignmentFilter captures listing criteria for assignments.
type AssignmentFilter struct {
	TAID   string
	ExamID string
	Status *AssignmentStatus
}
