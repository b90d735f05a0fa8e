package dto

import "time"

// CreateExamRequest describes a new exam.
type CreateExamRequest struct {
	CourseCode      string    `json:"course_code" validate:"required"`
	CourseName      string    `json:"course_name" validate:"required"`
	Date            time.Time `json:"date" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	Department      string    `json:"department" validate:"required"`
	InstructorIDs   []string  `json:"instructor_ids" validate:"required,min=1,dive,uuid4"`
}

// AssignProctorsRequest attaches TAs to an exam as PENDING proctors.
type AssignProctorsRequest struct {
	TAIDs []string `json:"ta_ids" validate:"required,min=1,dive,uuid4"`
}
