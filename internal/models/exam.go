package models

import "time"

// Exam represents a scheduled exam that proctors can be assigned to.
type Exam struct {
	ID              string    `db:"id" json:"id"`
	CourseCode      string    `db:"course_code" json:"course_code"`
	CourseName      string    `db:"course_name" json:"course_name"`
	Date            time.Time `db:"date" json:"date"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Department      string    `db:"department" json:"department"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ExamFilter captures listing criteria for exams.
type ExamFilter struct {
	Department string
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}
