package dto

import (
	"time"

	"github.com/tams-dev/tams-api/internal/models"
)

// AssignmentItem is a proctoring assignment joined with its exam, as shown
// on a TA's duty list.
type AssignmentItem struct {
	ID              string                  `db:"id" json:"id"`
	ExamID          string                  `db:"exam_id" json:"exam_id"`
	TAID            string                  `db:"ta_id" json:"ta_id"`
	Status          models.AssignmentStatus `db:"status" json:"status"`
	Department      string                  `db:"department" json:"department"`
	CourseCode      string                  `db:"course_code" json:"course_code"`
	CourseName      string                  `db:"course_name" json:"course_name"`
	ExamDate        time.Time               `db:"exam_date" json:"exam_date"`
	DurationMinutes int                     `db:"duration_minutes" json:"duration_minutes"`
}
