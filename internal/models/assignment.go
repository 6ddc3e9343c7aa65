package models

import "time"

// Assignment is coursework attached to a course.
type Assignment struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	MaxScore    float64   `db:"max_score" json:"max_score"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// IsPastDue reports whether the deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}

// AssignmentSubmission is a student's work product for an assignment.
// At most one row exists per (assignment, student).
type AssignmentSubmission struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Content      string     `db:"content" json:"content"`
	FileURL      *string    `db:"file_url" json:"file_url,omitempty"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	Score        *float64   `db:"score" json:"score,omitempty"`
	Feedback     *string    `db:"feedback" json:"feedback,omitempty"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
	GradedBy     *string    `db:"graded_by" json:"graded_by,omitempty"`
}

// AssignmentDetail pairs an assignment with the requesting student's
// submission and its derived state.
type AssignmentDetail struct {
	Assignment
	Submission      *AssignmentSubmission `json:"submission,omitempty"`
	SubmissionState SubmissionState       `json:"submission_state"`
	IsOverdue       bool                  `json:"is_overdue"`
}
