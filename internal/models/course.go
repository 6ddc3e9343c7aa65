package models

import "time"

// CourseStatus is the lifecycle state of a course.
type CourseStatus string

const (
	CourseStatusActive    CourseStatus = "ACTIVE"
	CourseStatusInactive  CourseStatus = "INACTIVE"
	CourseStatusCompleted CourseStatus = "COMPLETED"
	CourseStatusCancelled CourseStatus = "CANCELLED"
)

// Valid reports whether the status is one of the closed set.
func (s CourseStatus) Valid() bool {
	switch s {
	case CourseStatusActive, CourseStatusInactive, CourseStatusCompleted, CourseStatusCancelled:
		return true
	default:
		return false
	}
}

// Course represents a course owned by a lecturer.
type Course struct {
	ID          string       `db:"id" json:"id"`
	Code        string       `db:"code" json:"code"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	LecturerID  string       `db:"lecturer_id" json:"lecturer_id"`
	MaxStudents int          `db:"max_students" json:"max_students"`
	Status      CourseStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// CourseDetail augments a course with roster context.
type CourseDetail struct {
	Course
	LecturerName  string `db:"lecturer_name" json:"lecturer_name"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
}

// Enrollment is a student's membership in a course.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// CourseFilter captures listing criteria for courses.
type CourseFilter struct {
	LecturerID string
	Status     CourseStatus
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
