package models

import (
	"time"

	"github.com/lib/pq"
)

// PresentationType distinguishes individual from group presentations.
type PresentationType string

const (
	PresentationTypeIndividual PresentationType = "INDIVIDUAL"
	PresentationTypeGroup      PresentationType = "GROUP"
)

// Valid reports whether the type is one of the closed set.
func (t PresentationType) Valid() bool {
	switch t {
	case PresentationTypeIndividual, PresentationTypeGroup:
		return true
	default:
		return false
	}
}

// PresentationStatus is the lifecycle state of a presentation.
type PresentationStatus string

const (
	PresentationStatusDraft     PresentationStatus = "DRAFT"
	PresentationStatusPublished PresentationStatus = "PUBLISHED"
	PresentationStatusActive    PresentationStatus = "ACTIVE"
	PresentationStatusCompleted PresentationStatus = "COMPLETED"
	PresentationStatusCancelled PresentationStatus = "CANCELLED"
)

// Valid reports whether the status is one of the closed set.
func (s PresentationStatus) Valid() bool {
	switch s {
	case PresentationStatusDraft, PresentationStatusPublished, PresentationStatusActive,
		PresentationStatusCompleted, PresentationStatusCancelled:
		return true
	default:
		return false
	}
}

// Notifiable reports whether the status triggers fan-out on create.
func (s PresentationStatus) Notifiable() bool {
	return s == PresentationStatusPublished || s == PresentationStatusActive
}

// NotificationMode selects the audience of a presentation's notifications.
type NotificationMode string

const (
	NotificationModeAll      NotificationMode = "ALL"
	NotificationModeSelected NotificationMode = "SELECTED"
	NotificationModeEnrolled NotificationMode = "ENROLLED"
)

// Valid reports whether the mode is one of the closed set.
func (m NotificationMode) Valid() bool {
	switch m {
	case NotificationModeAll, NotificationModeSelected, NotificationModeEnrolled:
		return true
	default:
		return false
	}
}

// PresentationEvent identifies the lifecycle action behind a fan-out.
type PresentationEvent string

const (
	PresentationEventCreated   PresentationEvent = "CREATED"
	PresentationEventUpdated   PresentationEvent = "UPDATED"
	PresentationEventCancelled PresentationEvent = "CANCELLED"
)

// Presentation is a scheduled, gradable presentation scoped to a course.
type Presentation struct {
	ID               string             `db:"id" json:"id"`
	CourseID         string             `db:"course_id" json:"course_id"`
	LecturerID       string             `db:"lecturer_id" json:"lecturer_id"`
	Title            string             `db:"title" json:"title"`
	Description      string             `db:"description" json:"description"`
	Type             PresentationType   `db:"type" json:"type"`
	DurationMinutes  int                `db:"duration_minutes" json:"duration_minutes"`
	AssignedDate     time.Time          `db:"assigned_date" json:"assigned_date"`
	DueDate          time.Time          `db:"due_date" json:"due_date"`
	PresentationDate *time.Time         `db:"presentation_date" json:"presentation_date,omitempty"`
	AllowLate        bool               `db:"allow_late" json:"allow_late"`
	LatePenalty      float64            `db:"late_penalty" json:"late_penalty"`
	NotificationMode NotificationMode   `db:"notification_mode" json:"notification_mode"`
	Status           PresentationStatus `db:"status" json:"status"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

// GradingCriterion is one weighted rubric entry. Weights should sum to 100
// but this is not enforced.
type GradingCriterion struct {
	ID             string  `db:"id" json:"id"`
	PresentationID string  `db:"presentation_id" json:"-"`
	Name           string  `db:"name" json:"name"`
	Weight         float64 `db:"weight" json:"weight"`
}

// PresentationSubmission is a student's work product for a presentation.
// At most one row exists per (presentation, student).
type PresentationSubmission struct {
	ID             string     `db:"id" json:"id"`
	PresentationID string     `db:"presentation_id" json:"presentation_id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	Content        string     `db:"content" json:"content"`
	FileURL        *string    `db:"file_url" json:"file_url,omitempty"`
	SubmittedAt    time.Time  `db:"submitted_at" json:"submitted_at"`
	Late           bool       `db:"late" json:"late"`
	Score          *float64   `db:"score" json:"score,omitempty"`
	Feedback       *string    `db:"feedback" json:"feedback,omitempty"`
	GradedAt       *time.Time `db:"graded_at" json:"graded_at,omitempty"`
	GradedBy       *string    `db:"graded_by" json:"graded_by,omitempty"`
}

// PresentationDetail pairs a presentation with its rubric, allow-list and
// course context.
type PresentationDetail struct {
	Presentation
	CourseCode       string             `db:"course_code" json:"course_code"`
	CourseTitle      string             `db:"course_title" json:"course_title"`
	LecturerName     string             `db:"lecturer_name" json:"lecturer_name"`
	Criteria         []GradingCriterion `json:"criteria"`
	SelectedStudents []string           `json:"selected_students"`
}

// StudentPresentation is the student-facing projection with derived fields.
type StudentPresentation struct {
	PresentationDetail
	SubmissionState SubmissionState         `json:"submission_state"`
	HasSubmitted    bool                    `json:"has_submitted"`
	IsOverdue       bool                    `json:"is_overdue"`
	Submission      *PresentationSubmission `json:"submission,omitempty"`
}

// NotificationLogEntry records one fan-out event on a presentation.
type NotificationLogEntry struct {
	ID             string            `db:"id" json:"id"`
	PresentationID string            `db:"presentation_id" json:"-"`
	Event          PresentationEvent `db:"event" json:"event"`
	RecipientIDs   pq.StringArray    `db:"recipient_ids" json:"recipient_ids"`
	SentAt         time.Time         `db:"sent_at" json:"sent_at"`
}

// PresentationFilter captures listing criteria for presentations.
type PresentationFilter struct {
	CourseID   string
	LecturerID string
	Status     PresentationStatus
	Page       int
	PageSize   int
}
