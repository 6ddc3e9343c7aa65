package models

import "time"

// CreateCourseRequest is the payload for opening a new course.
type CreateCourseRequest struct {
	Code        string `json:"code" validate:"required,min=2,max=20"`
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description"`
	MaxStudents int    `json:"max_students" validate:"required,gt=0"`
}

// UpdateCourseRequest carries the mutable course fields. Nil fields are
// left untouched.
type UpdateCourseRequest struct {
	Title       *string       `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string       `json:"description"`
	MaxStudents *int          `json:"max_students" validate:"omitempty,gt=0"`
	Status      *CourseStatus `json:"status"`
}

// CreateAssignmentRequest is the payload for attaching coursework.
type CreateAssignmentRequest struct {
	Title       string    `json:"title" validate:"required,min=3,max=200"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	MaxScore    float64   `json:"max_score" validate:"required,gt=0"`
}

// SubmitWorkRequest is the shared payload for assignment and presentation
// submissions.
type SubmitWorkRequest struct {
	Content string  `json:"content" validate:"required"`
	FileURL *string `json:"file_url" validate:"omitempty,url"`
}

// GradeSubmissionRequest records score and feedback for a submission.
type GradeSubmissionRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Score     float64 `json:"score" validate:"gte=0"`
	Feedback  string  `json:"feedback"`
}

// CriterionInput is one rubric entry of a presentation payload.
type CriterionInput struct {
	Name   string  `json:"name" validate:"required"`
	Weight float64 `json:"weight" validate:"gt=0,lte=100"`
}

// CreatePresentationRequest is the payload for scheduling a presentation.
type CreatePresentationRequest struct {
	CourseID         string             `json:"course_id" validate:"required"`
	Title            string             `json:"title" validate:"required,min=3,max=200"`
	Description      string             `json:"description"`
	Type             PresentationType   `json:"type" validate:"required"`
	DurationMinutes  int                `json:"duration_minutes" validate:"gt=0"`
	AssignedDate     time.Time          `json:"assigned_date" validate:"required"`
	DueDate          time.Time          `json:"due_date" validate:"required"`
	PresentationDate *time.Time         `json:"presentation_date"`
	AllowLate        bool               `json:"allow_late"`
	LatePenalty      float64            `json:"late_penalty" validate:"gte=0,lte=100"`
	NotificationMode NotificationMode   `json:"notification_mode"`
	Status           PresentationStatus `json:"status"`
	Criteria         []CriterionInput   `json:"criteria" validate:"dive"`
	SelectedStudents []string           `json:"selected_students"`
}

// UpdatePresentationRequest carries the mutable presentation fields. Nil
// fields are left untouched; criteria and selected students replace the
// stored sets when present.
type UpdatePresentationRequest struct {
	Title            *string             `json:"title" validate:"omitempty,min=3,max=200"`
	Description      *string             `json:"description"`
	Type             *PresentationType   `json:"type"`
	DurationMinutes  *int                `json:"duration_minutes" validate:"omitempty,gt=0"`
	AssignedDate     *time.Time          `json:"assigned_date"`
	DueDate          *time.Time          `json:"due_date"`
	PresentationDate *time.Time          `json:"presentation_date"`
	AllowLate        *bool               `json:"allow_late"`
	LatePenalty      *float64            `json:"late_penalty" validate:"omitempty,gte=0,lte=100"`
	NotificationMode *NotificationMode   `json:"notification_mode"`
	Status           *PresentationStatus `json:"status"`
	Criteria         []CriterionInput    `json:"criteria" validate:"dive"`
	SelectedStudents []string            `json:"selected_students"`
}

// PresentationEventPayload is the fan-out job body queued after a
// presentation lifecycle change.
type PresentationEventPayload struct {
	PresentationID string            `json:"presentation_id"`
	Event          PresentationEvent `json:"event"`
	ActorID        string            `json:"actor_id"`
}

// UnreadCount is the cached unread notification counter.
type UnreadCount struct {
	Count int `json:"count"`
}
