package models

import "time"

// NotificationType is the kind of event a notification announces.
type NotificationType string

const (
	NotificationTypePresentationCreated   NotificationType = "PRESENTATION_CREATED"
	NotificationTypePresentationUpdated   NotificationType = "PRESENTATION_UPDATED"
	NotificationTypePresentationCancelled NotificationType = "PRESENTATION_CANCELLED"
	NotificationTypeAssignmentCreated     NotificationType = "ASSIGNMENT_CREATED"
	NotificationTypeSystem                NotificationType = "SYSTEM"
)

// Valid reports whether the type is one of the closed set.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypePresentationCreated, NotificationTypePresentationUpdated,
		NotificationTypePresentationCancelled, NotificationTypeAssignmentCreated,
		NotificationTypeSystem:
		return true
	default:
		return false
	}
}

// NotificationPriority orders notifications for display.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "LOW"
	NotificationPriorityNormal NotificationPriority = "NORMAL"
	NotificationPriorityHigh   NotificationPriority = "HIGH"
)

// NotificationStatus is the recipient-side read state.
type NotificationStatus string

const (
	NotificationStatusUnread   NotificationStatus = "UNREAD"
	NotificationStatusRead     NotificationStatus = "READ"
	NotificationStatusArchived NotificationStatus = "ARCHIVED"
)

// Valid reports whether the status is one of the closed set.
func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationStatusUnread, NotificationStatusRead, NotificationStatusArchived:
		return true
	default:
		return false
	}
}

// Notification is one per-recipient record produced by a fan-out.
type Notification struct {
	ID             string               `db:"id" json:"id"`
	RecipientID    string               `db:"recipient_id" json:"recipient_id"`
	SenderID       *string              `db:"sender_id" json:"sender_id,omitempty"`
	Type           NotificationType     `db:"type" json:"type"`
	Title          string               `db:"title" json:"title"`
	Message        string               `db:"message" json:"message"`
	PresentationID *string              `db:"presentation_id" json:"presentation_id,omitempty"`
	CourseID       *string              `db:"course_id" json:"course_id,omitempty"`
	ActionRequired bool                 `db:"action_required" json:"action_required"`
	Priority       NotificationPriority `db:"priority" json:"priority"`
	Status         NotificationStatus   `db:"status" json:"status"`
	ExpiresAt      *time.Time           `db:"expires_at" json:"expires_at,omitempty"`
	ReadAt         *time.Time           `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time            `db:"created_at" json:"created_at"`
}

// NotificationFilter captures recipient-scoped listing criteria.
type NotificationFilter struct {
	RecipientID string
	Status      NotificationStatus
	Type        NotificationType
	Page        int
	PageSize    int
}
