package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/lumina-edu/lms-api/internal/models"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
	"github.com/lumina-edu/lms-api/pkg/jobs"
)

type notificationRepository interface {
	BulkInsert(ctx context.Context, notifications []models.Notification) error
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id, recipientID string) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	Archive(ctx context.Context, id, recipientID string) (bool, error)
	Delete(ctx context.Context, id, recipientID string) (bool, error)
}

type audienceUserReader interface {
	ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
	FindActiveStudentsByIDs(ctx context.Context, ids []string) ([]models.User, error)
	ListEnrolledStudents(ctx context.Context, courseID string) ([]models.User, error)
}

type fanoutPresentationReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.PresentationDetail, error)
	AppendNotificationLog(ctx context.Context, entry *models.NotificationLogEntry) error
}

type unreadCountCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NotificationConfig tunes notification persistence and caching.
type NotificationConfig struct {
	TTL            time.Duration
	UnreadCacheTTL time.Duration
}

// NotificationService owns the fan-out pipeline and the recipient-facing
// notification store.
type NotificationService struct {
	repo          notificationRepository
	users         audienceUserReader
	presentations fanoutPresentationReader
	cache         unreadCountCache
	metrics       *MetricsService
	logger        *zap.Logger
	config        NotificationConfig
	now           func() time.Time
}

// NewNotificationService constructs a NotificationService instance.
func NewNotificationService(repo notificationRepository, users audienceUserReader, presentations fanoutPresentationReader, cache unreadCountCache, metrics *MetricsService, logger *zap.Logger, config NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:          repo,
		users:         users,
		presentations: presentations,
		cache:         cache,
		metrics:       metrics,
		logger:        logger,
		config:        config,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func unreadCacheKey(recipientID string) string {
	return "notifications:unread:" + recipientID
}

// HandleJob is the queue handler for presentation fan-out jobs. Returning
// an error triggers the queue's retry policy.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(models.PresentationEventPayload)
	if !ok {
		s.logger.Error("discarding job with unexpected payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return s.Dispatch(ctx, payload)
}

// Dispatch resolves the audience of a presentation event and writes one
// notification per recipient plus an audit log entry.
func (s *NotificationService) Dispatch(ctx context.Context, payload models.PresentationEventPayload) error {
	detail, err := s.presentations.FindDetailByID(ctx, payload.PresentationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("presentation vanished before fan-out", zap.String("presentation_id", payload.PresentationID))
			return nil
		}
		return fmt.Errorf("load presentation for fan-out: %w", err)
	}

	recipients, err := s.resolveAudience(ctx, detail, payload.Event)
	if err != nil {
		return fmt.Errorf("resolve audience: %w", err)
	}
	if len(recipients) == 0 {
		s.logger.Info("fan-out resolved to empty audience",
			zap.String("presentation_id", detail.ID),
			zap.String("event", string(payload.Event)),
			zap.String("mode", string(detail.NotificationMode)))
		return nil
	}

	notifications := s.buildNotifications(detail, payload, recipients)
	if err := s.repo.BulkInsert(ctx, notifications); err != nil {
		s.metrics.ObserveFanoutFailure()
		return fmt.Errorf("write notifications: %w", err)
	}

	recipientIDs := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		recipientIDs = append(recipientIDs, recipient.ID)
		s.invalidateUnread(ctx, recipient.ID)
	}

	entry := &models.NotificationLogEntry{
		PresentationID: detail.ID,
		Event:          payload.Event,
		RecipientIDs:   pq.StringArray(recipientIDs),
		SentAt:         s.now(),
	}
	if err := s.presentations.AppendNotificationLog(ctx, entry); err != nil {
		// Notifications are already delivered; the audit miss is logged,
		// not retried, to avoid duplicate fan-out.
		s.logger.Error("failed to append notification log", zap.String("presentation_id", detail.ID), zap.Error(err))
	}

	s.metrics.ObserveFanout(string(payload.Event), len(recipientIDs))
	s.logger.Info("fan-out delivered",
		zap.String("presentation_id", detail.ID),
		zap.String("event", string(payload.Event)),
		zap.Int("recipients", len(recipientIDs)))
	return nil
}

// resolveAudience maps the notification mode to a recipient set of active
// student accounts. Cancellations always address the enrolled roster.
func (s *NotificationService) resolveAudience(ctx context.Context, detail *models.PresentationDetail, event models.PresentationEvent) ([]models.User, error) {
	mode := detail.NotificationMode
	if event == models.PresentationEventCancelled {
		mode = models.NotificationModeEnrolled
	}

	switch mode {
	case models.NotificationModeAll:
		return s.users.ListActiveByRole(ctx, models.RoleStudent)
	case models.NotificationModeSelected:
		return s.users.FindActiveStudentsByIDs(ctx, detail.SelectedStudents)
	case models.NotificationModeEnrolled:
		return s.users.ListEnrolledStudents(ctx, detail.CourseID)
	default:
		s.logger.Warn("unknown notification mode, defaulting to enrolled roster",
			zap.String("presentation_id", detail.ID), zap.String("mode", string(mode)))
		return s.users.ListEnrolledStudents(ctx, detail.CourseID)
	}
}

func (s *NotificationService) buildNotifications(detail *models.PresentationDetail, payload models.PresentationEventPayload, recipients []models.User) []models.Notification {
	var (
		notificationType models.NotificationType
		title            string
		message          string
		actionRequired   bool
	)
	switch payload.Event {
	case models.PresentationEventCreated:
		notificationType = models.NotificationTypePresentationCreated
		title = fmt.Sprintf("New presentation: %s", detail.Title)
		message = fmt.Sprintf("A new presentation %q has been scheduled in %s (%s). Due %s.",
			detail.Title, detail.CourseTitle, detail.CourseCode, detail.DueDate.Format("02 Jan 2006 15:04"))
		actionRequired = true
	case models.PresentationEventUpdated:
		notificationType = models.NotificationTypePresentationUpdated
		title = fmt.Sprintf("Presentation updated: %s", detail.Title)
		message = fmt.Sprintf("The presentation %q in %s (%s) has changed. Check the new details. Due %s.",
			detail.Title, detail.CourseTitle, detail.CourseCode, detail.DueDate.Format("02 Jan 2006 15:04"))
		actionRequired = true
	case models.PresentationEventCancelled:
		notificationType = models.NotificationTypePresentationCancelled
		title = fmt.Sprintf("Presentation cancelled: %s", detail.Title)
		message = fmt.Sprintf("The presentation %q in %s (%s) has been cancelled.",
			detail.Title, detail.CourseTitle, detail.CourseCode)
		actionRequired = false
	default:
		notificationType = models.NotificationTypeSystem
		title = detail.Title
		message = fmt.Sprintf("Update on presentation %q in %s.", detail.Title, detail.CourseTitle)
	}

	var expiresAt *time.Time
	if s.config.TTL > 0 {
		expiry := s.now().Add(s.config.TTL)
		expiresAt = &expiry
	}

	senderID := payload.ActorID
	presentationID := detail.ID
	courseID := detail.CourseID

	notifications := make([]models.Notification, 0, len(recipients))
	for _, recipient := range recipients {
		notification := models.Notification{
			RecipientID:    recipient.ID,
			Type:           notificationType,
			Title:          title,
			Message:        message,
			PresentationID: &presentationID,
			CourseID:       &courseID,
			ActionRequired: actionRequired,
			Priority:       models.NotificationPriorityHigh,
			Status:         models.NotificationStatusUnread,
			ExpiresAt:      expiresAt,
		}
		if senderID != "" {
			notification.SenderID = &senderID
		}
		notifications = append(notifications, notification)
	}
	return notifications
}

// List returns the recipient's notifications with pagination.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification status")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification type")
	}

	notifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UnreadCount returns the recipient's unread counter, served from Redis
// when fresh.
func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	key := unreadCacheKey(recipientID)
	if s.cache != nil {
		var cached models.UnreadCount
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Count, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("unread cache read failed", zap.String("recipient_id", recipientID), zap.Error(err))
		}
	}

	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, models.UnreadCount{Count: count}, s.config.UnreadCacheTTL); err != nil {
			s.logger.Warn("unread cache write failed", zap.String("recipient_id", recipientID), zap.Error(err))
		}
	}
	return count, nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, recipientID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, unreadCacheKey(recipientID)); err != nil {
		s.logger.Warn("failed to invalidate unread cache", zap.String("recipient_id", recipientID), zap.Error(err))
	}
}

// MarkRead transitions one notification to READ for its recipient.
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID string) error {
	updated, err := s.repo.MarkRead(ctx, id, recipientID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "unread notification not found")
	}
	s.invalidateUnread(ctx, recipientID)
	return nil
}

// MarkAllRead transitions every unread notification of the recipient and
// returns the number affected.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	count, err := s.repo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.invalidateUnread(ctx, recipientID)
	return count, nil
}

// Archive moves a notification to ARCHIVED for its recipient.
func (s *NotificationService) Archive(ctx context.Context, id, recipientID string) error {
	updated, err := s.repo.Archive(ctx, id, recipientID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive notification")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	s.invalidateUnread(ctx, recipientID)
	return nil
}

// Delete removes a notification owned by the recipient.
func (s *NotificationService) Delete(ctx context.Context, id, recipientID string) error {
	deleted, err := s.repo.Delete(ctx, id, recipientID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	s.invalidateUnread(ctx, recipientID)
	return nil
}
