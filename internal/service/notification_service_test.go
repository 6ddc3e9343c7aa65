package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumina-edu/lms-api/internal/models"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
)

type fakeNotificationRepo struct {
	inserted    []models.Notification
	insertErr   error
	unreadCount int
	markedRead  []string
	markAllHits int
}

func (f *fakeNotificationRepo) BulkInsert(_ context.Context, notifications []models.Notification) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, notifications...)
	return nil
}

func (f *fakeNotificationRepo) FindByID(context.Context, string) (*models.Notification, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeNotificationRepo) List(_ context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	var out []models.Notification
	for _, n := range f.inserted {
		if n.RecipientID == filter.RecipientID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (f *fakeNotificationRepo) CountUnread(context.Context, string) (int, error) {
	return f.unreadCount, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, id, _ string) (bool, error) {
	f.markedRead = append(f.markedRead, id)
	return id != "missing", nil
}

func (f *fakeNotificationRepo) MarkAllRead(context.Context, string) (int, error) {
	f.markAllHits++
	return 3, nil
}

func (f *fakeNotificationRepo) Archive(_ context.Context, id, _ string) (bool, error) {
	return id != "missing", nil
}

func (f *fakeNotificationRepo) Delete(_ context.Context, id, _ string) (bool, error) {
	return id != "missing", nil
}

type fakeAudienceReader struct {
	allStudents      []models.User
	selectedStudents []models.User
	enrolledStudents []models.User

	selectedRequested []string
	enrolledCourseID  string
}

func (f *fakeAudienceReader) ListActiveByRole(context.Context, models.UserRole) ([]models.User, error) {
	return f.allStudents, nil
}

func (f *fakeAudienceReader) FindActiveStudentsByIDs(_ context.Context, ids []string) ([]models.User, error) {
	f.selectedRequested = ids
	return f.selectedStudents, nil
}

func (f *fakeAudienceReader) ListEnrolledStudents(_ context.Context, courseID string) ([]models.User, error) {
	f.enrolledCourseID = courseID
	return f.enrolledStudents, nil
}

type fakePresentationReader struct {
	detail *models.PresentationDetail
	logs   []models.NotificationLogEntry
}

func (f *fakePresentationReader) FindDetailByID(context.Context, string) (*models.PresentationDetail, error) {
	if f.detail == nil {
		return nil, sql.ErrNoRows
	}
	return f.detail, nil
}

func (f *fakePresentationReader) AppendNotificationLog(_ context.Context, entry *models.NotificationLogEntry) error {
	f.logs = append(f.logs, *entry)
	return nil
}

type fakeCache struct {
	deleted []string
	sets    map[string]interface{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{sets: map[string]interface{}{}}
}

func (f *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	value, ok := f.sets[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if count, ok := value.(models.UnreadCount); ok {
		*dest.(*models.UnreadCount) = count
	}
	return nil
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.sets[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.sets, key)
	return nil
}

func student(id string) models.User {
	return models.User{ID: id, Role: models.RoleStudent, Active: true, FullName: "Student " + id}
}

func fanoutDetail(mode models.NotificationMode, selected []string) *models.PresentationDetail {
	return &models.PresentationDetail{
		Presentation: models.Presentation{
			ID:               "pres-1",
			CourseID:         "course-1",
			Title:            "Distributed Systems Intro",
			NotificationMode: mode,
			Status:           models.PresentationStatusPublished,
			DueDate:          time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		},
		CourseCode:       "CS401",
		CourseTitle:      "Distributed Systems",
		SelectedStudents: selected,
	}
}

func newFanoutFixture(detail *models.PresentationDetail) (*NotificationService, *fakeNotificationRepo, *fakeAudienceReader, *fakePresentationReader, *fakeCache) {
	repo := &fakeNotificationRepo{}
	users := &fakeAudienceReader{}
	presentations := &fakePresentationReader{detail: detail}
	cacheStore := newFakeCache()
	svc := NewNotificationService(repo, users, presentations, cacheStore, nil, nil, NotificationConfig{TTL: time.Hour, UnreadCacheTTL: time.Minute})
	return svc, repo, users, presentations, cacheStore
}

func TestDispatchAudienceModes(t *testing.T) {
	t.Run("all mode targets every active student", func(t *testing.T) {
		svc, repo, users, presentations, _ := newFanoutFixture(fanoutDetail(models.NotificationModeAll, nil))
		users.allStudents = []models.User{student("s1"), student("s2"), student("s3")}

		err := svc.Dispatch(context.Background(), models.PresentationEventPayload{
			PresentationID: "pres-1",
			Event:          models.PresentationEventCreated,
			ActorID:        "lect-1",
		})
		require.NoError(t, err)
		require.Len(t, repo.inserted, 3)
		require.Len(t, presentations.logs, 1)
		require.ElementsMatch(t, []string{"s1", "s2", "s3"}, presentations.logs[0].RecipientIDs)
	})

	t.Run("selected mode resolves the allow-list only", func(t *testing.T) {
		svc, repo, users, _, _ := newFanoutFixture(fanoutDetail(models.NotificationModeSelected, []string{"s1", "ghost"}))
		users.selectedStudents = []models.User{student("s1")}

		err := svc.Dispatch(context.Background(), models.PresentationEventPayload{
			PresentationID: "pres-1",
			Event:          models.PresentationEventCreated,
		})
		require.NoError(t, err)
		require.Equal(t, []string{"s1", "ghost"}, users.selectedRequested)
		require.Len(t, repo.inserted, 1)
		require.Equal(t, "s1", repo.inserted[0].RecipientID)
	})

	t.Run("enrolled mode targets the course roster", func(t *testing.T) {
		svc, repo, users, _, _ := newFanoutFixture(fanoutDetail(models.NotificationModeEnrolled, nil))
		users.enrolledStudents = []models.User{student("s5")}

		err := svc.Dispatch(context.Background(), models.PresentationEventPayload{
			PresentationID: "pres-1",
			Event:          models.PresentationEventUpdated,
		})
		require.NoError(t, err)
		require.Equal(t, "course-1", users.enrolledCourseID)
		require.Len(t, repo.inserted, 1)
	})

	t.Run("cancellation always notifies the enrolled roster", func(t *testing.T) {
		svc, repo, users, _, _ := newFanoutFixture(fanoutDetail(models.NotificationModeSelected, []string{"s1"}))
		users.selectedStudents = []models.User{student("s1")}
		users.enrolledStudents = []models.User{student("s7"), student("s8")}

		err := svc.Dispatch(context.Background(), models.PresentationEventPayload{
			PresentationID: "pres-1",
			Event:          models.PresentationEventCancelled,
		})
		require.NoError(t, err)
		require.Nil(t, users.selectedRequested)
		require.Len(t, repo.inserted, 2)
		for _, n := range repo.inserted {
			require.Equal(t, models.NotificationTypePresentationCancelled, n.Type)
			require.False(t, n.ActionRequired)
		}
	})

	t.Run("empty audience is a no-op", func(t *testing.T) {
		svc, repo, _, presentations, _ := newFanoutFixture(fanoutDetail(models.NotificationModeEnrolled, nil))

		err := svc.Dispatch(context.Background(), models.PresentationEventPayload{
			PresentationID: "pres-1",
			Event:          models.PresentationEventCreated,
		})
		require.NoError(t, err)
		require.Empty(t, repo.inserted)
		require.Empty(t, presentations.logs)
	})

	t.Run("vanished presentation is swallowed", func(t *testing.T) {
		svc, repo, _, _, _ := newFanoutFixture(nil)
		err := svc.Dispatch(context.Background(), models.PresentationEventPayload{PresentationID: "gone"})
		require.NoError(t, err)
		require.Empty(t, repo.inserted)
	})
}

func TestDispatchNotificationContent(t *testing.T) {
	svc, repo, users, _, cacheStore := newFanoutFixture(fanoutDetail(models.NotificationModeAll, nil))
	users.allStudents = []models.User{student("s1")}

	err := svc.Dispatch(context.Background(), models.PresentationEventPayload{
		PresentationID: "pres-1",
		Event:          models.PresentationEventCreated,
		ActorID:        "lect-1",
	})
	require.NoError(t, err)
	require.Len(t, repo.inserted, 1)

	n := repo.inserted[0]
	require.Equal(t, models.NotificationTypePresentationCreated, n.Type)
	require.Equal(t, models.NotificationPriorityHigh, n.Priority)
	require.True(t, n.ActionRequired)
	require.Contains(t, n.Title, "Distributed Systems Intro")
	require.Contains(t, n.Message, "CS401")
	require.NotNil(t, n.SenderID)
	require.Equal(t, "lect-1", *n.SenderID)
	require.NotNil(t, n.PresentationID)
	require.Equal(t, "pres-1", *n.PresentationID)
	require.NotNil(t, n.ExpiresAt)

	// Fan-out invalidates each recipient's unread counter.
	require.Contains(t, cacheStore.deleted, "notifications:unread:s1")
}

func TestUnreadCountCaching(t *testing.T) {
	repo := &fakeNotificationRepo{unreadCount: 7}
	cacheStore := newFakeCache()
	svc := NewNotificationService(repo, &fakeAudienceReader{}, &fakePresentationReader{}, cacheStore, nil, nil, NotificationConfig{UnreadCacheTTL: time.Minute})

	count, err := svc.UnreadCount(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 7, count)

	// Second read is served from cache even when the store changes.
	repo.unreadCount = 99
	count, err = svc.UnreadCount(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 7, count)

	// Marking read invalidates and the next read sees the live value.
	require.NoError(t, svc.MarkRead(context.Background(), "n1", "s1"))
	count, err = svc.UnreadCount(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 99, count)
}

func TestRecipientScopedTransitions(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewNotificationService(repo, &fakeAudienceReader{}, &fakePresentationReader{}, newFakeCache(), nil, nil, NotificationConfig{})

	require.NoError(t, svc.MarkRead(context.Background(), "n1", "s1"))

	err := svc.MarkRead(context.Background(), "missing", "s1")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	err = svc.Archive(context.Background(), "missing", "s1")
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), "missing", "s1")
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	count, err := svc.MarkAllRead(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}
