package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/lumina-edu/lms-api/internal/middleware"
	"github.com/lumina-edu/lms-api/internal/models"
	"github.com/lumina-edu/lms-api/internal/service"
)

type notificationRepoStub struct {
	notifications []models.Notification
	unread        int
}

func (s *notificationRepoStub) BulkInsert(context.Context, []models.Notification) error { return nil }

func (s *notificationRepoStub) FindByID(context.Context, string) (*models.Notification, error) {
	return nil, sql.ErrNoRows
}

func (s *notificationRepoStub) List(_ context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	var out []models.Notification
	for _, n := range s.notifications {
		if n.RecipientID == filter.RecipientID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (s *notificationRepoStub) CountUnread(context.Context, string) (int, error) {
	return s.unread, nil
}

func (s *notificationRepoStub) MarkRead(_ context.Context, id, _ string) (bool, error) {
	return id != "missing", nil
}

func (s *notificationRepoStub) MarkAllRead(context.Context, string) (int, error) { return 2, nil }

func (s *notificationRepoStub) Archive(_ context.Context, id, _ string) (bool, error) {
	return id != "missing", nil
}

func (s *notificationRepoStub) Delete(_ context.Context, id, _ string) (bool, error) {
	return id != "missing", nil
}

type audienceReaderStub struct{}

func (audienceReaderStub) ListActiveByRole(context.Context, models.UserRole) ([]models.User, error) {
	return nil, nil
}

func (audienceReaderStub) FindActiveStudentsByIDs(context.Context, []string) ([]models.User, error) {
	return nil, nil
}

func (audienceReaderStub) ListEnrolledStudents(context.Context, string) ([]models.User, error) {
	return nil, nil
}

type presentationReaderStub struct{}

func (presentationReaderStub) FindDetailByID(context.Context, string) (*models.PresentationDetail, error) {
	return nil, sql.ErrNoRows
}

func (presentationReaderStub) AppendNotificationLog(context.Context, *models.NotificationLogEntry) error {
	return nil
}

func authAs(claims *models.JWTClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	}
}

func newNotificationTestRouter(repo *notificationRepoStub, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewNotificationService(repo, audienceReaderStub{}, presentationReaderStub{}, nil, nil, nil, service.NotificationConfig{})
	h := NewNotificationHandler(svc)

	router := gin.New()
	group := router.Group("/notifications", authAs(claims))
	group.GET("", h.List)
	group.GET("/unread-count", h.UnreadCount)
	group.POST("/read-all", h.MarkAllRead)
	group.PUT("/:id/read", h.MarkRead)
	group.PUT("/:id/archive", h.Archive)
	group.DELETE("/:id", h.Delete)
	return router
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "s1", Role: models.RoleStudent}
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	router := newNotificationTestRouter(&notificationRepoStub{unread: 5}, studentClaims())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/notifications/unread-count", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data models.UnreadCount `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 5, body.Data.Count)
}

func TestNotificationHandlerList(t *testing.T) {
	repo := &notificationRepoStub{notifications: []models.Notification{
		{ID: "n1", RecipientID: "s1", Title: "New presentation: X"},
		{ID: "n2", RecipientID: "someone-else", Title: "not yours"},
	}}
	router := newNotificationTestRouter(repo, studentClaims())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/notifications", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "n1", body.Data[0].ID)
}

func TestNotificationHandlerListRejectsUnknownStatus(t *testing.T) {
	router := newNotificationTestRouter(&notificationRepoStub{}, studentClaims())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/notifications?status=BOGUS", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationHandlerTransitions(t *testing.T) {
	router := newNotificationTestRouter(&notificationRepoStub{}, studentClaims())

	t.Run("mark read", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPut, "/notifications/n1/read", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("mark read missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPut, "/notifications/missing/read", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("mark all read", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/notifications/read-all", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data map[string]int `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, 2, body.Data["updated"])
	})

	t.Run("delete missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodDelete, "/notifications/missing", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestNotificationHandlerRequiresAuth(t *testing.T) {
	router := newNotificationTestRouter(&notificationRepoStub{}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/notifications/unread-count", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
