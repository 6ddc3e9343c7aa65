package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumina-edu/lms-api/internal/models"
	"github.com/lumina-edu/lms-api/internal/repository"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
	"github.com/lumina-edu/lms-api/pkg/jobs"
)

type fakePresentationRepo struct {
	presentations map[string]*models.Presentation
	details       map[string]*models.PresentationDetail
	submissions   map[string]*models.PresentationSubmission
	statusUpdates map[string]models.PresentationStatus
	graded        map[string]float64

	createErr    error
	submitErr    error
	lastCriteria []models.GradingCriterion
	lastSelected []string
}

func newFakePresentationRepo() *fakePresentationRepo {
	return &fakePresentationRepo{
		presentations: map[string]*models.Presentation{},
		details:       map[string]*models.PresentationDetail{},
		submissions:   map[string]*models.PresentationSubmission{},
		statusUpdates: map[string]models.PresentationStatus{},
		graded:        map[string]float64{},
	}
}

func (f *fakePresentationRepo) Create(_ context.Context, p *models.Presentation, criteria []models.GradingCriterion, selected []string) error {
	if f.createErr != nil {
		return f.createErr
	}
	if p.ID == "" {
		p.ID = "pres-new"
	}
	f.presentations[p.ID] = p
	f.lastCriteria = criteria
	f.lastSelected = selected
	return nil
}

func (f *fakePresentationRepo) Update(_ context.Context, p *models.Presentation, criteria []models.GradingCriterion, selected []string) error {
	f.presentations[p.ID] = p
	f.lastCriteria = criteria
	f.lastSelected = selected
	return nil
}

func (f *fakePresentationRepo) FindByID(_ context.Context, id string) (*models.Presentation, error) {
	p, ok := f.presentations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakePresentationRepo) FindDetailByID(_ context.Context, id string) (*models.PresentationDetail, error) {
	d, ok := f.details[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakePresentationRepo) SelectedStudentIDs(_ context.Context, id string) ([]string, error) {
	if d, ok := f.details[id]; ok {
		return d.SelectedStudents, nil
	}
	return nil, nil
}

func (f *fakePresentationRepo) List(context.Context, models.PresentationFilter) ([]models.PresentationDetail, int, error) {
	var out []models.PresentationDetail
	for _, d := range f.details {
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (f *fakePresentationRepo) ListVisibleToStudent(context.Context, string) ([]models.PresentationDetail, error) {
	var out []models.PresentationDetail
	for _, d := range f.details {
		if d.Status != models.PresentationStatusDraft {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakePresentationRepo) UpdateStatus(_ context.Context, id string, status models.PresentationStatus) error {
	f.statusUpdates[id] = status
	if p, ok := f.presentations[id]; ok {
		p.Status = status
	}
	return nil
}

func (f *fakePresentationRepo) CreateSubmission(_ context.Context, submission *models.PresentationSubmission) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	key := submission.PresentationID + "/" + submission.StudentID
	if _, exists := f.submissions[key]; exists {
		return repository.ErrDuplicateSubmission
	}
	f.submissions[key] = submission
	return nil
}

func (f *fakePresentationRepo) FindSubmission(_ context.Context, presentationID, studentID string) (*models.PresentationSubmission, error) {
	s, ok := f.submissions[presentationID+"/"+studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (f *fakePresentationRepo) ListSubmissions(context.Context, string) ([]models.PresentationSubmission, error) {
	var out []models.PresentationSubmission
	for _, s := range f.submissions {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakePresentationRepo) GradeSubmission(_ context.Context, presentationID, studentID string, score float64, _, _ string) error {
	key := presentationID + "/" + studentID
	if _, ok := f.submissions[key]; !ok {
		return repository.ErrSubmissionNotFound
	}
	f.graded[key] = score
	return nil
}

func (f *fakePresentationRepo) ListNotificationLog(context.Context, string) ([]models.NotificationLogEntry, error) {
	return nil, nil
}

type fakeCourseReader struct {
	courses  map[string]*models.Course
	enrolled map[string][]string
}

func (f *fakeCourseReader) FindByID(_ context.Context, id string) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeCourseReader) EnrolledStudentIDs(_ context.Context, courseID string) ([]string, error) {
	return f.enrolled[courseID], nil
}

type capturingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *capturingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func lecturerClaims(id string) models.JWTClaims {
	return models.JWTClaims{UserID: id, Role: models.RoleLecturer}
}

func basePresentationRequest() models.CreatePresentationRequest {
	return models.CreatePresentationRequest{
		CourseID:         "course-1",
		Title:            "Graph Algorithms Walkthrough",
		Type:             models.PresentationTypeIndividual,
		DurationMinutes:  20,
		AssignedDate:     time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		DueDate:          time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC),
		NotificationMode: models.NotificationModeEnrolled,
		Status:           models.PresentationStatusPublished,
	}
}

func newPresentationFixture() (*PresentationService, *fakePresentationRepo, *fakeCourseReader, *capturingQueue) {
	repo := newFakePresentationRepo()
	courses := &fakeCourseReader{
		courses: map[string]*models.Course{
			"course-1": {ID: "course-1", LecturerID: "lect-1", Status: models.CourseStatusActive, MaxStudents: 30},
		},
		enrolled: map[string][]string{},
	}
	queue := &capturingQueue{}
	svc := NewPresentationService(repo, courses, queue, nil, nil)
	return svc, repo, courses, queue
}

func TestCreatePresentationFanout(t *testing.T) {
	t.Run("published presentation enqueues a created event", func(t *testing.T) {
		svc, _, _, queue := newPresentationFixture()

		p, err := svc.Create(context.Background(), lecturerClaims("lect-1"), basePresentationRequest())
		require.NoError(t, err)
		require.Len(t, queue.jobs, 1)
		require.Equal(t, PresentationEventJobType, queue.jobs[0].Type)

		payload := queue.jobs[0].Payload.(models.PresentationEventPayload)
		require.Equal(t, p.ID, payload.PresentationID)
		require.Equal(t, models.PresentationEventCreated, payload.Event)
	})

	t.Run("draft presentation does not notify", func(t *testing.T) {
		svc, _, _, queue := newPresentationFixture()

		req := basePresentationRequest()
		req.Status = models.PresentationStatusDraft
		_, err := svc.Create(context.Background(), lecturerClaims("lect-1"), req)
		require.NoError(t, err)
		require.Empty(t, queue.jobs)
	})

	t.Run("enqueue failure does not fail the write", func(t *testing.T) {
		svc, repo, _, queue := newPresentationFixture()
		queue.err = context.Canceled

		p, err := svc.Create(context.Background(), lecturerClaims("lect-1"), basePresentationRequest())
		require.NoError(t, err)
		require.NotNil(t, repo.presentations[p.ID])
	})

	t.Run("omitted notification mode defaults to enrolled", func(t *testing.T) {
		svc, repo, _, queue := newPresentationFixture()

		req := basePresentationRequest()
		req.NotificationMode = ""
		p, err := svc.Create(context.Background(), lecturerClaims("lect-1"), req)
		require.NoError(t, err)
		require.Equal(t, models.NotificationModeEnrolled, p.NotificationMode)
		require.Equal(t, models.NotificationModeEnrolled, repo.presentations[p.ID].NotificationMode)
		require.Len(t, queue.jobs, 1)
	})

	t.Run("selected mode requires an allow-list", func(t *testing.T) {
		svc, _, _, _ := newPresentationFixture()

		req := basePresentationRequest()
		req.NotificationMode = models.NotificationModeSelected
		_, err := svc.Create(context.Background(), lecturerClaims("lect-1"), req)
		require.Error(t, err)
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		svc, _, _, _ := newPresentationFixture()

		_, err := svc.Create(context.Background(), lecturerClaims("other"), basePresentationRequest())
		require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	})
}

func TestCancelPresentation(t *testing.T) {
	svc, repo, _, queue := newPresentationFixture()
	repo.presentations["pres-1"] = &models.Presentation{
		ID: "pres-1", CourseID: "course-1", LecturerID: "lect-1",
		Status: models.PresentationStatusPublished,
	}

	require.NoError(t, svc.Cancel(context.Background(), "pres-1", lecturerClaims("lect-1")))
	require.Equal(t, models.PresentationStatusCancelled, repo.statusUpdates["pres-1"])
	require.Len(t, queue.jobs, 1)
	payload := queue.jobs[0].Payload.(models.PresentationEventPayload)
	require.Equal(t, models.PresentationEventCancelled, payload.Event)

	// A second cancel is rejected before any queue work.
	err := svc.Cancel(context.Background(), "pres-1", lecturerClaims("lect-1"))
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	require.Len(t, queue.jobs, 1)
}

func TestSubmitLatePolicy(t *testing.T) {
	due := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)
	detail := func(allowLate bool) *models.PresentationDetail {
		return &models.PresentationDetail{
			Presentation: models.Presentation{
				ID: "pres-1", CourseID: "course-1", LecturerID: "lect-1",
				Status: models.PresentationStatusActive, DueDate: due, AllowLate: allowLate, LatePenalty: 20,
			},
		}
	}
	req := models.SubmitWorkRequest{Content: "slides attached"}

	t.Run("on-time submission is not late", func(t *testing.T) {
		svc, repo, courses, _ := newPresentationFixture()
		repo.details["pres-1"] = detail(false)
		courses.enrolled["course-1"] = []string{"s1"}
		svc.now = func() time.Time { return due.Add(-time.Hour) }

		submission, err := svc.Submit(context.Background(), "pres-1", "s1", req)
		require.NoError(t, err)
		require.False(t, submission.Late)
	})

	t.Run("late submission rejected when not allowed", func(t *testing.T) {
		svc, repo, courses, _ := newPresentationFixture()
		repo.details["pres-1"] = detail(false)
		courses.enrolled["course-1"] = []string{"s1"}
		svc.now = func() time.Time { return due.Add(time.Hour) }

		_, err := svc.Submit(context.Background(), "pres-1", "s1", req)
		require.Equal(t, appErrors.ErrSubmissionClosed.Code, appErrors.FromError(err).Code)
	})

	t.Run("late submission flagged when allowed", func(t *testing.T) {
		svc, repo, courses, _ := newPresentationFixture()
		repo.details["pres-1"] = detail(true)
		courses.enrolled["course-1"] = []string{"s1"}
		svc.now = func() time.Time { return due.Add(time.Hour) }

		submission, err := svc.Submit(context.Background(), "pres-1", "s1", req)
		require.NoError(t, err)
		require.True(t, submission.Late)
	})

	t.Run("duplicate submission rejected", func(t *testing.T) {
		svc, repo, courses, _ := newPresentationFixture()
		repo.details["pres-1"] = detail(false)
		courses.enrolled["course-1"] = []string{"s1"}
		svc.now = func() time.Time { return due.Add(-time.Hour) }

		_, err := svc.Submit(context.Background(), "pres-1", "s1", req)
		require.NoError(t, err)
		_, err = svc.Submit(context.Background(), "pres-1", "s1", req)
		require.Equal(t, appErrors.ErrDuplicateSubmit.Code, appErrors.FromError(err).Code)
	})

	t.Run("ineligible student rejected", func(t *testing.T) {
		svc, repo, courses, _ := newPresentationFixture()
		d := detail(false)
		d.SelectedStudents = []string{"s2"}
		repo.details["pres-1"] = d
		courses.enrolled["course-1"] = []string{"s1"}
		svc.now = func() time.Time { return due.Add(-time.Hour) }

		_, err := svc.Submit(context.Background(), "pres-1", "s1", req)
		require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	})

	t.Run("draft presentation closed for submissions", func(t *testing.T) {
		svc, repo, courses, _ := newPresentationFixture()
		d := detail(false)
		d.Status = models.PresentationStatusDraft
		repo.details["pres-1"] = d
		courses.enrolled["course-1"] = []string{"s1"}

		_, err := svc.Submit(context.Background(), "pres-1", "s1", req)
		require.Equal(t, appErrors.ErrSubmissionClosed.Code, appErrors.FromError(err).Code)
	})
}

func TestGradeAppliesLatePenalty(t *testing.T) {
	svc, repo, _, _ := newPresentationFixture()
	repo.presentations["pres-1"] = &models.Presentation{
		ID: "pres-1", CourseID: "course-1", LecturerID: "lect-1",
		Status: models.PresentationStatusActive, LatePenalty: 25,
	}
	repo.submissions["pres-1/s1"] = &models.PresentationSubmission{
		PresentationID: "pres-1", StudentID: "s1", Late: true,
	}
	repo.submissions["pres-1/s2"] = &models.PresentationSubmission{
		PresentationID: "pres-1", StudentID: "s2", Late: false,
	}

	score, err := svc.Grade(context.Background(), "pres-1", lecturerClaims("lect-1"), models.GradeSubmissionRequest{StudentID: "s1", Score: 80})
	require.NoError(t, err)
	require.InDelta(t, 60.0, score, 0.001)
	require.InDelta(t, 60.0, repo.graded["pres-1/s1"], 0.001)

	score, err = svc.Grade(context.Background(), "pres-1", lecturerClaims("lect-1"), models.GradeSubmissionRequest{StudentID: "s2", Score: 80})
	require.NoError(t, err)
	require.InDelta(t, 80.0, score, 0.001)

	_, err = svc.Grade(context.Background(), "pres-1", lecturerClaims("lect-1"), models.GradeSubmissionRequest{StudentID: "ghost", Score: 50})
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetForStudentEligibility(t *testing.T) {
	svc, repo, courses, _ := newPresentationFixture()
	repo.details["pres-1"] = &models.PresentationDetail{
		Presentation: models.Presentation{
			ID: "pres-1", CourseID: "course-1", LecturerID: "lect-1",
			Status: models.PresentationStatusPublished,
			DueDate: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		},
		SelectedStudents: []string{"s2"},
	}
	courses.enrolled["course-1"] = []string{"s1", "s2"}
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC) }

	// The allow-list overrides enrollment.
	_, err := svc.GetForStudent(context.Background(), "pres-1", "s1")
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	got, err := svc.GetForStudent(context.Background(), "pres-1", "s2")
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStateNotSubmitted, got.SubmissionState)
	require.False(t, got.HasSubmitted)
}
