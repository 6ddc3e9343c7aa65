package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumina-edu/lms-api/internal/models"
	"github.com/lumina-edu/lms-api/internal/repository"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
)

type fakeCourseRepo struct {
	courses   map[string]*models.Course
	codes     map[string]*models.Course
	enrolled  map[string][]string
	enrollErr error
	updated   *models.Course
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{
		courses:  map[string]*models.Course{},
		codes:    map[string]*models.Course{},
		enrolled: map[string][]string{},
	}
}

func (f *fakeCourseRepo) Create(_ context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-new"
	}
	f.courses[course.ID] = course
	f.codes[course.Code] = course
	return nil
}

func (f *fakeCourseRepo) FindByID(_ context.Context, id string) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeCourseRepo) FindByCode(_ context.Context, code string) (*models.Course, error) {
	c, ok := f.codes[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeCourseRepo) FindDetailByID(_ context.Context, id string) (*models.CourseDetail, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CourseDetail{Course: *c, EnrolledCount: len(f.enrolled[id])}, nil
}

func (f *fakeCourseRepo) List(context.Context, models.CourseFilter) ([]models.CourseDetail, int, error) {
	var out []models.CourseDetail
	for id, c := range f.courses {
		out = append(out, models.CourseDetail{Course: *c, EnrolledCount: len(f.enrolled[id])})
	}
	return out, len(out), nil
}

func (f *fakeCourseRepo) ListEnrolledByStudent(context.Context, string) ([]models.CourseDetail, error) {
	return nil, nil
}

func (f *fakeCourseRepo) Update(_ context.Context, course *models.Course) error {
	f.courses[course.ID] = course
	f.updated = course
	return nil
}

func (f *fakeCourseRepo) EnrolledStudentIDs(_ context.Context, courseID string) ([]string, error) {
	return f.enrolled[courseID], nil
}

func (f *fakeCourseRepo) Enroll(_ context.Context, courseID, studentID string) (*models.Enrollment, error) {
	if f.enrollErr != nil {
		return nil, f.enrollErr
	}
	f.enrolled[courseID] = append(f.enrolled[courseID], studentID)
	return &models.Enrollment{CourseID: courseID, StudentID: studentID}, nil
}

func (f *fakeCourseRepo) Unenroll(_ context.Context, courseID, studentID string) error {
	for _, id := range f.enrolled[courseID] {
		if id == studentID {
			return nil
		}
	}
	return repository.ErrNotEnrolled
}

func seedCourse(repo *fakeCourseRepo) *models.Course {
	course := &models.Course{
		ID: "course-1", Code: "CS401", Title: "Distributed Systems",
		LecturerID: "lect-1", MaxStudents: 30, Status: models.CourseStatusActive,
	}
	repo.courses[course.ID] = course
	repo.codes[course.Code] = course
	return course
}

func TestCreateCourse(t *testing.T) {
	repo := newFakeCourseRepo()
	seedCourse(repo)
	svc := NewCourseService(repo, nil, nil)

	t.Run("duplicate code is rejected", func(t *testing.T) {
		_, err := svc.Create(context.Background(), "lect-1", models.CreateCourseRequest{
			Code: "CS401", Title: "Distributed Systems Again", MaxStudents: 30,
		})
		require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	})

	t.Run("new course defaults to active", func(t *testing.T) {
		course, err := svc.Create(context.Background(), "lect-1", models.CreateCourseRequest{
			Code: "CS402", Title: "Operating Systems", MaxStudents: 25,
		})
		require.NoError(t, err)
		require.Equal(t, models.CourseStatusActive, course.Status)
		require.Equal(t, "lect-1", course.LecturerID)
	})

	t.Run("invalid payload is rejected", func(t *testing.T) {
		_, err := svc.Create(context.Background(), "lect-1", models.CreateCourseRequest{
			Code: "CS403", Title: "OS", MaxStudents: 0,
		})
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})
}

func TestEnrollSentinelMapping(t *testing.T) {
	cases := []struct {
		name     string
		repoErr  error
		wantCode string
	}{
		{"missing course", sql.ErrNoRows, appErrors.ErrNotFound.Code},
		{"inactive course", repository.ErrCourseNotActive, appErrors.ErrPreconditionFailed.Code},
		{"duplicate enrollment", repository.ErrAlreadyEnrolled, appErrors.ErrAlreadyEnrolled.Code},
		{"full course", repository.ErrCourseFull, appErrors.ErrCourseFull.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeCourseRepo()
			repo.enrollErr = tc.repoErr
			svc := NewCourseService(repo, nil, nil)

			_, err := svc.Enroll(context.Background(), "course-1", "s1")
			require.Error(t, err)
			require.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
		})
	}

	t.Run("successful enrollment", func(t *testing.T) {
		repo := newFakeCourseRepo()
		seedCourse(repo)
		svc := NewCourseService(repo, nil, nil)

		enrollment, err := svc.Enroll(context.Background(), "course-1", "s1")
		require.NoError(t, err)
		require.Equal(t, "s1", enrollment.StudentID)
	})
}

func TestUnenroll(t *testing.T) {
	repo := newFakeCourseRepo()
	seedCourse(repo)
	repo.enrolled["course-1"] = []string{"s1"}
	svc := NewCourseService(repo, nil, nil)

	require.NoError(t, svc.Unenroll(context.Background(), "course-1", "s1"))

	err := svc.Unenroll(context.Background(), "course-1", "stranger")
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateCourseOwnership(t *testing.T) {
	newTitle := "Distributed Systems II"

	t.Run("owner may edit", func(t *testing.T) {
		repo := newFakeCourseRepo()
		seedCourse(repo)
		svc := NewCourseService(repo, nil, nil)

		course, err := svc.Update(context.Background(), "course-1", lecturerClaims("lect-1"), models.UpdateCourseRequest{Title: &newTitle})
		require.NoError(t, err)
		require.Equal(t, newTitle, course.Title)
	})

	t.Run("admin may edit any course", func(t *testing.T) {
		repo := newFakeCourseRepo()
		seedCourse(repo)
		svc := NewCourseService(repo, nil, nil)

		_, err := svc.Update(context.Background(), "course-1", models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, models.UpdateCourseRequest{Title: &newTitle})
		require.NoError(t, err)
	})

	t.Run("other lecturers are rejected", func(t *testing.T) {
		repo := newFakeCourseRepo()
		seedCourse(repo)
		svc := NewCourseService(repo, nil, nil)

		_, err := svc.Update(context.Background(), "course-1", lecturerClaims("lect-2"), models.UpdateCourseRequest{Title: &newTitle})
		require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	})

	t.Run("lowering seats below enrollment is allowed", func(t *testing.T) {
		repo := newFakeCourseRepo()
		seedCourse(repo)
		repo.enrolled["course-1"] = []string{"s1", "s2", "s3"}
		svc := NewCourseService(repo, nil, nil)

		limit := 2
		course, err := svc.Update(context.Background(), "course-1", lecturerClaims("lect-1"), models.UpdateCourseRequest{MaxStudents: &limit})
		require.NoError(t, err)
		require.Equal(t, 2, course.MaxStudents)
	})
}

func TestRosterAccess(t *testing.T) {
	repo := newFakeCourseRepo()
	seedCourse(repo)
	repo.enrolled["course-1"] = []string{"s1", "s2"}
	svc := NewCourseService(repo, nil, nil)

	ids, err := svc.Roster(context.Background(), "course-1", lecturerClaims("lect-1"))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"s1", "s2"}, ids)

	_, err = svc.Roster(context.Background(), "course-1", lecturerClaims("lect-2"))
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
