package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/lumina-edu/lms-api/internal/models"
)

func newCourseRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func courseRows(status models.CourseStatus, maxStudents int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "code", "title", "description", "lecturer_id", "max_students", "status", "created_at", "updated_at"}).
		AddRow("course-1", "CS401", "Distributed Systems", "", "lect-1", maxStudents, status, now, now)
}

func expectCourseLock(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT .+ FROM courses WHERE id = \\$1 FOR UPDATE").
		WithArgs("course-1").
		WillReturnRows(rows)
}

func TestCourseRepositoryEnroll(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, courseRows(models.CourseStatusActive, 30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2")).
		WithArgs("course-1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectExec("INSERT INTO course_enrollments").
		WithArgs(sqlmock.AnyArg(), "course-1", "s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Enroll(context.Background(), "course-1", "s1")
	require.NoError(t, err)
	require.Equal(t, "course-1", enrollment.CourseID)
	require.Equal(t, "s1", enrollment.StudentID)
	require.NotEmpty(t, enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryEnrollInactiveCourse(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, courseRows(models.CourseStatusCompleted, 30))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "course-1", "s1")
	require.ErrorIs(t, err, ErrCourseNotActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryEnrollDuplicate(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, courseRows(models.CourseStatusActive, 30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2")).
		WithArgs("course-1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "course-1", "s1")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryEnrollFullCourse(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	expectCourseLock(mock, courseRows(models.CourseStatusActive, 2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2")).
		WithArgs("course-1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "course-1", "s1")
	require.ErrorIs(t, err, ErrCourseFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryUnenroll(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_enrollments WHERE course_id = $1 AND student_id = $2")).
		WithArgs("course-1", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Unenroll(context.Background(), "course-1", "s1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM course_enrollments WHERE course_id = $1 AND student_id = $2")).
		WithArgs("course-1", "stranger").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.Unenroll(context.Background(), "course-1", "stranger"), ErrNotEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery("SELECT .+ FROM courses WHERE code = \\$1").
		WithArgs("CS401").
		WillReturnRows(courseRows(models.CourseStatusActive, 30))

	course, err := repo.FindByCode(context.Background(), "CS401")
	require.NoError(t, err)
	require.Equal(t, "course-1", course.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
