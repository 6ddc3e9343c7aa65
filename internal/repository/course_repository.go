package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumina-edu/lms-api/internal/models"
)

// Sentinel errors surfaced by the enrollment writer. Services map these to
// the HTTP error taxonomy.
var (
	ErrCourseNotActive = errors.New("course is not active")
	ErrAlreadyEnrolled = errors.New("student already enrolled in course")
	ErrCourseFull      = errors.New("course seat limit reached")
	ErrNotEnrolled     = errors.New("student not enrolled in course")
)

const courseColumns = `id, code, title, description, lecturer_id, max_students, status, created_at, updated_at`

// CourseRepository handles persistence of courses and enrollments.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	if course.Status == "" {
		course.Status = models.CourseStatusActive
	}
	const query = `INSERT INTO courses (id, code, title, description, lecturer_id, max_students, status, created_at, updated_at)
        VALUES (:id, :code, :title, :description, :lecturer_id, :max_students, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its unique code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE code = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID returns a course with lecturer name and seat usage.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	const query = `SELECT c.id, c.code, c.title, c.description, c.lecturer_id, c.max_students, c.status, c.created_at, c.updated_at,
        u.full_name AS lecturer_name,
        (SELECT COUNT(*) FROM course_enrollments e WHERE e.course_id = c.id) AS enrolled_count
        FROM courses c
        LEFT JOIN users u ON u.id = c.lecturer_id
        WHERE c.id = $1`
	var detail models.CourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := `FROM courses c LEFT JOIN users u ON u.id = c.lecturer_id`
	var conditions []string
	var args []interface{}

	if filter.LecturerID != "" {
		conditions = append(conditions, fmt.Sprintf("c.lecturer_id = $%d", len(args)+1))
		args = append(args, filter.LecturerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.code) LIKE $%d OR LOWER(c.title) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":       "c.code",
		"title":      "c.title",
		"created_at": "c.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.code, c.title, c.description, c.lecturer_id, c.max_students, c.status, c.created_at, c.updated_at,
        u.full_name AS lecturer_name,
        (SELECT COUNT(*) FROM course_enrollments e WHERE e.course_id = c.id) AS enrolled_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// ListEnrolledByStudent returns the courses a student belongs to.
func (r *CourseRepository) ListEnrolledByStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	const query = `SELECT c.id, c.code, c.title, c.description, c.lecturer_id, c.max_students, c.status, c.created_at, c.updated_at,
        u.full_name AS lecturer_name,
        (SELECT COUNT(*) FROM course_enrollments x WHERE x.course_id = c.id) AS enrolled_count
        FROM courses c
        JOIN course_enrollments e ON e.course_id = c.id
        LEFT JOIN users u ON u.id = c.lecturer_id
        WHERE e.student_id = $1
        ORDER BY e.enrolled_at DESC`
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	return courses, nil
}

// Update persists mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, max_students = :max_students,
        status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// EnrolledStudentIDs returns the member student IDs of a course.
func (r *CourseRepository) EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT student_id FROM course_enrollments WHERE course_id = $1 ORDER BY enrolled_at`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrollment ids: %w", err)
	}
	return ids, nil
}

// Enroll adds a student to a course. The course row is locked for the
// duration of the transaction so the seat check and the insert are atomic:
// two racing enrollments at the last open seat admit exactly one.
func (r *CourseRepository) Enroll(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enroll tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var course models.Course
	lockQuery := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1 FOR UPDATE`, courseColumns)
	if err := tx.GetContext(ctx, &course, lockQuery, courseID); err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusActive {
		return nil, ErrCourseNotActive
	}

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1`, courseID, studentID)
	if err == nil {
		return nil, ErrAlreadyEnrolled
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}

	var seated int
	if err := tx.GetContext(ctx, &seated, `SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1`, courseID); err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	if course.MaxStudents > 0 && seated >= course.MaxStudents {
		return nil, ErrCourseFull
	}

	enrollment := &models.Enrollment{
		ID:         uuid.NewString(),
		CourseID:   courseID,
		StudentID:  studentID,
		EnrolledAt: time.Now().UTC(),
	}
	const insert = `INSERT INTO course_enrollments (id, course_id, student_id, enrolled_at)
        VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, insert, enrollment.ID, enrollment.CourseID, enrollment.StudentID, enrollment.EnrolledAt); err != nil {
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enroll tx: %w", err)
	}
	return enrollment, nil
}

// Unenroll removes a student's membership.
func (r *CourseRepository) Unenroll(ctx context.Context, courseID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_enrollments WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unenroll rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotEnrolled
	}
	return nil
}
