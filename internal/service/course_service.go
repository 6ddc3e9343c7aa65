package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lumina-edu/lms-api/internal/models"
	"github.com/lumina-edu/lms-api/internal/repository"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	ListEnrolledByStudent(ctx context.Context, studentID string) ([]models.CourseDetail, error)
	Update(ctx context.Context, course *models.Course) error
	EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error)
	Enroll(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	Unenroll(ctx context.Context, courseID, studentID string) error
}

// CourseService implements course catalog and enrollment use cases.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService instance.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// Create opens a new course owned by the given lecturer.
func (s *CourseService) Create(ctx context.Context, lecturerID string, req models.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}

	course := &models.Course{
		Code:        req.Code,
		Title:       req.Title,
		Description: req.Description,
		LecturerID:  lecturerID,
		MaxStudents: req.MaxStudents,
		Status:      models.CourseStatusActive,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Get returns a course with lecturer name and seat usage.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return detail, nil
}

// List returns courses matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListEnrolled returns the courses a student belongs to.
func (s *CourseService) ListEnrolled(ctx context.Context, studentID string) ([]models.CourseDetail, error) {
	courses, err := s.repo.ListEnrolledByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled courses")
	}
	return courses, nil
}

// Update applies partial edits to a course owned by the actor. Admins may
// edit any course. Lowering max_students below the current enrollment is
// allowed and only logged; existing members are never evicted.
func (s *CourseService) Update(ctx context.Context, id string, actor models.JWTClaims, req models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if actor.Role != models.RoleAdmin && course.LecturerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may edit this course")
	}

	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.MaxStudents != nil {
		if enrolled, err := s.repo.EnrolledStudentIDs(ctx, id); err == nil && *req.MaxStudents < len(enrolled) {
			s.logger.Warn("max_students lowered below current enrollment",
				zap.String("course_id", id),
				zap.Int("max_students", *req.MaxStudents),
				zap.Int("enrolled", len(enrolled)))
		}
		course.MaxStudents = *req.MaxStudents
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown course status")
		}
		course.Status = *req.Status
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Enroll adds the student to the course, enforcing lifecycle, duplicate
// and seat-limit rules atomically.
func (s *CourseService) Enroll(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	enrollment, err := s.repo.Enroll(ctx, courseID, studentID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		case errors.Is(err, repository.ErrCourseNotActive):
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is not open for enrollment")
		case errors.Is(err, repository.ErrAlreadyEnrolled):
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		case errors.Is(err, repository.ErrCourseFull):
			return nil, appErrors.Clone(appErrors.ErrCourseFull, "")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
		}
	}
	s.logger.Info("student enrolled", zap.String("course_id", courseID), zap.String("student_id", studentID))
	return enrollment, nil
}

// Unenroll removes the student from the course.
func (s *CourseService) Unenroll(ctx context.Context, courseID, studentID string) error {
	if err := s.repo.Unenroll(ctx, courseID, studentID); err != nil {
		if errors.Is(err, repository.ErrNotEnrolled) {
			return appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this course")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll")
	}
	return nil
}

// Roster returns the member student IDs of a course, owner/admin only.
func (s *CourseService) Roster(ctx context.Context, courseID string, actor models.JWTClaims) ([]string, error) {
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && course.LecturerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may view the roster")
	}
	ids, err := s.repo.EnrolledStudentIDs(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return ids, nil
}
