package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lumina-edu/lms-api/internal/models"
	"github.com/lumina-edu/lms-api/internal/repository"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
	CreateSubmission(ctx context.Context, submission *models.AssignmentSubmission) error
	FindSubmission(ctx context.Context, assignmentID, studentID string) (*models.AssignmentSubmission, error)
	ListSubmissions(ctx context.Context, assignmentID string) ([]models.AssignmentSubmission, error)
	GradeSubmission(ctx context.Context, assignmentID, studentID string, score float64, feedback, gradedBy string) error
}

type assignmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error)
}

// AssignmentService implements coursework use cases.
type AssignmentService struct {
	repo      assignmentRepository
	courses   assignmentCourseReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssignmentService constructs an AssignmentService instance.
func NewAssignmentService(repo assignmentRepository, courses assignmentCourseReader, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{repo: repo, courses: courses, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (s *AssignmentService) loadOwnedCourse(ctx context.Context, courseID string, actor models.JWTClaims) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && course.LecturerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may manage coursework")
	}
	return course, nil
}

// Create attaches a new assignment to a course owned by the actor.
func (s *AssignmentService) Create(ctx context.Context, courseID string, actor models.JWTClaims, req models.CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := s.loadOwnedCourse(ctx, courseID, actor); err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		CourseID:    courseID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		MaxScore:    req.MaxScore,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// ListByCourse returns the assignments of a course. When a student ID is
// given, each assignment carries that student's submission and derived
// state.
func (s *AssignmentService) ListByCourse(ctx context.Context, courseID, studentID string) ([]models.AssignmentDetail, error) {
	assignments, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}

	now := s.now()
	details := make([]models.AssignmentDetail, 0, len(assignments))
	for _, assignment := range assignments {
		detail := models.AssignmentDetail{Assignment: assignment}
		if studentID != "" {
			submission, err := s.repo.FindSubmission(ctx, assignment.ID, studentID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
			}
			detail.Submission = submission
			graded := submission != nil && submission.GradedAt != nil
			detail.SubmissionState = models.DeriveSubmissionState(submission != nil, graded, assignment.DueDate, now)
			detail.IsOverdue = models.IsOverdue(submission != nil, assignment.DueDate, now)
		} else {
			detail.SubmissionState = models.DeriveSubmissionState(false, false, assignment.DueDate, now)
			detail.IsOverdue = models.IsOverdue(false, assignment.DueDate, now)
		}
		details = append(details, detail)
	}
	return details, nil
}

// Get returns one assignment with the requesting student's derived state.
func (s *AssignmentService) Get(ctx context.Context, id, studentID string) (*models.AssignmentDetail, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	detail := &models.AssignmentDetail{Assignment: *assignment}
	now := s.now()
	if studentID != "" {
		submission, err := s.repo.FindSubmission(ctx, id, studentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
		}
		detail.Submission = submission
		graded := submission != nil && submission.GradedAt != nil
		detail.SubmissionState = models.DeriveSubmissionState(submission != nil, graded, assignment.DueDate, now)
		detail.IsOverdue = models.IsOverdue(submission != nil, assignment.DueDate, now)
	} else {
		detail.SubmissionState = models.DeriveSubmissionState(false, false, assignment.DueDate, now)
		detail.IsOverdue = models.IsOverdue(false, assignment.DueDate, now)
	}
	return detail, nil
}

// Submit records the student's work. Enrollment is required and repeated
// submissions are rejected atomically.
func (s *AssignmentService) Submit(ctx context.Context, assignmentID, studentID string, req models.SubmitWorkRequest) (*models.AssignmentSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.repo.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	enrolled, err := s.courses.EnrolledStudentIDs(ctx, assignment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	member := false
	for _, id := range enrolled {
		if id == studentID {
			member = true
			break
		}
	}
	if !member {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this course")
	}

	if assignment.IsPastDue(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrSubmissionClosed, "assignment deadline has passed")
	}

	submission := &models.AssignmentSubmission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Content:      req.Content,
		FileURL:      req.FileURL,
		SubmittedAt:  s.now(),
	}
	if err := s.repo.CreateSubmission(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateSubmit, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission")
	}
	return submission, nil
}

// ListSubmissions returns every submission for an assignment, owner/admin
// only.
func (s *AssignmentService) ListSubmissions(ctx context.Context, assignmentID string, actor models.JWTClaims) ([]models.AssignmentSubmission, error) {
	assignment, err := s.repo.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if _, err := s.loadOwnedCourse(ctx, assignment.CourseID, actor); err != nil {
		return nil, err
	}
	submissions, err := s.repo.ListSubmissions(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// Grade records score and feedback for a student's submission. The score
// is capped by the assignment's max score.
func (s *AssignmentService) Grade(ctx context.Context, assignmentID string, actor models.JWTClaims, req models.GradeSubmissionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading payload")
	}

	assignment, err := s.repo.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if _, err := s.loadOwnedCourse(ctx, assignment.CourseID, actor); err != nil {
		return err
	}
	if req.Score > assignment.MaxScore {
		return appErrors.Clone(appErrors.ErrValidation, "score exceeds assignment max score")
	}

	if err := s.repo.GradeSubmission(ctx, assignmentID, req.StudentID, req.Score, req.Feedback, actor.UserID); err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}
	return nil
}
