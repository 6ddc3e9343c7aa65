package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lumina-edu/lms-api/internal/models"
)

// Sentinel errors shared by the submission writers.
var (
	ErrDuplicateSubmission = errors.New("submission already exists for student")
	ErrSubmissionNotFound  = errors.New("submission not found")
)

const assignmentColumns = `id, course_id, title, description, due_date, max_score, created_at, updated_at`
const assignmentSubmissionColumns = `id, assignment_id, student_id, content, file_url, submitted_at, score, feedback, graded_at, graded_by`

// AssignmentRepository handles persistence of assignments and their submissions.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create persists a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO assignments (id, course_id, title, description, due_date, max_score, created_at, updated_at)
        VALUES (:id, :course_id, :title, :description, :due_date, :max_score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// FindByID returns an assignment by identifier.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE id = $1 LIMIT 1`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListByCourse returns the assignments of a course ordered by due date.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE course_id = $1 ORDER BY due_date`, assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// CreateSubmission inserts a submission unless one already exists for the
// (assignment, student) pair. The unique constraint plus the rows-affected
// check makes the duplicate rejection atomic.
func (r *AssignmentRepository) CreateSubmission(ctx context.Context, submission *models.AssignmentSubmission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assignment_submissions (id, assignment_id, student_id, content, file_url, submitted_at)
        VALUES (:id, :assignment_id, :student_id, :content, :file_url, :submitted_at)
        ON CONFLICT (assignment_id, student_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, submission)
	if err != nil {
		return fmt.Errorf("create assignment submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("submission rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDuplicateSubmission
	}
	return nil
}

// FindSubmission returns the submission of a student for an assignment.
func (r *AssignmentRepository) FindSubmission(ctx context.Context, assignmentID, studentID string) (*models.AssignmentSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignment_submissions WHERE assignment_id = $1 AND student_id = $2 LIMIT 1`, assignmentSubmissionColumns)
	var submission models.AssignmentSubmission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListSubmissions returns every submission for an assignment.
func (r *AssignmentRepository) ListSubmissions(ctx context.Context, assignmentID string) ([]models.AssignmentSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignment_submissions WHERE assignment_id = $1 ORDER BY submitted_at`, assignmentSubmissionColumns)
	var submissions []models.AssignmentSubmission
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list assignment submissions: %w", err)
	}
	return submissions, nil
}

// ListSubmissionsByCourse returns all submissions across a course's
// assignments, used by the grade report.
func (r *AssignmentRepository) ListSubmissionsByCourse(ctx context.Context, courseID string) ([]models.AssignmentSubmission, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, s.content, s.file_url, s.submitted_at, s.score, s.feedback, s.graded_at, s.graded_by
        FROM assignment_submissions s
        JOIN assignments a ON a.id = s.assignment_id
        WHERE a.course_id = $1
        ORDER BY s.submitted_at`
	var submissions []models.AssignmentSubmission
	if err := r.db.SelectContext(ctx, &submissions, query, courseID); err != nil {
		return nil, fmt.Errorf("list course submissions: %w", err)
	}
	return submissions, nil
}

// GradeSubmission records score and feedback for a submission.
func (r *AssignmentRepository) GradeSubmission(ctx context.Context, assignmentID, studentID string, score float64, feedback, gradedBy string) error {
	const query = `UPDATE assignment_submissions SET score = $3, feedback = $4, graded_at = $5, graded_by = $6
        WHERE assignment_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, assignmentID, studentID, score, feedback, time.Now().UTC(), gradedBy)
	if err != nil {
		return fmt.Errorf("grade assignment submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("grade rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}
