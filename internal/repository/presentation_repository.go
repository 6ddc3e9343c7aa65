package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lumina-edu/lms-api/internal/models"
)

const presentationColumns = `id, course_id, lecturer_id, title, description, type, duration_minutes,
        assigned_date, due_date, presentation_date, allow_late, late_penalty, notification_mode, status, created_at, updated_at`

const presentationSubmissionColumns = `id, presentation_id, student_id, content, file_url, submitted_at, late, score, feedback, graded_at, graded_by`

// PresentationRepository handles persistence of presentations, rubrics,
// allow-lists, submissions and the fan-out audit log.
type PresentationRepository struct {
	db *sqlx.DB
}

// NewPresentationRepository constructs the repository.
func NewPresentationRepository(db *sqlx.DB) *PresentationRepository {
	return &PresentationRepository{db: db}
}

// Create persists a presentation together with its rubric and allow-list.
func (r *PresentationRepository) Create(ctx context.Context, presentation *models.Presentation, criteria []models.GradingCriterion, selected []string) error {
	if presentation.ID == "" {
		presentation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if presentation.CreatedAt.IsZero() {
		presentation.CreatedAt = now
	}
	presentation.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin presentation tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO presentations (id, course_id, lecturer_id, title, description, type, duration_minutes,
        assigned_date, due_date, presentation_date, allow_late, late_penalty, notification_mode, status, created_at, updated_at)
        VALUES (:id, :course_id, :lecturer_id, :title, :description, :type, :duration_minutes,
        :assigned_date, :due_date, :presentation_date, :allow_late, :late_penalty, :notification_mode, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, presentation); err != nil {
		return fmt.Errorf("create presentation: %w", err)
	}

	if err := r.replaceCriteria(ctx, tx, presentation.ID, criteria); err != nil {
		return err
	}
	if err := r.replaceSelected(ctx, tx, presentation.ID, selected); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit presentation tx: %w", err)
	}
	return nil
}

// Update persists mutable presentation fields and replaces rubric/allow-list.
func (r *PresentationRepository) Update(ctx context.Context, presentation *models.Presentation, criteria []models.GradingCriterion, selected []string) error {
	presentation.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin presentation tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const update = `UPDATE presentations SET title = :title, description = :description, type = :type,
        duration_minutes = :duration_minutes, assigned_date = :assigned_date, due_date = :due_date,
        presentation_date = :presentation_date, allow_late = :allow_late, late_penalty = :late_penalty,
        notification_mode = :notification_mode, status = :status, updated_at = :updated_at
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, presentation); err != nil {
		return fmt.Errorf("update presentation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM presentation_criteria WHERE presentation_id = $1`, presentation.ID); err != nil {
		return fmt.Errorf("clear criteria: %w", err)
	}
	if err := r.replaceCriteria(ctx, tx, presentation.ID, criteria); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM presentation_selected_students WHERE presentation_id = $1`, presentation.ID); err != nil {
		return fmt.Errorf("clear selected students: %w", err)
	}
	if err := r.replaceSelected(ctx, tx, presentation.ID, selected); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit presentation tx: %w", err)
	}
	return nil
}

func (r *PresentationRepository) replaceCriteria(ctx context.Context, tx *sqlx.Tx, presentationID string, criteria []models.GradingCriterion) error {
	for i := range criteria {
		if criteria[i].ID == "" {
			criteria[i].ID = uuid.NewString()
		}
		criteria[i].PresentationID = presentationID
		const query = `INSERT INTO presentation_criteria (id, presentation_id, name, weight)
            VALUES (:id, :presentation_id, :name, :weight)`
		if _, err := tx.NamedExecContext(ctx, query, criteria[i]); err != nil {
			return fmt.Errorf("insert criterion: %w", err)
		}
	}
	return nil
}

func (r *PresentationRepository) replaceSelected(ctx context.Context, tx *sqlx.Tx, presentationID string, selected []string) error {
	for _, studentID := range selected {
		const query = `INSERT INTO presentation_selected_students (presentation_id, student_id)
            VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := tx.ExecContext(ctx, query, presentationID, studentID); err != nil {
			return fmt.Errorf("insert selected student: %w", err)
		}
	}
	return nil
}

// FindByID returns a presentation by identifier.
func (r *PresentationRepository) FindByID(ctx context.Context, id string) (*models.Presentation, error) {
	query := fmt.Sprintf(`SELECT %s FROM presentations WHERE id = $1 LIMIT 1`, presentationColumns)
	var presentation models.Presentation
	if err := r.db.GetContext(ctx, &presentation, query, id); err != nil {
		return nil, err
	}
	return &presentation, nil
}

// FindDetailByID returns a presentation with course/lecturer context,
// rubric and allow-list.
func (r *PresentationRepository) FindDetailByID(ctx context.Context, id string) (*models.PresentationDetail, error) {
	const query = `SELECT p.id, p.course_id, p.lecturer_id, p.title, p.description, p.type, p.duration_minutes,
        p.assigned_date, p.due_date, p.presentation_date, p.allow_late, p.late_penalty, p.notification_mode, p.status, p.created_at, p.updated_at,
        c.code AS course_code, c.title AS course_title, u.full_name AS lecturer_name
        FROM presentations p
        LEFT JOIN courses c ON c.id = p.course_id
        LEFT JOIN users u ON u.id = p.lecturer_id
        WHERE p.id = $1`
	var detail models.PresentationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}

	criteria, err := r.listCriteria(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Criteria = criteria

	selected, err := r.SelectedStudentIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.SelectedStudents = selected
	return &detail, nil
}

func (r *PresentationRepository) listCriteria(ctx context.Context, presentationID string) ([]models.GradingCriterion, error) {
	const query = `SELECT id, presentation_id, name, weight FROM presentation_criteria WHERE presentation_id = $1 ORDER BY name`
	criteria := []models.GradingCriterion{}
	if err := r.db.SelectContext(ctx, &criteria, query, presentationID); err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}
	return criteria, nil
}

// SelectedStudentIDs returns the explicit allow-list of a presentation.
func (r *PresentationRepository) SelectedStudentIDs(ctx context.Context, presentationID string) ([]string, error) {
	const query = `SELECT student_id FROM presentation_selected_students WHERE presentation_id = $1`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, presentationID); err != nil {
		return nil, fmt.Errorf("list selected students: %w", err)
	}
	return ids, nil
}

// List returns presentations filtered by the provided criteria.
func (r *PresentationRepository) List(ctx context.Context, filter models.PresentationFilter) ([]models.PresentationDetail, int, error) {
	base := `FROM presentations p
        LEFT JOIN courses c ON c.id = p.course_id
        LEFT JOIN users u ON u.id = p.lecturer_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("p.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.LecturerID != "" {
		conditions = append(conditions, fmt.Sprintf("p.lecturer_id = $%d", len(args)+1))
		args = append(args, filter.LecturerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT p.id, p.course_id, p.lecturer_id, p.title, p.description, p.type, p.duration_minutes,
        p.assigned_date, p.due_date, p.presentation_date, p.allow_late, p.late_penalty, p.notification_mode, p.status, p.created_at, p.updated_at,
        c.code AS course_code, c.title AS course_title, u.full_name AS lecturer_name
        %s ORDER BY p.due_date DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var presentations []models.PresentationDetail
	if err := r.db.SelectContext(ctx, &presentations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list presentations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count presentations: %w", err)
	}
	return presentations, total, nil
}

// ListVisibleToStudent returns non-draft presentations of courses the
// student is enrolled in plus any that explicitly select the student.
// Eligibility is still derived per presentation by the service.
func (r *PresentationRepository) ListVisibleToStudent(ctx context.Context, studentID string) ([]models.PresentationDetail, error) {
	const query = `SELECT p.id, p.course_id, p.lecturer_id, p.title, p.description, p.type, p.duration_minutes,
        p.assigned_date, p.due_date, p.presentation_date, p.allow_late, p.late_penalty, p.notification_mode, p.status, p.created_at, p.updated_at,
        c.code AS course_code, c.title AS course_title, u.full_name AS lecturer_name
        FROM presentations p
        LEFT JOIN courses c ON c.id = p.course_id
        LEFT JOIN users u ON u.id = p.lecturer_id
        WHERE p.status <> 'DRAFT'
          AND (EXISTS (SELECT 1 FROM course_enrollments e WHERE e.course_id = p.course_id AND e.student_id = $1)
            OR EXISTS (SELECT 1 FROM presentation_selected_students s WHERE s.presentation_id = p.id AND s.student_id = $1))
        ORDER BY p.due_date`
	var presentations []models.PresentationDetail
	if err := r.db.SelectContext(ctx, &presentations, query, studentID); err != nil {
		return nil, fmt.Errorf("list student presentations: %w", err)
	}
	for i := range presentations {
		selected, err := r.SelectedStudentIDs(ctx, presentations[i].ID)
		if err != nil {
			return nil, err
		}
		presentations[i].SelectedStudents = selected
	}
	return presentations, nil
}

// UpdateStatus transitions the lifecycle state.
func (r *PresentationRepository) UpdateStatus(ctx context.Context, id string, status models.PresentationStatus) error {
	const query = `UPDATE presentations SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update presentation status: %w", err)
	}
	return nil
}

// CreateSubmission inserts a submission unless one already exists for the
// (presentation, student) pair.
func (r *PresentationRepository) CreateSubmission(ctx context.Context, submission *models.PresentationSubmission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO presentation_submissions (id, presentation_id, student_id, content, file_url, submitted_at, late)
        VALUES (:id, :presentation_id, :student_id, :content, :file_url, :submitted_at, :late)
        ON CONFLICT (presentation_id, student_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, submission)
	if err != nil {
		return fmt.Errorf("create presentation submission: %w", err)
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

// FindSubmission returns the submission of a student for a presentation.
func (r *PresentationRepository) FindSubmission(ctx context.Context, presentationID, studentID string) (*models.PresentationSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM presentation_submissions WHERE presentation_id = $1 AND student_id = $2 LIMIT 1`, presentationSubmissionColumns)
	var submission models.PresentationSubmission
	if err := r.db.GetContext(ctx, &submission, query, presentationID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListSubmissions returns every submission for a presentation.
func (r *PresentationRepository) ListSubmissions(ctx context.Context, presentationID string) ([]models.PresentationSubmission, error) {
	query := fmt.Sprintf(`SELECT %s FROM presentation_submissions WHERE presentation_id = $1 ORDER BY submitted_at`, presentationSubmissionColumns)
	var submissions []models.PresentationSubmission
	if err := r.db.SelectContext(ctx, &submissions, query, presentationID); err != nil {
		return nil, fmt.Errorf("list presentation submissions: %w", err)
	}
	return submissions, nil
}

// GradeSubmission records score and feedback for a submission.
func (r *PresentationRepository) GradeSubmission(ctx context.Context, presentationID, studentID string, score float64, feedback, gradedBy string) error {
	const query = `UPDATE presentation_submissions SET score = $3, feedback = $4, graded_at = $5, graded_by = $6
        WHERE presentation_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, presentationID, studentID, score, feedback, time.Now().UTC(), gradedBy)
	if err != nil {
		return fmt.Errorf("grade presentation submission: %w", err)
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

// AppendNotificationLog records one fan-out event with its recipient list.
func (r *PresentationRepository) AppendNotificationLog(ctx context.Context, entry *models.NotificationLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}
	const query = `INSERT INTO presentation_notification_log (id, presentation_id, event, recipient_ids, sent_at)
        VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.PresentationID, entry.Event, pq.Array([]string(entry.RecipientIDs)), entry.SentAt); err != nil {
		return fmt.Errorf("append notification log: %w", err)
	}
	return nil
}

// ListNotificationLog returns the fan-out audit trail of a presentation.
func (r *PresentationRepository) ListNotificationLog(ctx context.Context, presentationID string) ([]models.NotificationLogEntry, error) {
	const query = `SELECT id, presentation_id, event, recipient_ids, sent_at
        FROM presentation_notification_log WHERE presentation_id = $1 ORDER BY sent_at`
	entries := []models.NotificationLogEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, presentationID); err != nil {
		return nil, fmt.Errorf("list notification log: %w", err)
	}
	return entries, nil
}
