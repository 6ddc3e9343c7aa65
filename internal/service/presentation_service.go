package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-edu/lms-api/internal/models"
	"github.com/lumina-edu/lms-api/internal/repository"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
	"github.com/lumina-edu/lms-api/pkg/jobs"
)

// PresentationEventJobType routes fan-out jobs to the notification handler.
const PresentationEventJobType = "presentation_event"

type presentationRepository interface {
	Create(ctx context.Context, presentation *models.Presentation, criteria []models.GradingCriterion, selected []string) error
	Update(ctx context.Context, presentation *models.Presentation, criteria []models.GradingCriterion, selected []string) error
	FindByID(ctx context.Context, id string) (*models.Presentation, error)
	FindDetailByID(ctx context.Context, id string) (*models.PresentationDetail, error)
	SelectedStudentIDs(ctx context.Context, presentationID string) ([]string, error)
	List(ctx context.Context, filter models.PresentationFilter) ([]models.PresentationDetail, int, error)
	ListVisibleToStudent(ctx context.Context, studentID string) ([]models.PresentationDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.PresentationStatus) error
	CreateSubmission(ctx context.Context, submission *models.PresentationSubmission) error
	FindSubmission(ctx context.Context, presentationID, studentID string) (*models.PresentationSubmission, error)
	ListSubmissions(ctx context.Context, presentationID string) ([]models.PresentationSubmission, error)
	GradeSubmission(ctx context.Context, presentationID, studentID string, score float64, feedback, gradedBy string) error
	ListNotificationLog(ctx context.Context, presentationID string) ([]models.NotificationLogEntry, error)
}

type presentationCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error)
}

type eventPublisher interface {
	Enqueue(job jobs.Job) error
}

// PresentationService implements the presentation lifecycle. Writes return
// before any notification work happens; fan-out runs on the job queue.
type PresentationService struct {
	repo      presentationRepository
	courses   presentationCourseReader
	queue     eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPresentationService constructs a PresentationService instance.
func NewPresentationService(repo presentationRepository, courses presentationCourseReader, queue eventPublisher, validate *validator.Validate, logger *zap.Logger) *PresentationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PresentationService{
		repo:      repo,
		courses:   courses,
		queue:     queue,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// publishEvent enqueues a fan-out job. Queue failures never surface to the
// caller: the write already committed.
func (s *PresentationService) publishEvent(presentationID string, event models.PresentationEvent, actorID string) {
	if s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: PresentationEventJobType,
		Payload: models.PresentationEventPayload{
			PresentationID: presentationID,
			Event:          event,
			ActorID:        actorID,
		},
	})
	if err != nil {
		s.logger.Error("failed to enqueue presentation event",
			zap.String("presentation_id", presentationID),
			zap.String("event", string(event)),
			zap.Error(err))
	}
}

func criteriaFromInput(inputs []models.CriterionInput) []models.GradingCriterion {
	criteria := make([]models.GradingCriterion, 0, len(inputs))
	for _, input := range inputs {
		criteria = append(criteria, models.GradingCriterion{Name: input.Name, Weight: input.Weight})
	}
	return criteria
}

// Create schedules a presentation. Selected students outside the course
// roster are accepted; the audience resolver drops inactive or non-student
// references at send time.
func (s *PresentationService) Create(ctx context.Context, actor models.JWTClaims, req models.CreatePresentationRequest) (*models.Presentation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid presentation payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown presentation type")
	}
	mode := req.NotificationMode
	if mode == "" {
		mode = models.NotificationModeEnrolled
	}
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification mode")
	}
	status := req.Status
	if status == "" {
		status = models.PresentationStatusDraft
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown presentation status")
	}
	if req.DueDate.Before(req.AssignedDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due date precedes assigned date")
	}
	if mode == models.NotificationModeSelected && len(req.SelectedStudents) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selected mode requires at least one student")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && course.LecturerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may schedule presentations")
	}

	presentation := &models.Presentation{
		CourseID:         req.CourseID,
		LecturerID:       course.LecturerID,
		Title:            req.Title,
		Description:      req.Description,
		Type:             req.Type,
		DurationMinutes:  req.DurationMinutes,
		AssignedDate:     req.AssignedDate,
		DueDate:          req.DueDate,
		PresentationDate: req.PresentationDate,
		AllowLate:        req.AllowLate,
		LatePenalty:      req.LatePenalty,
		NotificationMode: mode,
		Status:           status,
	}
	if err := s.repo.Create(ctx, presentation, criteriaFromInput(req.Criteria), req.SelectedStudents); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create presentation")
	}

	if presentation.Status.Notifiable() {
		s.publishEvent(presentation.ID, models.PresentationEventCreated, actor.UserID)
	}
	return presentation, nil
}

// Get returns a presentation with rubric, allow-list and course context.
func (s *PresentationService) Get(ctx context.Context, id string) (*models.PresentationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presentation")
	}
	return detail, nil
}

// List returns presentations matching the filter.
func (s *PresentationService) List(ctx context.Context, filter models.PresentationFilter) ([]models.PresentationDetail, *models.Pagination, error) {
	presentations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list presentations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return presentations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update applies partial edits and republishes a fan-out when the result
// is in a notifiable state.
func (s *PresentationService) Update(ctx context.Context, id string, actor models.JWTClaims, req models.UpdatePresentationRequest) (*models.Presentation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid presentation payload")
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presentation")
	}
	if actor.Role != models.RoleAdmin && detail.LecturerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may edit this presentation")
	}
	if detail.Status == models.PresentationStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cancelled presentations cannot be edited")
	}

	presentation := detail.Presentation
	if req.Title != nil {
		presentation.Title = *req.Title
	}
	if req.Description != nil {
		presentation.Description = *req.Description
	}
	if req.Type != nil {
		if !req.Type.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown presentation type")
		}
		presentation.Type = *req.Type
	}
	if req.DurationMinutes != nil {
		presentation.DurationMinutes = *req.DurationMinutes
	}
	if req.AssignedDate != nil {
		presentation.AssignedDate = *req.AssignedDate
	}
	if req.DueDate != nil {
		presentation.DueDate = *req.DueDate
	}
	if req.PresentationDate != nil {
		presentation.PresentationDate = req.PresentationDate
	}
	if req.AllowLate != nil {
		presentation.AllowLate = *req.AllowLate
	}
	if req.LatePenalty != nil {
		presentation.LatePenalty = *req.LatePenalty
	}
	if req.NotificationMode != nil {
		if !req.NotificationMode.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification mode")
		}
		presentation.NotificationMode = *req.NotificationMode
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown presentation status")
		}
		presentation.Status = *req.Status
	}
	if presentation.DueDate.Before(presentation.AssignedDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due date precedes assigned date")
	}

	criteria := detail.Criteria
	if req.Criteria != nil {
		criteria = criteriaFromInput(req.Criteria)
	}
	selected := detail.SelectedStudents
	if req.SelectedStudents != nil {
		selected = req.SelectedStudents
	}
	if presentation.NotificationMode == models.NotificationModeSelected && len(selected) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "selected mode requires at least one student")
	}

	if err := s.repo.Update(ctx, &presentation, criteria, selected); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update presentation")
	}

	if presentation.Status.Notifiable() {
		s.publishEvent(presentation.ID, models.PresentationEventUpdated, actor.UserID)
	}
	return &presentation, nil
}

// Cancel transitions the presentation to CANCELLED and always notifies the
// enrolled roster, whatever the configured notification mode.
func (s *PresentationService) Cancel(ctx context.Context, id string, actor models.JWTClaims) error {
	presentation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presentation")
	}
	if actor.Role != models.RoleAdmin && presentation.LecturerID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may cancel this presentation")
	}
	if presentation.Status == models.PresentationStatusCancelled {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "presentation already cancelled")
	}

	if err := s.repo.UpdateStatus(ctx, id, models.PresentationStatusCancelled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel presentation")
	}

	s.publishEvent(id, models.PresentationEventCancelled, actor.UserID)
	return nil
}

// ListForStudent returns the student's visible presentations with derived
// submission state. Presentations whose allow-list excludes the student
// are filtered out even when the student is enrolled.
func (s *PresentationService) ListForStudent(ctx context.Context, studentID string) ([]models.StudentPresentation, error) {
	presentations, err := s.repo.ListVisibleToStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list presentations")
	}

	now := s.now()
	result := make([]models.StudentPresentation, 0, len(presentations))
	for _, detail := range presentations {
		if len(detail.SelectedStudents) > 0 && !models.EligibleStudent(detail.SelectedStudents, nil, false, studentID) {
			continue
		}

		submission, err := s.repo.FindSubmission(ctx, detail.ID, studentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
		}
		graded := submission != nil && submission.GradedAt != nil
		result = append(result, models.StudentPresentation{
			PresentationDetail: detail,
			SubmissionState:    models.DeriveSubmissionState(submission != nil, graded, detail.DueDate, now),
			HasSubmitted:       submission != nil,
			IsOverdue:          models.IsOverdue(submission != nil, detail.DueDate, now),
			Submission:         submission,
		})
	}
	return result, nil
}

// GetForStudent returns one presentation as the student sees it,
// enforcing eligibility.
func (s *PresentationService) GetForStudent(ctx context.Context, id, studentID string) (*models.StudentPresentation, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presentation")
	}
	if detail.Status == models.PresentationStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
	}

	enrolled, enrolledKnown := []string(nil), false
	if ids, err := s.courses.EnrolledStudentIDs(ctx, detail.CourseID); err == nil {
		enrolled, enrolledKnown = ids, true
	} else {
		s.logger.Warn("failed to resolve enrollment, eligibility check fails open",
			zap.String("course_id", detail.CourseID), zap.Error(err))
	}
	if !models.EligibleStudent(detail.SelectedStudents, enrolled, enrolledKnown, studentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not part of this presentation's audience")
	}

	submission, err := s.repo.FindSubmission(ctx, id, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	now := s.now()
	graded := submission != nil && submission.GradedAt != nil
	return &models.StudentPresentation{
		PresentationDetail: *detail,
		SubmissionState:    models.DeriveSubmissionState(submission != nil, graded, detail.DueDate, now),
		HasSubmitted:       submission != nil,
		IsOverdue:          models.IsOverdue(submission != nil, detail.DueDate, now),
		Submission:         submission,
	}, nil
}

// Submit records the student's work. Late submissions are accepted only
// when the presentation allows them, and are flagged for penalty at
// grading time.
func (s *PresentationService) Submit(ctx context.Context, presentationID, studentID string, req models.SubmitWorkRequest) (*models.PresentationSubmission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	detail, err := s.repo.FindDetailByID(ctx, presentationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presentation")
	}

	switch detail.Status {
	case models.PresentationStatusPublished, models.PresentationStatusActive:
	default:
		return nil, appErrors.Clone(appErrors.ErrSubmissionClosed, "presentation is not accepting submissions")
	}

	enrolled, enrolledKnown := []string(nil), false
	if ids, err := s.courses.EnrolledStudentIDs(ctx, detail.CourseID); err == nil {
		enrolled, enrolledKnown = ids, true
	}
	if !models.EligibleStudent(detail.SelectedStudents, enrolled, enrolledKnown, studentID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not part of this presentation's audience")
	}

	now := s.now()
	late := now.After(detail.DueDate)
	if late && !detail.AllowLate {
		return nil, appErrors.Clone(appErrors.ErrSubmissionClosed, "deadline has passed and late submissions are not allowed")
	}

	submission := &models.PresentationSubmission{
		PresentationID: presentationID,
		StudentID:      studentID,
		Content:        req.Content,
		FileURL:        req.FileURL,
		SubmittedAt:    now,
		Late:           late,
	}
	if err := s.repo.CreateSubmission(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateSubmit, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record submission")
	}
	return submission, nil
}

// ListSubmissions returns every submission for a presentation, owner or
// admin only.
func (s *PresentationService) ListSubmissions(ctx context.Context, presentationID string, actor models.JWTClaims) ([]models.PresentationSubmission, error) {
	presentation, err := s.repo.FindByID(ctx, presentationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presentation")
	}
	if actor.Role != models.RoleAdmin && presentation.LecturerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may view submissions")
	}
	submissions, err := s.repo.ListSubmissions(ctx, presentationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// Grade records score and feedback. A late submission has the configured
// penalty applied as a percentage deduction before the score is stored.
func (s *PresentationService) Grade(ctx context.Context, presentationID string, actor models.JWTClaims, req models.GradeSubmissionRequest) (float64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading payload")
	}
	if req.Score > 100 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "score exceeds 100")
	}

	presentation, err := s.repo.FindByID(ctx, presentationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presentation")
	}
	if actor.Role != models.RoleAdmin && presentation.LecturerID != actor.UserID {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may grade submissions")
	}

	submission, err := s.repo.FindSubmission(ctx, presentationID, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	score := req.Score
	if submission.Late && presentation.LatePenalty > 0 {
		score = score * (1 - presentation.LatePenalty/100)
		if score < 0 {
			score = 0
		}
	}

	if err := s.repo.GradeSubmission(ctx, presentationID, req.StudentID, score, req.Feedback, actor.UserID); err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}
	return score, nil
}

// NotificationLog returns the fan-out audit trail, owner or admin only.
func (s *PresentationService) NotificationLog(ctx context.Context, presentationID string, actor models.JWTClaims) ([]models.NotificationLogEntry, error) {
	presentation, err := s.repo.FindByID(ctx, presentationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presentation")
	}
	if actor.Role != models.RoleAdmin && presentation.LecturerID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may view the notification log")
	}
	entries, err := s.repo.ListNotificationLog(ctx, presentationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notification log")
	}
	return entries, nil
}
