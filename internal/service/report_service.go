package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/lumina-edu/lms-api/internal/models"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
	"github.com/lumina-edu/lms-api/pkg/export"
)

// ReportFormat selects the grade report rendering.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

type reportCourseReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
}

type reportAssignmentReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
	ListSubmissionsByCourse(ctx context.Context, courseID string) ([]models.AssignmentSubmission, error)
}

type reportPresentationReader interface {
	List(ctx context.Context, filter models.PresentationFilter) ([]models.PresentationDetail, int, error)
	ListSubmissions(ctx context.Context, presentationID string) ([]models.PresentationSubmission, error)
}

type reportUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ReportService renders per-course grade reports as CSV or PDF.
type ReportService struct {
	courses       reportCourseReader
	assignments   reportAssignmentReader
	presentations reportPresentationReader
	users         reportUserReader
	csv           *export.CSVExporter
	pdf           *export.PDFExporter
	logger        *zap.Logger
}

// NewReportService constructs a ReportService instance.
func NewReportService(courses reportCourseReader, assignments reportAssignmentReader, presentations reportPresentationReader, users reportUserReader, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		courses:       courses,
		assignments:   assignments,
		presentations: presentations,
		users:         users,
		csv:           export.NewCSVExporter(),
		pdf:           export.NewPDFExporter(),
		logger:        logger,
	}
}

var gradeReportHeaders = []string{"Student", "Work Item", "Kind", "Submitted At", "Late", "Score", "Feedback"}

// GradeReport renders every graded and ungraded submission of a course.
// Only the owning lecturer or an admin may export it.
func (s *ReportService) GradeReport(ctx context.Context, courseID string, actor models.JWTClaims, format ReportFormat) ([]byte, string, error) {
	course, err := s.courses.FindDetailByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && course.LecturerID != actor.UserID {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "only the owning lecturer may export this report")
	}

	rows, err := s.collectRows(ctx, courseID)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{Headers: gradeReportHeaders, Rows: rows}
	title := fmt.Sprintf("Grade report %s %s", course.Code, course.Title)

	switch format {
	case ReportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return payload, "text/csv", nil
	case ReportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unknown report format")
	}
}

func (s *ReportService) collectRows(ctx context.Context, courseID string) ([]map[string]string, error) {
	names := map[string]string{}
	studentName := func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		name := id
		if user, err := s.users.FindByID(ctx, id); err == nil {
			name = user.FullName
		}
		names[id] = name
		return name
	}

	var rows []map[string]string

	assignments, err := s.assignments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	assignmentTitles := make(map[string]string, len(assignments))
	for _, assignment := range assignments {
		assignmentTitles[assignment.ID] = assignment.Title
	}
	submissions, err := s.assignments.ListSubmissionsByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignment submissions")
	}
	for _, submission := range submissions {
		rows = append(rows, map[string]string{
			"Student":      studentName(submission.StudentID),
			"Work Item":    assignmentTitles[submission.AssignmentID],
			"Kind":         "assignment",
			"Submitted At": submission.SubmittedAt.Format("2006-01-02 15:04"),
			"Late":         "no",
			"Score":        formatScore(submission.Score),
			"Feedback":     derefString(submission.Feedback),
		})
	}

	presentations, _, err := s.presentations.List(ctx, models.PresentationFilter{CourseID: courseID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list presentations")
	}
	for _, presentation := range presentations {
		presentationSubmissions, err := s.presentations.ListSubmissions(ctx, presentation.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list presentation submissions")
		}
		for _, submission := range presentationSubmissions {
			late := "no"
			if submission.Late {
				late = "yes"
			}
			rows = append(rows, map[string]string{
				"Student":      studentName(submission.StudentID),
				"Work Item":    presentation.Title,
				"Kind":         "presentation",
				"Submitted At": submission.SubmittedAt.Format("2006-01-02 15:04"),
				"Late":         late,
				"Score":        formatScore(submission.Score),
				"Feedback":     derefString(submission.Feedback),
			})
		}
	}
	return rows, nil
}

func formatScore(score *float64) string {
	if score == nil {
		return ""
	}
	return strconv.FormatFloat(*score, 'f', 2, 64)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
