package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumina-edu/lms-api/internal/models"
	"github.com/lumina-edu/lms-api/internal/service"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
	"github.com/lumina-edu/lms-api/pkg/response"
)

// PresentationHandler wires HTTP endpoints to the presentation service.
type PresentationHandler struct {
	service *service.PresentationService
	metrics *service.MetricsService
}

// NewPresentationHandler creates a new handler.
func NewPresentationHandler(svc *service.PresentationService, metrics *service.MetricsService) *PresentationHandler {
	return &PresentationHandler{service: svc, metrics: metrics}
}

// Create godoc
// @Summary Create presentation
// @Description Schedule a presentation in a course; publishing fans out notifications
// @Tags Presentations
// @Accept json
// @Produce json
// @Param payload body models.CreatePresentationRequest true "Presentation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations [post]
func (h *PresentationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreatePresentationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid presentation payload"))
		return
	}

	presentation, err := h.service.Create(c.Request.Context(), *claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, presentation)
}

// List godoc
// @Summary List presentations
// @Description List presentations with filters and pagination
// @Tags Presentations
// @Produce json
// @Param course_id query string false "Course filter"
// @Param status query string false "Status filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations [get]
func (h *PresentationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.PresentationFilter{
		CourseID: c.Query("course_id"),
		Status:   models.PresentationStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown presentation status"))
		return
	}
	// Lecturers see their own schedule by default.
	if claims.Role == models.RoleLecturer && c.Query("course_id") == "" {
		filter.LecturerID = claims.UserID
	}

	presentations, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, presentations, pagination)
}

// Get godoc
// @Summary Presentation detail
// @Description Return a presentation with rubric and allow-list
// @Tags Presentations
// @Produce json
// @Param id path string true "Presentation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations/{id} [get]
func (h *PresentationHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Update presentation
// @Description Apply partial edits; notifiable states re-fan out
// @Tags Presentations
// @Accept json
// @Produce json
// @Param id path string true "Presentation ID"
// @Param payload body models.UpdatePresentationRequest true "Presentation payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations/{id} [put]
func (h *PresentationHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdatePresentationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid presentation payload"))
		return
	}

	presentation, err := h.service.Update(c.Request.Context(), c.Param("id"), *claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, presentation, nil)
}

// Cancel godoc
// @Summary Cancel presentation
// @Description Cancel a presentation and notify the enrolled roster
// @Tags Presentations
// @Produce json
// @Param id path string true "Presentation ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations/{id} [delete]
func (h *PresentationHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), *claims); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ListMine godoc
// @Summary My presentations
// @Description List presentations visible to the authenticated student
// @Tags Presentations
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /student/presentations [get]
func (h *PresentationHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	presentations, err := h.service.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, presentations, nil)
}

// GetMine godoc
// @Summary My presentation detail
// @Description Return one presentation as the authenticated student sees it
// @Tags Presentations
// @Produce json
// @Param id path string true "Presentation ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /student/presentations/{id} [get]
func (h *PresentationHandler) GetMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	detail, err := h.service.GetForStudent(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Submit godoc
// @Summary Submit presentation work
// @Description Record the authenticated student's submission, honoring late policy
// @Tags Presentations
// @Accept json
// @Produce json
// @Param id path string true "Presentation ID"
// @Param payload body models.SubmitWorkRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations/{id}/submissions [post]
func (h *PresentationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.SubmitWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}

	submission, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.ObserveSubmission("presentation")
	response.Created(c, submission)
}

// ListSubmissions godoc
// @Summary Presentation submissions
// @Description List every submission of a presentation
// @Tags Presentations
// @Produce json
// @Param id path string true "Presentation ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations/{id}/submissions [get]
func (h *PresentationHandler) ListSubmissions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	submissions, err := h.service.ListSubmissions(c.Request.Context(), c.Param("id"), *claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, submissions, nil)
}

// Grade godoc
// @Summary Grade presentation submission
// @Description Record score and feedback, applying late penalty when due
// @Tags Presentations
// @Accept json
// @Produce json
// @Param id path string true "Presentation ID"
// @Param payload body models.GradeSubmissionRequest true "Grading payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations/{id}/grade [post]
func (h *PresentationHandler) Grade(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grading payload"))
		return
	}

	finalScore, err := h.service.Grade(c.Request.Context(), c.Param("id"), *claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"student_id": req.StudentID, "score": finalScore}, nil)
}

// NotificationLog godoc
// @Summary Fan-out audit trail
// @Description List the notification log of a presentation
// @Tags Presentations
// @Produce json
// @Param id path string true "Presentation ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations/{id}/notifications [get]
func (h *PresentationHandler) NotificationLog(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	entries, err := h.service.NotificationLog(c.Request.Context(), c.Param("id"), *claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, nil)
}
