package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumina-edu/lms-api/internal/service"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
	"github.com/lumina-edu/lms-api/pkg/response"
)

// ReportHandler wires HTTP endpoints to the report service.
type ReportHandler struct {
	service *service.ReportService
	enabled bool
}

// NewReportHandler creates a new handler.
func NewReportHandler(svc *service.ReportService, enabled bool) *ReportHandler {
	return &ReportHandler{service: svc, enabled: enabled}
}

// GradeReport godoc
// @Summary Export grade report
// @Description Export a course's submissions and grades as CSV or PDF
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/reports/grades [get]
func (h *ReportHandler) GradeReport(c *gin.Context) {
	if !h.enabled {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "report exports are disabled"))
		return
	}

	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.ReportFormat(c.DefaultQuery("format", string(service.ReportFormatCSV)))
	payload, contentType, err := h.service.GradeReport(c.Request.Context(), c.Param("id"), *claims, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("grade-report-%s.%s", c.Param("id"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
