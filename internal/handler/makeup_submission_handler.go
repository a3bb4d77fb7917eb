package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-makeup-api/internal/dto"
	"github.com/noah-isme/edu-makeup-api/internal/models"
	"github.com/noah-isme/edu-makeup-api/internal/service"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
	"github.com/noah-isme/edu-makeup-api/pkg/response"
)

type makeupSubmissionService interface {
	List(ctx context.Context, query dto.MakeupSubmissionQuery) ([]models.MakeupSubmission, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.MakeupSubmission, error)
	Slip(ctx context.Context, id string) (*service.ExportDocument, error)
	Export(ctx context.Context, query dto.MakeupSubmissionQuery) (*service.ExportDocument, error)
}

// MakeupSubmissionHandler serves the submission log.
type MakeupSubmissionHandler struct {
	service makeupSubmissionService
}

// NewMakeupSubmissionHandler builds the handler.
func NewMakeupSubmissionHandler(service makeupSubmissionService) *MakeupSubmissionHandler {
	return &MakeupSubmissionHandler{service: service}
}

// List godoc
// @Summary List make-up submissions
// @Tags MakeupSubmissions
// @Produce json
// @Param studentProfileId query string false "Student profile"
// @Param makeupCreditId query string false "Credit"
// @Param status query string false "SUCCEEDED or FAILED"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /makeup-submissions [get]
func (h *MakeupSubmissionHandler) List(c *gin.Context) {
	var query dto.MakeupSubmissionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a make-up submission
// @Tags MakeupSubmissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /makeup-submissions/{id} [get]
func (h *MakeupSubmissionHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Slip godoc
// @Summary Download the PDF slip of a submission
// @Tags MakeupSubmissions
// @Produce application/pdf
// @Param id path string true "Submission ID"
// @Success 200 {file} file
// @Failure 412 {object} response.Envelope
// @Router /makeup-submissions/{id}/slip [get]
func (h *MakeupSubmissionHandler) Slip(c *gin.Context) {
	doc, err := h.service.Slip(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.ContentType, doc.Filename, doc.Body)
}

// Export godoc
// @Summary Export make-up submissions
// @Description Exports every row matching the filters; page and pageSize are ignored.
// @Tags MakeupSubmissions
// @Produce text/csv
// @Param format query string false "csv (default) or xlsx"
// @Success 200 {file} file
// @Router /makeup-submissions/export [get]
func (h *MakeupSubmissionHandler) Export(c *gin.Context) {
	var query dto.MakeupSubmissionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	doc, err := h.service.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.ContentType, doc.Filename, doc.Body)
}
