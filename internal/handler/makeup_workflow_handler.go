package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-makeup-api/internal/dto"
	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
	"github.com/noah-isme/edu-makeup-api/pkg/response"
)

type makeupWorkflowService interface {
	Open(ctx context.Context) (*dto.MakeupWorkflowView, error)
	Get(ctx context.Context, id string, wait time.Duration) (*dto.MakeupWorkflowView, error)
	SetField(ctx context.Context, id string, field models.MakeupField, value string) (*dto.MakeupWorkflowView, error)
	SetNote(ctx context.Context, id, note string) (*dto.MakeupWorkflowView, error)
	Retry(ctx context.Context, id string, stage models.MakeupStage) (*dto.MakeupWorkflowView, error)
	Submit(ctx context.Context, id string, origin models.RequestOrigin) (*dto.SubmitMakeupResponse, error)
	Discard(ctx context.Context, id string) error
}

// MakeupWorkflowHandler exposes the make-up resolution workflow.
type MakeupWorkflowHandler struct {
	service makeupWorkflowService
}

// NewMakeupWorkflowHandler builds the handler.
func NewMakeupWorkflowHandler(service makeupWorkflowService) *MakeupWorkflowHandler {
	return &MakeupWorkflowHandler{service: service}
}

// Open godoc
// @Summary Open a make-up workflow
// @Tags MakeupWorkflows
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /makeup-workflows [post]
func (h *MakeupWorkflowHandler) Open(c *gin.Context) {
	view, err := h.service.Open(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Get make-up workflow state
// @Tags MakeupWorkflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Param wait query string false "Wait for pending fetches, e.g. 2s"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /makeup-workflows/{id} [get]
func (h *MakeupWorkflowHandler) Get(c *gin.Context) {
	var wait time.Duration
	if raw := c.Query("wait"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "wait must be a duration such as 2s"))
			return
		}
		wait = parsed
	}
	view, err := h.service.Get(c.Request.Context(), c.Param("id"), wait)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// SetField godoc
// @Summary Set a make-up workflow field
// @Description Setting a field clears the fields that depend on it and schedules dependent lookups.
// @Tags MakeupWorkflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param field path string true "studentProfileId, makeupCreditId, date, time, targetClassId or targetSessionId"
// @Param payload body dto.SetMakeupFieldRequest true "Field value"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /makeup-workflows/{id}/fields/{field} [put]
func (h *MakeupWorkflowHandler) SetField(c *gin.Context) {
	field, ok := models.ParseMakeupField(c.Param("field"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown field"))
		return
	}
	var req dto.SetMakeupFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid field payload"))
		return
	}
	view, err := h.service.SetField(c.Request.Context(), c.Param("id"), field, req.Value)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// SetNote godoc
// @Summary Set the make-up note
// @Tags MakeupWorkflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body dto.SetMakeupNoteRequest true "Note"
// @Success 200 {object} response.Envelope
// @Router /makeup-workflows/{id}/note [put]
func (h *MakeupWorkflowHandler) SetNote(c *gin.Context) {
	var req dto.SetMakeupNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid note payload"))
		return
	}
	view, err := h.service.SetNote(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Retry godoc
// @Summary Retry a failed lookup stage
// @Tags MakeupWorkflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Param stage path string true "Stage name"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /makeup-workflows/{id}/stages/{stage}/retry [post]
func (h *MakeupWorkflowHandler) Retry(c *gin.Context) {
	view, err := h.service.Retry(c.Request.Context(), c.Param("id"), models.MakeupStage(c.Param("stage")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Submit godoc
// @Summary Book the make-up session
// @Tags MakeupWorkflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /makeup-workflows/{id}/submit [post]
func (h *MakeupWorkflowHandler) Submit(c *gin.Context) {
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"), requestOrigin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Discard godoc
// @Summary Discard a make-up workflow
// @Tags MakeupWorkflows
// @Param id path string true "Workflow ID"
// @Success 204
// @Router /makeup-workflows/{id} [delete]
func (h *MakeupWorkflowHandler) Discard(c *gin.Context) {
	if err := h.service.Discard(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
