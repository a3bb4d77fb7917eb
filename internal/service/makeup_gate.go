package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
)

// SubmissionGate decides whether a resolution payload may be booked.
type SubmissionGate struct {
	validator *validator.Validate
}

// NewSubmissionGate constructs a gate. A nil validator gets a fresh instance.
func NewSubmissionGate(v *validator.Validate) *SubmissionGate {
	if v == nil {
		v = validator.New()
	}
	return &SubmissionGate{validator: v}
}

// CanSubmit reports whether every required field is present and well formed.
func (g *SubmissionGate) CanSubmit(payload models.ResolutionPayload) bool {
	return g.Check(payload) == nil
}

// Check returns an INCOMPLETE_PAYLOAD error naming the offending fields.
func (g *SubmissionGate) Check(payload models.ResolutionPayload) error {
	err := g.validator.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErrors.Wrap(err, appErrors.ErrIncompletePayload.Code, appErrors.ErrIncompletePayload.Status, appErrors.ErrIncompletePayload.Message)
	}
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, lowerFirst(fe.Field()))
	}
	return appErrors.Clone(appErrors.ErrIncompletePayload, "make-up payload is incomplete: "+strings.Join(names, ", "))
}

func (g *SubmissionGate) booking(payload models.ResolutionPayload) models.MakeupBookingRequest {
	return models.MakeupBookingRequest{
		StudentProfileID: payload.StudentProfileID,
		MakeupCreditID:   payload.MakeupCreditID,
		FromClassID:      payload.FromClassID,
		TargetClassID:    payload.TargetClassID,
		TargetSessionID:  payload.TargetSessionID,
		Date:             payload.Date,
		Time:             payload.Time,
		Note:             strings.TrimSpace(payload.Note),
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
