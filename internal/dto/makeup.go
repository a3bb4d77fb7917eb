package dto

import (
	"time"

	"github.com/noah-isme/edu-makeup-api/internal/models"
)

// SetMakeupFieldRequest carries a new value for one cascade field. An empty value clears it.
type SetMakeupFieldRequest struct {
	Value string `json:"value" binding:"max=128"`
}

// SetMakeupNoteRequest carries the optional free-text note.
type SetMakeupNoteRequest struct {
	Note string `json:"note" binding:"max=1000"`
}

// StageView is the render state of one fetch stage.
type StageView struct {
	Status models.StageStatus `json:"status"`
	Error  string             `json:"error,omitempty"`
}

// StudentStageView lists students that hold usable credits.
type StudentStageView struct {
	StageView
	Options []models.MakeupStudent `json:"options"`
}

// CreditStageView lists the selected student's usable credits.
type CreditStageView struct {
	StageView
	Options []models.MakeupCredit `json:"options"`
}

// SourceSessionStageView exposes the missed session behind the selected credit.
type SourceSessionStageView struct {
	StageView
	Session *models.SourceSession `json:"session,omitempty"`
}

// ClassStageView lists selectable target classes for the current mode.
type ClassStageView struct {
	StageView
	Options []models.MakeupClassOption `json:"options"`
}

// SessionStageView lists selectable sessions for the current mode.
type SessionStageView struct {
	StageView
	Options []models.MakeupSessionOption `json:"options"`
}

// MakeupWorkflowView is the complete render state of an open make-up workflow.
type MakeupWorkflowView struct {
	ID             string                   `json:"id"`
	Mode           models.MakeupMode        `json:"mode"`
	ModeSettled    bool                     `json:"modeSettled"`
	Payload        models.ResolutionPayload `json:"payload"`
	TimeOfDay      models.TimeOfDay         `json:"timeOfDay,omitempty"`
	Students       StudentStageView         `json:"students"`
	Credits        CreditStageView          `json:"credits"`
	SourceSession  SourceSessionStageView   `json:"sourceSession"`
	Suggestions    SessionStageView         `json:"suggestions"`
	TargetClasses  ClassStageView           `json:"targetClasses"`
	TargetSessions SessionStageView         `json:"targetSessions"`
	Loading        bool                     `json:"loading"`
	CanSubmit      bool                     `json:"canSubmit"`
	Submitting     bool                     `json:"submitting"`
	SubmitError    string                   `json:"submitError,omitempty"`
	ExpiresAt      time.Time                `json:"expiresAt"`
}

// SubmitMakeupResponse confirms a booked make-up session.
type SubmitMakeupResponse struct {
	SubmissionID string                      `json:"submissionId"`
	WorkflowID   string                      `json:"workflowId"`
	Booking      models.MakeupBookingRequest `json:"booking"`
}

// MakeupSubmissionQuery mirrors supported submission listing filters.
type MakeupSubmissionQuery struct {
	StudentProfileID string     `form:"studentProfileId"`
	MakeupCreditID   string     `form:"makeupCreditId"`
	Status           string     `form:"status" binding:"omitempty,oneof=SUCCEEDED FAILED"`
	From             *time.Time `form:"from" time_format:"2006-01-02"`
	To               *time.Time `form:"to" time_format:"2006-01-02"`
	Page             int        `form:"page" binding:"omitempty,min=1"`
	PageSize         int        `form:"pageSize" binding:"omitempty,min=1,max=200"`
	Format           string     `form:"format" binding:"omitempty,oneof=csv xlsx"`
}
