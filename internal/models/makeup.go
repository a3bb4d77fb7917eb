package models

import "strings"

// MakeupEntityKind names the upstream entities the resolution workflow normalizes.
type MakeupEntityKind string

const (
	EntityStudent       MakeupEntityKind = "student"
	EntityCredit        MakeupEntityKind = "credit"
	EntitySourceSession MakeupEntityKind = "sourceSession"
	EntitySuggestion    MakeupEntityKind = "suggestion"
	EntityManualClass   MakeupEntityKind = "manualClass"
	EntityManualSession MakeupEntityKind = "manualSession"
)

// MakeupStudent is a student holding at least one usable make-up credit.
type MakeupStudent struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// MakeupCredit entitles a student to attend a replacement session for a missed one.
type MakeupCredit struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	SourceSessionID string `json:"sourceSessionId"`
}

// Credit statuses offered to the admin; anything else is hidden.
const (
	CreditStatusAvailable = "AVAILABLE"
	CreditStatusActive    = "ACTIVE"
)

// Usable reports whether the credit status textually indicates availability.
func (c MakeupCredit) Usable() bool {
	switch strings.ToUpper(strings.TrimSpace(c.Status)) {
	case CreditStatusAvailable, CreditStatusActive:
		return true
	default:
		return false
	}
}

// SourceSession is the read-only snapshot of the missed session that generated a credit.
type SourceSession struct {
	ID              string `json:"id"`
	ClassID         string `json:"classId"`
	ClassCode       string `json:"classCode,omitempty"`
	ClassTitle      string `json:"classTitle,omitempty"`
	PlannedDatetime string `json:"plannedDatetime,omitempty"`
	PlannedRoomName string `json:"plannedRoomName,omitempty"`
	BranchName      string `json:"branchName,omitempty"`
}

// MakeupSessionOption is the canonical shape for suggestions and manually listed sessions.
type MakeupSessionOption struct {
	ClassID         string `json:"classId"`
	ClassName       string `json:"className"`
	ClassCode       string `json:"classCode"`
	SessionID       string `json:"sessionId"`
	PlannedDatetime string `json:"plannedDatetime"`
}

// MakeupClassOption is a selectable target class.
type MakeupClassOption struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
}

// TimeOfDay is the coarse bucket sent to the suggestion service.
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "Morning"
	TimeOfDayAfternoon TimeOfDay = "Afternoon"
	TimeOfDayEvening   TimeOfDay = "Evening"
)

// SuggestionQuery scopes one suggestion lookup. TimeOfDay is optional.
type SuggestionQuery struct {
	CreditID   string
	MakeupDate string
	TimeOfDay  TimeOfDay
}

// MakeupMode selects which option population feeds the target class/session choices.
type MakeupMode string

const (
	MakeupModeNone   MakeupMode = ""
	MakeupModeGuided MakeupMode = "GUIDED"
	MakeupModeManual MakeupMode = "MANUAL"
)

// MakeupField is a user-settable field of the resolution payload.
type MakeupField string

const (
	FieldStudentProfileID MakeupField = "studentProfileId"
	FieldMakeupCreditID   MakeupField = "makeupCreditId"
	FieldTargetClassID    MakeupField = "targetClassId"
	FieldTargetSessionID  MakeupField = "targetSessionId"
	FieldDate             MakeupField = "date"
	FieldTime             MakeupField = "time"
)

// ParseMakeupField validates a field name coming from the API.
func ParseMakeupField(raw string) (MakeupField, bool) {
	switch f := MakeupField(strings.TrimSpace(raw)); f {
	case FieldStudentProfileID, FieldMakeupCreditID, FieldTargetClassID, FieldTargetSessionID, FieldDate, FieldTime:
		return f, true
	default:
		return "", false
	}
}

// MakeupStage identifies one fetch stage of the resolution workflow.
type MakeupStage string

const (
	StageStudents       MakeupStage = "students"
	StageCredits        MakeupStage = "credits"
	StageSourceSession  MakeupStage = "sourceSession"
	StageSuggestions    MakeupStage = "suggestions"
	StageManualClasses  MakeupStage = "manualClasses"
	StageManualSessions MakeupStage = "manualSessions"
)

// MakeupStages lists every fetch stage in dependency order.
var MakeupStages = []MakeupStage{
	StageStudents,
	StageCredits,
	StageSourceSession,
	StageSuggestions,
	StageManualClasses,
	StageManualSessions,
}

// StageStatus is the render state of a fetch stage.
type StageStatus string

const (
	StageIdle    StageStatus = "idle"
	StageLoading StageStatus = "loading"
	StageReady   StageStatus = "ready"
	StageFailed  StageStatus = "error"
)

// ResolutionPayload is the working state of one make-up form.
type ResolutionPayload struct {
	StudentProfileID string `json:"studentProfileId" validate:"required"`
	MakeupCreditID   string `json:"makeupCreditId" validate:"required"`
	FromClassID      string `json:"fromClassId" validate:"required"`
	TargetClassID    string `json:"targetClassId" validate:"required"`
	TargetSessionID  string `json:"targetSessionId" validate:"required"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	Time             string `json:"time" validate:"required,datetime=15:04"`
	Note             string `json:"note,omitempty" validate:"max=1000"`
}

// MakeupBookingRequest is the write sent to the core API on submission.
type MakeupBookingRequest struct {
	StudentProfileID string `json:"studentProfileId"`
	MakeupCreditID   string `json:"makeupCreditId"`
	FromClassID      string `json:"fromClassId"`
	TargetClassID    string `json:"targetClassId"`
	TargetSessionID  string `json:"targetSessionId"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	Note             string `json:"note,omitempty"`
}
