package models

import "time"

// SubmissionStatus records the outcome of a make-up submission attempt.
type SubmissionStatus string

const (
	SubmissionSucceeded SubmissionStatus = "SUCCEEDED"
	SubmissionFailed    SubmissionStatus = "FAILED"
)

// MakeupSubmission is one logged submission attempt.
type MakeupSubmission struct {
	ID               string           `db:"id" json:"id"`
	WorkflowID       string           `db:"workflow_id" json:"workflowId"`
	StudentProfileID string           `db:"student_profile_id" json:"studentProfileId"`
	MakeupCreditID   string           `db:"makeup_credit_id" json:"makeupCreditId"`
	FromClassID      string           `db:"from_class_id" json:"fromClassId"`
	TargetClassID    string           `db:"target_class_id" json:"targetClassId"`
	TargetSessionID  string           `db:"target_session_id" json:"targetSessionId"`
	MakeupDate       string           `db:"makeup_date" json:"date"`
	MakeupTime       string           `db:"makeup_time" json:"time"`
	Note             *string          `db:"note" json:"note,omitempty"`
	Status           SubmissionStatus `db:"status" json:"status"`
	ErrorMessage     *string          `db:"error_message" json:"errorMessage,omitempty"`
	IPAddress        string           `db:"ip_address" json:"ipAddress"`
	UserAgent        string           `db:"user_agent" json:"userAgent"`
	SubmittedAt      time.Time        `db:"submitted_at" json:"submittedAt"`
}

// MakeupSubmissionFilter constrains listing queries.
type MakeupSubmissionFilter struct {
	StudentProfileID string
	MakeupCreditID   string
	Status           SubmissionStatus
	From             *time.Time
	To               *time.Time
	Page             int
	PageSize         int
}

// RequestOrigin describes who triggered a submission.
type RequestOrigin struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// Pagination describes list windows.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
