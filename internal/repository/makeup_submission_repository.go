package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
)

const submissionColumns = `id, workflow_id, student_profile_id, makeup_credit_id, from_class_id, target_class_id, target_session_id,
        makeup_date, makeup_time, note, status, error_message, ip_address, user_agent, submitted_at`

// MakeupSubmissionRepository persists the make-up submission log.
type MakeupSubmissionRepository struct {
	db *sqlx.DB
}

// NewMakeupSubmissionRepository constructs the repository.
func NewMakeupSubmissionRepository(db *sqlx.DB) *MakeupSubmissionRepository {
	return &MakeupSubmissionRepository{db: db}
}

// Create inserts one submission attempt.
func (r *MakeupSubmissionRepository) Create(ctx context.Context, submission *models.MakeupSubmission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	query := `INSERT INTO makeup_submissions (` + submissionColumns + `)
        VALUES (:id, :workflow_id, :student_profile_id, :makeup_credit_id, :from_class_id, :target_class_id, :target_session_id,
        :makeup_date, :makeup_time, :note, :status, :error_message, :ip_address, :user_agent, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("insert makeup submission: %w", err)
	}
	return nil
}

// FindByID returns one submission.
func (r *MakeupSubmissionRepository) FindByID(ctx context.Context, id string) (*models.MakeupSubmission, error) {
	var submission models.MakeupSubmission
	query := `SELECT ` + submissionColumns + ` FROM makeup_submissions WHERE id = $1`
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "makeup submission not found")
		}
		return nil, fmt.Errorf("get makeup submission: %w", err)
	}
	return &submission, nil
}

// List returns a page of submissions, newest first, with the total match count.
func (r *MakeupSubmissionRepository) List(ctx context.Context, filter models.MakeupSubmissionFilter) ([]models.MakeupSubmission, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.StudentProfileID != "" {
		args = append(args, filter.StudentProfileID)
		conditions = append(conditions, fmt.Sprintf("student_profile_id = $%d", len(args)))
	}
	if filter.MakeupCreditID != "" {
		args = append(args, filter.MakeupCreditID)
		conditions = append(conditions, fmt.Sprintf("makeup_credit_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("submitted_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("submitted_at < $%d", len(args)))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM makeup_submissions %s ORDER BY submitted_at DESC LIMIT %d OFFSET %d", submissionColumns, where, size, offset)
	var submissions []models.MakeupSubmission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list makeup submissions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM makeup_submissions "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count makeup submissions: %w", err)
	}
	return submissions, total, nil
}

// Ping checks database connectivity for readiness probes.
func (r *MakeupSubmissionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
