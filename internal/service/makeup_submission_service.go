package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-makeup-api/internal/dto"
	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
	"github.com/noah-isme/edu-makeup-api/pkg/export"
)

const (
	recordTimeout  = 5 * time.Second
	exportPageSize = 200
)

type makeupSubmissionRepository interface {
	Create(ctx context.Context, submission *models.MakeupSubmission) error
	FindByID(ctx context.Context, id string) (*models.MakeupSubmission, error)
	List(ctx context.Context, filter models.MakeupSubmissionFilter) ([]models.MakeupSubmission, int, error)
}

// ExportDocument is a rendered file ready for download.
type ExportDocument struct {
	Filename    string
	ContentType string
	Body        []byte
}

// MakeupSubmissionService records booking attempts and serves the submission log.
type MakeupSubmissionService struct {
	repo      makeupSubmissionRepository
	metrics   *MetricsService
	csv       *export.CSVExporter
	xlsx      *export.XLSXExporter
	pdf       *export.PDFExporter
	slipTitle string
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewMakeupSubmissionService constructs the submission log service.
func NewMakeupSubmissionService(repo makeupSubmissionRepository, metrics *MetricsService, slipTitle string, location *time.Location, logger *zap.Logger) *MakeupSubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	if slipTitle == "" {
		slipTitle = "Make-up Session Slip"
	}
	return &MakeupSubmissionService{
		repo:      repo,
		metrics:   metrics,
		csv:       export.NewCSVExporter(),
		xlsx:      export.NewXLSXExporter(),
		pdf:       export.NewPDFExporter(),
		slipTitle: slipTitle,
		location:  location,
		logger:    logger,
		now:       time.Now,
	}
}

// Record persists a submission attempt. Failures are logged, never returned.
func (s *MakeupSubmissionService) Record(ctx context.Context, submission *models.MakeupSubmission) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	start := time.Now()
	err := s.repo.Create(ctx, submission)
	s.metrics.ObserveDBQuery("makeup_submission_create", time.Since(start))
	if err != nil {
		s.logger.Error("failed to record makeup submission", zap.String("submission_id", submission.ID), zap.Error(err))
	}
}

// List returns a page of logged submissions.
func (s *MakeupSubmissionService) List(ctx context.Context, query dto.MakeupSubmissionQuery) ([]models.MakeupSubmission, *models.Pagination, error) {
	filter := s.filterFor(query)
	start := time.Now()
	items, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("makeup_submission_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list makeup submissions")
	}
	if items == nil {
		items = []models.MakeupSubmission{}
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one logged submission.
func (s *MakeupSubmissionService) Get(ctx context.Context, id string) (*models.MakeupSubmission, error) {
	start := time.Now()
	submission, err := s.repo.FindByID(ctx, id)
	s.metrics.ObserveDBQuery("makeup_submission_get", time.Since(start))
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// Slip renders a printable PDF confirmation of a successful submission.
func (s *MakeupSubmissionService) Slip(ctx context.Context, id string) (*ExportDocument, error) {
	submission, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if submission.Status != models.SubmissionSucceeded {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "slips are only available for successful submissions")
	}
	note := ""
	if submission.Note != nil {
		note = *submission.Note
	}
	body, err := s.pdf.RenderSlip(export.Slip{
		Title:    s.slipTitle,
		Subtitle: "Submission " + submission.ID,
		Fields: []export.SlipField{
			{Label: "Student profile", Value: submission.StudentProfileID},
			{Label: "Make-up credit", Value: submission.MakeupCreditID},
			{Label: "Original class", Value: submission.FromClassID},
			{Label: "Target class", Value: submission.TargetClassID},
			{Label: "Target session", Value: submission.TargetSessionID},
			{Label: "Date", Value: submission.MakeupDate},
			{Label: "Time", Value: submission.MakeupTime},
			{Label: "Note", Value: note},
			{Label: "Submitted at", Value: submission.SubmittedAt.In(s.location).Format("2006-01-02 15:04 MST")},
		},
		Footer: "Generated " + s.now().In(s.location).Format(time.RFC3339),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render slip")
	}
	return &ExportDocument{
		Filename:    fmt.Sprintf("makeup-slip-%s.pdf", submission.ID),
		ContentType: "application/pdf",
		Body:        body,
	}, nil
}

// Export renders every row of the filtered log as CSV or XLSX.
func (s *MakeupSubmissionService) Export(ctx context.Context, query dto.MakeupSubmissionQuery) (*ExportDocument, error) {
	items, err := s.listAll(ctx, query)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Name: "Submissions",
		Columns: []export.Column{
			{Key: "id", Title: "Submission ID", Width: 38},
			{Key: "submitted_at", Title: "Submitted At", Width: 20},
			{Key: "status", Title: "Status", Width: 12},
			{Key: "student_profile_id", Title: "Student Profile", Width: 20},
			{Key: "makeup_credit_id", Title: "Credit", Width: 20},
			{Key: "from_class_id", Title: "From Class", Width: 16},
			{Key: "target_class_id", Title: "Target Class", Width: 16},
			{Key: "target_session_id", Title: "Target Session", Width: 20},
			{Key: "date", Title: "Date", Width: 12},
			{Key: "time", Title: "Time", Width: 8},
			{Key: "error", Title: "Error", Width: 30},
		},
		Rows: make([]map[string]string, 0, len(items)),
	}
	for _, item := range items {
		errMsg := ""
		if item.ErrorMessage != nil {
			errMsg = *item.ErrorMessage
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":                 item.ID,
			"submitted_at":       item.SubmittedAt.In(s.location).Format("2006-01-02 15:04"),
			"status":             string(item.Status),
			"student_profile_id": item.StudentProfileID,
			"makeup_credit_id":   item.MakeupCreditID,
			"from_class_id":      item.FromClassID,
			"target_class_id":    item.TargetClassID,
			"target_session_id":  item.TargetSessionID,
			"date":               item.MakeupDate,
			"time":               item.MakeupTime,
			"error":              errMsg,
		})
	}

	stamp := s.now().In(s.location).Format("20060102-150405")
	switch query.Format {
	case "xlsx":
		body, err := s.xlsx.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
		}
		return &ExportDocument{
			Filename:    "makeup-submissions-" + stamp + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Body:        body,
		}, nil
	default:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
		}
		return &ExportDocument{Filename: "makeup-submissions-" + stamp + ".csv", ContentType: "text/csv", Body: body}, nil
	}
}

// listAll walks the log page by page until the reported total is reached.
func (s *MakeupSubmissionService) listAll(ctx context.Context, query dto.MakeupSubmissionQuery) ([]models.MakeupSubmission, error) {
	query.PageSize = exportPageSize
	var all []models.MakeupSubmission
	for page := 1; ; page++ {
		query.Page = page
		items, pagination, err := s.List(ctx, query)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < exportPageSize || len(all) >= pagination.TotalCount {
			return all, nil
		}
	}
}

func (s *MakeupSubmissionService) filterFor(query dto.MakeupSubmissionQuery) models.MakeupSubmissionFilter {
	filter := models.MakeupSubmissionFilter{
		StudentProfileID: query.StudentProfileID,
		MakeupCreditID:   query.MakeupCreditID,
		Status:           models.SubmissionStatus(query.Status),
		Page:             query.Page,
		PageSize:         query.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 20
	}
	if query.From != nil {
		from := time.Date(query.From.Year(), query.From.Month(), query.From.Day(), 0, 0, 0, 0, s.location)
		filter.From = &from
	}
	if query.To != nil {
		// The upper bound is exclusive, so include the whole "to" day.
		to := time.Date(query.To.Year(), query.To.Month(), query.To.Day(), 0, 0, 0, 0, s.location).AddDate(0, 0, 1)
		filter.To = &to
	}
	return filter
}
