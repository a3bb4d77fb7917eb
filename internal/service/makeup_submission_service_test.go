package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-makeup-api/internal/dto"
	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
)

type fakeSubmissionRepo struct {
	items      []models.MakeupSubmission
	total      int
	createErr  error
	listErr    error
	created    []*models.MakeupSubmission
	lastFilter models.MakeupSubmissionFilter
	createCtx  context.Context
	paginate   bool
	pages      []int
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, submission *models.MakeupSubmission) error {
	f.createCtx = ctx
	f.created = append(f.created, submission)
	return f.createErr
}

func (f *fakeSubmissionRepo) FindByID(_ context.Context, id string) (*models.MakeupSubmission, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			return &f.items[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "makeup submission not found")
}

func (f *fakeSubmissionRepo) List(_ context.Context, filter models.MakeupSubmissionFilter) ([]models.MakeupSubmission, int, error) {
	f.lastFilter = filter
	f.pages = append(f.pages, filter.Page)
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	if !f.paginate {
		return f.items, f.total, nil
	}
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(f.items) {
		return nil, f.total, nil
	}
	end := start + filter.PageSize
	if end > len(f.items) {
		end = len(f.items)
	}
	return f.items[start:end], f.total, nil
}

func sampleSubmissions() []models.MakeupSubmission {
	note := "bring the workbook"
	reason := "session is full"
	return []models.MakeupSubmission{
		{
			ID: "sub-1", WorkflowID: "wf-1", StudentProfileID: "stu-1", MakeupCreditID: "cr-1",
			FromClassID: "cls-src", TargetClassID: "cls-a", TargetSessionID: "ses-a1",
			MakeupDate: "2025-01-11", MakeupTime: "14:00", Note: &note,
			Status: models.SubmissionSucceeded, SubmittedAt: time.Date(2025, 1, 10, 3, 0, 0, 0, time.UTC),
		},
		{
			ID: "sub-2", WorkflowID: "wf-2", StudentProfileID: "stu-2", MakeupCreditID: "cr-2",
			FromClassID: "cls-other", TargetClassID: "cls-b", TargetSessionID: "ses-b1",
			MakeupDate: "2025-01-11", MakeupTime: "08:00", ErrorMessage: &reason,
			Status: models.SubmissionFailed, SubmittedAt: time.Date(2025, 1, 10, 4, 0, 0, 0, time.UTC),
		},
	}
}

func TestMakeupSubmissionServiceRecordSwallowsErrors(t *testing.T) {
	repo := &fakeSubmissionRepo{createErr: errors.New("db down")}
	svc := NewMakeupSubmissionService(repo, nil, "", testZone, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() {
		svc.Record(ctx, &models.MakeupSubmission{ID: "sub-1"})
	})
	require.Len(t, repo.created, 1)
	assert.NoError(t, repo.createCtx.Err(), "recording outlives the request context")
}

func TestMakeupSubmissionServiceListBuildsFilter(t *testing.T) {
	repo := &fakeSubmissionRepo{items: sampleSubmissions(), total: 42}
	svc := NewMakeupSubmissionService(repo, nil, "", testZone, zap.NewNop())

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	items, pagination, err := svc.List(context.Background(), dto.MakeupSubmissionQuery{
		Status: "FAILED", From: &from, To: &to, PageSize: 500,
	})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 42}, pagination)

	assert.Equal(t, models.SubmissionFailed, repo.lastFilter.Status)
	require.NotNil(t, repo.lastFilter.From)
	require.NotNil(t, repo.lastFilter.To)
	assert.Equal(t, "2025-01-01T00:00:00+07:00", repo.lastFilter.From.Format(time.RFC3339))
	assert.Equal(t, "2025-01-11T00:00:00+07:00", repo.lastFilter.To.Format(time.RFC3339))
}

func TestMakeupSubmissionServiceListWrapsRepoErrors(t *testing.T) {
	repo := &fakeSubmissionRepo{listErr: errors.New("boom")}
	svc := NewMakeupSubmissionService(repo, nil, "", testZone, zap.NewNop())
	_, _, err := svc.List(context.Background(), dto.MakeupSubmissionQuery{})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestMakeupSubmissionServiceSlip(t *testing.T) {
	repo := &fakeSubmissionRepo{items: sampleSubmissions()}
	svc := NewMakeupSubmissionService(repo, nil, "Make-up Slip", testZone, zap.NewNop())

	doc, err := svc.Slip(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "makeup-slip-sub-1.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, bytes.HasPrefix(doc.Body, []byte("%PDF")))

	_, err = svc.Slip(context.Background(), "sub-2")
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.Slip(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestMakeupSubmissionServiceExportCSV(t *testing.T) {
	repo := &fakeSubmissionRepo{items: sampleSubmissions(), total: 2}
	svc := NewMakeupSubmissionService(repo, nil, "", testZone, zap.NewNop())

	doc, err := svc.Export(context.Background(), dto.MakeupSubmissionQuery{})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", doc.ContentType)
	assert.Contains(t, doc.Filename, ".csv")
	assert.Equal(t, 200, repo.lastFilter.PageSize)

	records, err := csv.NewReader(bytes.NewReader(doc.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Submission ID", records[0][0])
	assert.Equal(t, "sub-1", records[1][0])
	assert.Equal(t, "2025-01-10 10:00", records[1][1])
	assert.Equal(t, "session is full", records[2][10])
}

func TestMakeupSubmissionServiceExportXLSX(t *testing.T) {
	repo := &fakeSubmissionRepo{items: sampleSubmissions(), total: 2}
	svc := NewMakeupSubmissionService(repo, nil, "", testZone, zap.NewNop())

	doc, err := svc.Export(context.Background(), dto.MakeupSubmissionQuery{Format: "xlsx"})
	require.NoError(t, err)
	assert.Contains(t, doc.Filename, ".xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(doc.Body))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Submissions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Status", rows[0][2])
	assert.Equal(t, "FAILED", rows[2][2])
}

func TestMakeupSubmissionServiceExportWalksAllPages(t *testing.T) {
	items := make([]models.MakeupSubmission, 0, 450)
	for i := 0; i < 450; i++ {
		items = append(items, models.MakeupSubmission{
			ID:          fmt.Sprintf("sub-%03d", i),
			Status:      models.SubmissionSucceeded,
			SubmittedAt: time.Date(2025, 1, 10, 3, 0, 0, 0, time.UTC),
		})
	}
	repo := &fakeSubmissionRepo{items: items, total: len(items), paginate: true}
	svc := NewMakeupSubmissionService(repo, nil, "", testZone, zap.NewNop())

	doc, err := svc.Export(context.Background(), dto.MakeupSubmissionQuery{Page: 4, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, repo.pages)
	assert.Equal(t, 200, repo.lastFilter.PageSize)

	records, err := csv.NewReader(bytes.NewReader(doc.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 451)
	assert.Equal(t, "sub-449", records[450][0])
}
