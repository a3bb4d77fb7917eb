package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-makeup-api/internal/dto"
	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
)

// SubmissionRecorder logs booking attempts. Implementations must not fail the booking.
type SubmissionRecorder interface {
	Record(ctx context.Context, submission *models.MakeupSubmission)
}

// MakeupWorkflowConfig holds service-wide workflow limits.
type MakeupWorkflowConfig struct {
	FetchTimeout  time.Duration
	TTL           time.Duration
	MaxWorkflows  int
	MaxViewWait   time.Duration
	SweepSchedule string
	Location      *time.Location
}

// MakeupWorkflowService owns the open make-up workflows of this instance.
type MakeupWorkflowService struct {
	fetcher    StageFetcher
	booker     MakeupBooker
	dispatcher FetchDispatcher
	gate       *SubmissionGate
	recorder   SubmissionRecorder
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        MakeupWorkflowConfig
	now        func() time.Time

	mu        sync.RWMutex
	workflows map[string]*MakeupWorkflow

	cron *cron.Cron
}

// NewMakeupWorkflowService wires the workflow registry. recorder may be nil.
func NewMakeupWorkflowService(fetcher StageFetcher, booker MakeupBooker, dispatcher FetchDispatcher, gate *SubmissionGate, recorder SubmissionRecorder, metrics *MetricsService, cfg MakeupWorkflowConfig, logger *zap.Logger) *MakeupWorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = NewSubmissionGate(nil)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.MaxWorkflows <= 0 {
		cfg.MaxWorkflows = 500
	}
	if cfg.MaxViewWait <= 0 {
		cfg.MaxViewWait = 10 * time.Second
	}
	return &MakeupWorkflowService{
		fetcher:    fetcher,
		booker:     booker,
		dispatcher: dispatcher,
		gate:       gate,
		recorder:   recorder,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		workflows:  make(map[string]*MakeupWorkflow),
	}
}

// Open starts a new workflow and begins loading its student list.
func (s *MakeupWorkflowService) Open(ctx context.Context) (*dto.MakeupWorkflowView, error) {
	s.mu.Lock()
	if len(s.workflows) >= s.cfg.MaxWorkflows {
		s.mu.Unlock()
		return nil, appErrors.ErrTooManyWorkflows
	}
	wf := NewMakeupWorkflow(uuid.NewString(), s.fetcher, s.booker, s.dispatcher, s.gate, MakeupWorkflowOptions{
		FetchTimeout: s.cfg.FetchTimeout,
		Location:     s.cfg.Location,
		TTL:          s.cfg.TTL,
		Metrics:      s.metrics,
		Logger:       s.logger,
		Now:          s.now,
	})
	s.workflows[wf.ID()] = wf
	open := len(s.workflows)
	s.mu.Unlock()

	s.metrics.SetOpenWorkflows(open)
	s.logger.Debug("makeup workflow opened", zap.String("workflow_id", wf.ID()))
	return wf.Start(), nil
}

// Get returns the workflow view, optionally waiting up to wait for in-flight fetches to settle.
func (s *MakeupWorkflowService) Get(ctx context.Context, id string, wait time.Duration) (*dto.MakeupWorkflowView, error) {
	wf, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if wait > 0 {
		if wait > s.cfg.MaxViewWait {
			wait = s.cfg.MaxViewWait
		}
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		// A wait that runs out still returns the current (loading) view.
		_ = wf.WaitIdle(waitCtx)
		cancel()
	}
	return wf.View()
}

// SetField applies one edit to the workflow.
func (s *MakeupWorkflowService) SetField(ctx context.Context, id string, field models.MakeupField, value string) (*dto.MakeupWorkflowView, error) {
	wf, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return wf.SetField(field, value)
}

// SetNote updates the workflow note.
func (s *MakeupWorkflowService) SetNote(ctx context.Context, id, note string) (*dto.MakeupWorkflowView, error) {
	wf, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return wf.SetNote(note)
}

// Retry re-runs a failed stage.
func (s *MakeupWorkflowService) Retry(ctx context.Context, id string, stage models.MakeupStage) (*dto.MakeupWorkflowView, error) {
	wf, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return wf.Retry(stage)
}

// Submit books the workflow's payload and records the attempt.
func (s *MakeupWorkflowService) Submit(ctx context.Context, id string, origin models.RequestOrigin) (*dto.SubmitMakeupResponse, error) {
	wf, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	booking, err := wf.Submit(ctx)
	if err != nil && (booking.MakeupCreditID == "" || isGateRejection(err)) {
		// Rejected before any write was attempted.
		return nil, err
	}

	submission := &models.MakeupSubmission{
		ID:               uuid.NewString(),
		WorkflowID:       id,
		StudentProfileID: booking.StudentProfileID,
		MakeupCreditID:   booking.MakeupCreditID,
		FromClassID:      booking.FromClassID,
		TargetClassID:    booking.TargetClassID,
		TargetSessionID:  booking.TargetSessionID,
		MakeupDate:       booking.Date,
		MakeupTime:       booking.Time,
		Note:             optionalString(booking.Note),
		Status:           models.SubmissionSucceeded,
		IPAddress:        origin.IPAddress,
		UserAgent:        origin.UserAgent,
		SubmittedAt:      s.now().UTC(),
	}
	if err != nil {
		submission.Status = models.SubmissionFailed
		submission.ErrorMessage = optionalString(appErrors.FromError(err).Message)
	}
	s.metrics.RecordSubmission(submission.Status)
	if s.recorder != nil {
		s.recorder.Record(ctx, submission)
	}
	if err != nil {
		return nil, err
	}

	s.remove(id)
	s.logger.Info("makeup submission accepted",
		zap.String("workflow_id", id),
		zap.String("submission_id", submission.ID),
		zap.String("request_id", origin.RequestID))
	return &dto.SubmitMakeupResponse{SubmissionID: submission.ID, WorkflowID: id, Booking: booking}, nil
}

// Discard closes and forgets a workflow.
func (s *MakeupWorkflowService) Discard(ctx context.Context, id string) error {
	wf, err := s.lookup(id)
	if err != nil {
		return err
	}
	wf.Close()
	s.remove(id)
	return nil
}

// Count returns the number of open workflows.
func (s *MakeupWorkflowService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

// Sweep removes workflows idle for longer than the TTL and returns how many were dropped.
func (s *MakeupWorkflowService) Sweep() int {
	cutoff := s.now().Add(-s.cfg.TTL)

	s.mu.Lock()
	expired := make([]*MakeupWorkflow, 0)
	for id, wf := range s.workflows {
		if wf.Closed() || wf.LastActive().Before(cutoff) {
			expired = append(expired, wf)
			delete(s.workflows, id)
		}
	}
	open := len(s.workflows)
	s.mu.Unlock()

	for _, wf := range expired {
		wf.Close()
	}
	s.metrics.SetOpenWorkflows(open)
	if len(expired) > 0 {
		s.logger.Info("expired makeup workflows swept", zap.Int("expired", len(expired)), zap.Int("open", open))
	}
	return len(expired)
}

// StartSweeper schedules Sweep on the configured cron schedule.
func (s *MakeupWorkflowService) StartSweeper() error {
	schedule := s.cfg.SweepSchedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() { s.Sweep() }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.logger.Info("makeup workflow sweeper started", zap.String("schedule", schedule), zap.Duration("ttl", s.cfg.TTL))
	return nil
}

// StopSweeper stops the cron scheduler and waits for a running sweep.
func (s *MakeupWorkflowService) StopSweeper() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *MakeupWorkflowService) lookup(id string) (*MakeupWorkflow, error) {
	s.mu.RLock()
	wf, ok := s.workflows[id]
	s.mu.RUnlock()
	if !ok || wf.Closed() {
		return nil, appErrors.ErrWorkflowNotFound
	}
	return wf, nil
}

func (s *MakeupWorkflowService) remove(id string) {
	s.mu.Lock()
	delete(s.workflows, id)
	open := len(s.workflows)
	s.mu.Unlock()
	s.metrics.SetOpenWorkflows(open)
}

func isGateRejection(err error) bool {
	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrIncompletePayload.Code, appErrors.ErrSubmissionInFlight.Code, appErrors.ErrWorkflowNotFound.Code:
		return true
	default:
		return false
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
