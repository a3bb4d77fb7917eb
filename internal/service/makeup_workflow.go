package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-makeup-api/internal/dto"
	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
	"github.com/noah-isme/edu-makeup-api/pkg/jobs"
)

const (
	defaultFetchTimeout = 20 * time.Second
	maxNoteLength       = 1000
	timedOutMessage     = "request timed out"
)

var stageLabels = map[models.MakeupStage]string{
	models.StageStudents:       "students",
	models.StageCredits:        "make-up credits",
	models.StageSourceSession:  "source session",
	models.StageSuggestions:    "suggested sessions",
	models.StageManualClasses:  "classes",
	models.StageManualSessions: "class sessions",
}

// MakeupBooker performs the booking write.
type MakeupBooker interface {
	CreateMakeupBooking(ctx context.Context, booking models.MakeupBookingRequest) error
}

// MakeupWorkflowOptions tunes a single workflow.
type MakeupWorkflowOptions struct {
	FetchTimeout time.Duration
	Location     *time.Location
	TTL          time.Duration
	Metrics      *MetricsService
	Logger       *zap.Logger
	Now          func() time.Time
}

type stageState struct {
	status models.StageStatus
	err    string
	epoch  uint64
}

type pendingFetch struct {
	stage models.MakeupStage
	epoch uint64
	// deadline is fixed when the fetch is scheduled so queue wait counts against it.
	deadline time.Time
	load     func(ctx context.Context) (interface{}, error)
}

// MakeupWorkflow is the server-side state of one make-up resolution form.
//
// Every field edit clears the fields that depend on it and schedules the fetches whose
// inputs became complete. Each stage carries an epoch that is bumped whenever its
// inputs change; a fetch result is applied only if its epoch is still current, so a
// slow response for an abandoned selection can never overwrite a newer one.
type MakeupWorkflow struct {
	id         string
	fetcher    StageFetcher
	booker     MakeupBooker
	dispatcher FetchDispatcher
	gate       *SubmissionGate
	opts       MakeupWorkflowOptions
	logger     *zap.Logger

	mu      sync.Mutex
	stages  map[models.MakeupStage]*stageState
	pending []pendingFetch

	payload       models.ResolutionPayload
	dateSetByUser bool
	timeSetByUser bool
	// queryDate and queryTime scope the suggestion lookup. Picking a session seeds the
	// payload's date and time but leaves the lookup untouched.
	queryDate string
	queryTime string

	students       []models.MakeupStudent
	credits        []models.MakeupCredit
	sourceSession  *models.SourceSession
	suggestions    []models.MakeupSessionOption
	manualClasses  []models.MakeupClassOption
	manualSessions []models.MakeupSessionOption
	mode           models.MakeupMode

	submitting  bool
	submitError string
	closed      bool

	inflight   int
	idle       chan struct{}
	lastActive time.Time
}

// NewMakeupWorkflow builds an empty workflow. Call Start to load the student list.
func NewMakeupWorkflow(id string, fetcher StageFetcher, booker MakeupBooker, dispatcher FetchDispatcher, gate *SubmissionGate, opts MakeupWorkflowOptions) *MakeupWorkflow {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if gate == nil {
		gate = NewSubmissionGate(nil)
	}
	idle := make(chan struct{})
	close(idle)

	stages := make(map[models.MakeupStage]*stageState, len(models.MakeupStages))
	for _, stage := range models.MakeupStages {
		stages[stage] = &stageState{status: models.StageIdle}
	}
	return &MakeupWorkflow{
		id:         id,
		fetcher:    fetcher,
		booker:     booker,
		dispatcher: dispatcher,
		gate:       gate,
		opts:       opts,
		logger:     opts.Logger.With(zap.String("workflow_id", id)),
		stages:     stages,
		idle:       idle,
		lastActive: opts.Now(),
	}
}

// ID returns the workflow identifier.
func (w *MakeupWorkflow) ID() string {
	return w.id
}

// Start schedules the initial student listing.
func (w *MakeupWorkflow) Start() *dto.MakeupWorkflowView {
	w.mu.Lock()
	w.scheduleStudentsLocked()
	view := w.viewLocked()
	tasks := w.takePendingLocked()
	w.mu.Unlock()

	w.dispatch(tasks)
	return view
}

// View returns the current render state.
func (w *MakeupWorkflow) View() (*dto.MakeupWorkflowView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, appErrors.ErrWorkflowNotFound
	}
	w.lastActive = w.opts.Now()
	return w.viewLocked(), nil
}

// WaitIdle blocks until no fetch is in flight or ctx ends.
func (w *MakeupWorkflow) WaitIdle(ctx context.Context) error {
	for {
		w.mu.Lock()
		if w.inflight == 0 {
			w.mu.Unlock()
			return nil
		}
		idle := w.idle
		w.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LastActive reports when the workflow was last read or edited.
func (w *MakeupWorkflow) LastActive() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}

// Close discards the workflow. Late fetch results are ignored.
func (w *MakeupWorkflow) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// Closed reports whether the workflow was submitted or discarded.
func (w *MakeupWorkflow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// SetField applies one user edit and its cascade.
func (w *MakeupWorkflow) SetField(field models.MakeupField, value string) (*dto.MakeupWorkflowView, error) {
	value = strings.TrimSpace(value)

	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return nil, err
	}

	var err error
	switch field {
	case models.FieldStudentProfileID:
		err = w.setStudentLocked(value)
	case models.FieldMakeupCreditID:
		err = w.setCreditLocked(value)
	case models.FieldDate:
		err = w.setDateLocked(value)
	case models.FieldTime:
		err = w.setTimeLocked(value)
	case models.FieldTargetClassID:
		err = w.setTargetClassLocked(value)
	case models.FieldTargetSessionID:
		err = w.setTargetSessionLocked(value)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown field %q", field))
	}
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}

	view := w.viewLocked()
	tasks := w.takePendingLocked()
	w.mu.Unlock()

	w.dispatch(tasks)
	return view, nil
}

// SetNote updates the optional note. It never cascades.
func (w *MakeupWorkflow) SetNote(note string) (*dto.MakeupWorkflowView, error) {
	if len([]rune(note)) > maxNoteLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("note must be at most %d characters", maxNoteLength))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return nil, err
	}
	w.payload.Note = note
	return w.viewLocked(), nil
}

// Retry re-runs a failed stage with its current inputs.
func (w *MakeupWorkflow) Retry(stage models.MakeupStage) (*dto.MakeupWorkflowView, error) {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	st, ok := w.stages[stage]
	if !ok {
		w.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown stage %q", stage))
	}
	if st.status != models.StageFailed {
		w.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("stage %s has not failed", stage))
	}

	switch stage {
	case models.StageStudents:
		w.scheduleStudentsLocked()
	case models.StageCredits:
		if w.payload.StudentProfileID != "" {
			w.scheduleCreditsLocked(w.payload.StudentProfileID)
		}
	case models.StageSourceSession:
		if credit, ok := w.findCreditLocked(w.payload.MakeupCreditID); ok && credit.SourceSessionID != "" {
			w.scheduleSourceSessionLocked(credit.SourceSessionID)
		}
	case models.StageSuggestions:
		w.scheduleSuggestionsLocked()
	case models.StageManualClasses:
		w.scheduleManualClassesLocked()
	case models.StageManualSessions:
		if date := w.chosenDateLocked(); w.payload.TargetClassID != "" && date != "" {
			w.scheduleManualSessionsLocked(w.payload.TargetClassID, date)
		}
	}

	view := w.viewLocked()
	tasks := w.takePendingLocked()
	w.mu.Unlock()

	w.dispatch(tasks)
	return view, nil
}

// Submit books the make-up session. Only one submission may be in flight, and a
// successful submission closes the workflow.
func (w *MakeupWorkflow) Submit(ctx context.Context) (models.MakeupBookingRequest, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return models.MakeupBookingRequest{}, appErrors.ErrWorkflowNotFound
	}
	if w.submitting {
		w.mu.Unlock()
		return models.MakeupBookingRequest{}, appErrors.ErrSubmissionInFlight
	}
	if err := w.gate.Check(w.payload); err != nil {
		w.mu.Unlock()
		return models.MakeupBookingRequest{}, err
	}
	w.submitting = true
	w.submitError = ""
	w.lastActive = w.opts.Now()
	booking := w.gate.booking(w.payload)
	w.mu.Unlock()

	err := w.booker.CreateMakeupBooking(ctx, booking)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if err != nil {
		w.submitError = appErrors.FromError(err).Message
		w.logger.Warn("makeup booking failed", zap.Error(err))
		return booking, err
	}
	w.closed = true
	w.logger.Info("makeup booking created",
		zap.String("student_profile_id", booking.StudentProfileID),
		zap.String("makeup_credit_id", booking.MakeupCreditID),
		zap.String("target_session_id", booking.TargetSessionID))
	return booking, nil
}

func (w *MakeupWorkflow) editableLocked() error {
	if w.closed {
		return appErrors.ErrWorkflowNotFound
	}
	if w.submitting {
		return appErrors.ErrSubmissionInFlight
	}
	w.lastActive = w.opts.Now()
	return nil
}

func (w *MakeupWorkflow) setStudentLocked(studentID string) error {
	if studentID != "" && !containsStudent(w.students, studentID) {
		return appErrors.Clone(appErrors.ErrValidation, "student is not among the available options")
	}
	w.payload.StudentProfileID = studentID
	w.payload.MakeupCreditID = ""
	w.invalidateLocked(models.StageCredits)
	w.dropCreditScopeLocked()
	if studentID != "" {
		w.scheduleCreditsLocked(studentID)
	}
	return nil
}

func (w *MakeupWorkflow) setCreditLocked(creditID string) error {
	var credit models.MakeupCredit
	if creditID != "" {
		if w.payload.StudentProfileID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "select a student first")
		}
		found, ok := w.findCreditLocked(creditID)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, "credit is not available for the selected student")
		}
		credit = found
	}

	w.payload.MakeupCreditID = creditID
	w.dropCreditScopeLocked()
	if creditID == "" {
		return nil
	}

	w.setModeLocked(models.MakeupModeGuided)
	if credit.SourceSessionID == "" {
		w.failStageMessageLocked(models.StageSourceSession, "credit has no source session")
	} else {
		w.scheduleSourceSessionLocked(credit.SourceSessionID)
	}
	if w.queryDate != "" {
		w.scheduleSuggestionsLocked()
	}
	return nil
}

func (w *MakeupWorkflow) setDateLocked(date string) error {
	if date != "" && !validDate(date) {
		return appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}
	w.payload.Date = date
	w.queryDate = date
	w.dateSetByUser = date != ""
	w.scheduleSuggestionsLocked()
	return nil
}

func (w *MakeupWorkflow) setTimeLocked(clock string) error {
	if clock != "" && !validClock(clock) {
		return appErrors.Clone(appErrors.ErrValidation, "time must use HH:mm")
	}
	w.payload.Time = clock
	w.queryTime = clock
	w.timeSetByUser = clock != ""
	w.scheduleSuggestionsLocked()
	return nil
}

func (w *MakeupWorkflow) setTargetClassLocked(classID string) error {
	if classID != "" && !containsClass(w.targetClassOptionsLocked(), classID) {
		return appErrors.Clone(appErrors.ErrValidation, "target class is not among the available options")
	}
	w.payload.TargetClassID = classID
	w.payload.TargetSessionID = ""
	w.invalidateLocked(models.StageManualSessions)

	if classID != "" && w.mode == models.MakeupModeManual {
		if date := w.chosenDateLocked(); date != "" {
			w.scheduleManualSessionsLocked(classID, date)
		}
	}
	return nil
}

func (w *MakeupWorkflow) setTargetSessionLocked(sessionID string) error {
	if sessionID == "" {
		w.payload.TargetSessionID = ""
		return nil
	}
	if w.payload.TargetClassID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "select a target class first")
	}
	option, ok := findSession(w.targetSessionOptionsLocked(), sessionID)
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "target session is not among the available options")
	}
	w.payload.TargetSessionID = sessionID
	if date, clock, ok := SplitPlannedDatetime(option.PlannedDatetime, w.opts.Location); ok {
		w.payload.Date = date
		w.payload.Time = clock
	}
	return nil
}

// dropCreditScopeLocked clears everything derived from the selected credit.
func (w *MakeupWorkflow) dropCreditScopeLocked() {
	w.payload.FromClassID = ""
	w.invalidateLocked(models.StageSourceSession)
	w.invalidateLocked(models.StageSuggestions)
	w.clearTargetsLocked()
	w.setModeLocked(models.MakeupModeNone)
	if !w.dateSetByUser {
		w.payload.Date = ""
		w.queryDate = ""
	}
	if !w.timeSetByUser {
		w.payload.Time = ""
		w.queryTime = ""
	}
}

func (w *MakeupWorkflow) clearTargetsLocked() {
	w.payload.TargetClassID = ""
	w.payload.TargetSessionID = ""
	w.invalidateLocked(models.StageManualSessions)
}

func (w *MakeupWorkflow) setModeLocked(mode models.MakeupMode) {
	if w.mode == mode {
		return
	}
	w.opts.Metrics.RecordModeTransition(w.mode, mode)
	w.logger.Debug("makeup mode changed", zap.String("from", string(w.mode)), zap.String("to", string(mode)))
	w.mode = mode
	w.clearTargetsLocked()
}

func (w *MakeupWorkflow) chosenDateLocked() string {
	if w.queryDate != "" {
		return w.queryDate
	}
	return w.payload.Date
}

func (w *MakeupWorkflow) findCreditLocked(creditID string) (models.MakeupCredit, bool) {
	for _, credit := range w.credits {
		if credit.ID == creditID {
			return credit, true
		}
	}
	return models.MakeupCredit{}, false
}

func (w *MakeupWorkflow) scheduleStudentsLocked() {
	w.scheduleLocked(models.StageStudents, func(ctx context.Context) (interface{}, error) {
		return w.fetcher.Students(ctx)
	})
}

func (w *MakeupWorkflow) scheduleCreditsLocked(studentID string) {
	w.scheduleLocked(models.StageCredits, func(ctx context.Context) (interface{}, error) {
		return w.fetcher.Credits(ctx, studentID)
	})
}

func (w *MakeupWorkflow) scheduleSourceSessionLocked(sessionID string) {
	w.scheduleLocked(models.StageSourceSession, func(ctx context.Context) (interface{}, error) {
		return w.fetcher.SourceSession(ctx, sessionID)
	})
}

// scheduleSuggestionsLocked re-runs the suggestion lookup for the current credit, date
// and time. Targets chosen from the previous result are cleared first.
func (w *MakeupWorkflow) scheduleSuggestionsLocked() {
	w.clearTargetsLocked()
	creditID := w.payload.MakeupCreditID
	if creditID == "" || w.queryDate == "" {
		w.invalidateLocked(models.StageSuggestions)
		return
	}
	if w.mode == models.MakeupModeNone {
		w.setModeLocked(models.MakeupModeGuided)
	}
	query := models.SuggestionQuery{
		CreditID:   creditID,
		MakeupDate: w.queryDate,
		TimeOfDay:  TimeOfDayBucket(w.queryTime),
	}
	w.scheduleLocked(models.StageSuggestions, func(ctx context.Context) (interface{}, error) {
		return w.fetcher.Suggestions(ctx, query)
	})
}

func (w *MakeupWorkflow) scheduleManualClassesLocked() {
	w.scheduleLocked(models.StageManualClasses, func(ctx context.Context) (interface{}, error) {
		return w.fetcher.ManualClasses(ctx)
	})
}

func (w *MakeupWorkflow) scheduleManualSessionsLocked(classID, date string) {
	w.scheduleLocked(models.StageManualSessions, func(ctx context.Context) (interface{}, error) {
		return w.fetcher.ManualSessions(ctx, classID, date)
	})
}

func (w *MakeupWorkflow) scheduleLocked(stage models.MakeupStage, load func(ctx context.Context) (interface{}, error)) {
	st := w.stages[stage]
	st.epoch++
	st.status = models.StageLoading
	st.err = ""
	w.clearStageDataLocked(stage)

	w.pending = append(w.pending, pendingFetch{
		stage:    stage,
		epoch:    st.epoch,
		deadline: time.Now().Add(w.opts.FetchTimeout),
		load:     load,
	})
	w.inflight++
	if w.inflight == 1 {
		w.idle = make(chan struct{})
	}
}

// invalidateLocked resets a stage and makes any in-flight result for it stale.
func (w *MakeupWorkflow) invalidateLocked(stage models.MakeupStage) {
	st := w.stages[stage]
	st.epoch++
	st.status = models.StageIdle
	st.err = ""
	w.clearStageDataLocked(stage)
}

func (w *MakeupWorkflow) clearStageDataLocked(stage models.MakeupStage) {
	switch stage {
	case models.StageStudents:
		w.students = nil
	case models.StageCredits:
		w.credits = nil
	case models.StageSourceSession:
		w.sourceSession = nil
	case models.StageSuggestions:
		w.suggestions = nil
	case models.StageManualClasses:
		w.manualClasses = nil
	case models.StageManualSessions:
		w.manualSessions = nil
	}
}

func (w *MakeupWorkflow) takePendingLocked() []pendingFetch {
	tasks := w.pending
	w.pending = nil
	return tasks
}

// dispatch must run without w.mu held; dispatchers may run the task inline.
func (w *MakeupWorkflow) dispatch(tasks []pendingFetch) {
	for _, t := range tasks {
		t := t
		err := w.dispatcher.Dispatch(FetchTask{
			Label: string(t.stage),
			Run:   func(ctx context.Context) { w.run(ctx, t) },
		})
		if err != nil {
			w.complete(t, nil, err)
		}
	}
}

func (w *MakeupWorkflow) run(ctx context.Context, t pendingFetch) {
	fetchCtx, cancel := context.WithDeadline(ctx, t.deadline)
	defer cancel()

	if err := fetchCtx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = appErrors.Wrap(err, appErrors.ErrUpstreamTimeout.Code, appErrors.ErrUpstreamTimeout.Status, timedOutMessage)
		}
		w.complete(t, nil, err)
		return
	}
	value, err := t.load(fetchCtx)
	if err != nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		err = appErrors.Wrap(err, appErrors.ErrUpstreamTimeout.Code, appErrors.ErrUpstreamTimeout.Status, timedOutMessage)
	}
	w.complete(t, value, err)
}

func (w *MakeupWorkflow) complete(t pendingFetch, value interface{}, err error) {
	w.mu.Lock()
	w.inflight--
	if w.inflight == 0 {
		close(w.idle)
	}

	switch {
	case w.closed:
	case w.stages[t.stage].epoch != t.epoch:
		w.opts.Metrics.RecordStaleResult(t.stage)
		w.logger.Debug("dropped stale fetch result", zap.String("stage", string(t.stage)),
			zap.Uint64("epoch", t.epoch), zap.Uint64("current_epoch", w.stages[t.stage].epoch))
	case err != nil:
		w.logger.Warn("stage fetch failed", zap.String("stage", string(t.stage)), zap.Error(err))
		w.failStageLocked(t.stage, err)
	default:
		w.applyLocked(t.stage, value)
	}

	tasks := w.takePendingLocked()
	w.mu.Unlock()

	w.dispatch(tasks)
}

func (w *MakeupWorkflow) failStageLocked(stage models.MakeupStage, err error) {
	w.failStageMessageLocked(stage, stageErrorMessage(stage, err))
	if stage == models.StageSuggestions {
		// A failed lookup counts as an empty one so the admin can still place manually.
		w.settleModeLocked(0)
	}
}

func (w *MakeupWorkflow) failStageMessageLocked(stage models.MakeupStage, message string) {
	st := w.stages[stage]
	st.status = models.StageFailed
	st.err = message
	w.clearStageDataLocked(stage)
}

func (w *MakeupWorkflow) applyLocked(stage models.MakeupStage, value interface{}) {
	w.stages[stage].status = models.StageReady

	switch stage {
	case models.StageStudents:
		w.students, _ = value.([]models.MakeupStudent)
	case models.StageCredits:
		w.credits, _ = value.([]models.MakeupCredit)
	case models.StageSourceSession:
		session, _ := value.(*models.SourceSession)
		if session == nil {
			w.failStageMessageLocked(stage, "source session not found")
			return
		}
		w.sourceSession = session
		w.payload.FromClassID = session.ClassID
		w.seedFromSourceLocked(session)
	case models.StageSuggestions:
		w.suggestions, _ = value.([]models.MakeupSessionOption)
		w.settleModeLocked(len(w.suggestions))
	case models.StageManualClasses:
		w.manualClasses, _ = value.([]models.MakeupClassOption)
	case models.StageManualSessions:
		sessions, _ := value.([]models.MakeupSessionOption)
		for i := range sessions {
			if sessions[i].ClassID == "" {
				sessions[i].ClassID = w.payload.TargetClassID
			}
			if sessions[i].ClassName == "" {
				if class, ok := findClass(w.manualClasses, sessions[i].ClassID); ok {
					sessions[i].ClassName = class.Name
					sessions[i].ClassCode = firstNonEmpty(sessions[i].ClassCode, class.Code)
				}
			}
		}
		w.manualSessions = sessions
	}
}

// seedFromSourceLocked fills date and time from the missed session unless the admin set them.
func (w *MakeupWorkflow) seedFromSourceLocked(session *models.SourceSession) {
	date, clock, ok := SplitPlannedDatetime(session.PlannedDatetime, w.opts.Location)
	if !ok {
		return
	}
	changed := false
	if !w.dateSetByUser {
		w.payload.Date = date
		if w.queryDate != date {
			w.queryDate = date
			changed = true
		}
	}
	if !w.timeSetByUser {
		w.payload.Time = clock
		if w.queryTime != clock {
			w.queryTime = clock
			changed = true
		}
	}
	if changed {
		w.scheduleSuggestionsLocked()
	}
}

func (w *MakeupWorkflow) settleModeLocked(count int) {
	mode := ResolveMode(w.payload.MakeupCreditID, true, count)
	w.setModeLocked(mode)
	if mode != models.MakeupModeManual {
		return
	}
	switch w.stages[models.StageManualClasses].status {
	case models.StageReady, models.StageLoading:
	default:
		w.scheduleManualClassesLocked()
	}
}

func (w *MakeupWorkflow) targetClassOptionsLocked() []models.MakeupClassOption {
	switch w.mode {
	case models.MakeupModeGuided:
		return guidedClasses(w.suggestions)
	case models.MakeupModeManual:
		return w.manualClasses
	default:
		return nil
	}
}

func (w *MakeupWorkflow) targetSessionOptionsLocked() []models.MakeupSessionOption {
	switch w.mode {
	case models.MakeupModeGuided:
		return sessionsOfClass(w.suggestions, w.payload.TargetClassID)
	case models.MakeupModeManual:
		return sessionsOfClass(w.manualSessions, w.payload.TargetClassID)
	default:
		return nil
	}
}

func (w *MakeupWorkflow) stageViewLocked(stage models.MakeupStage) dto.StageView {
	st := w.stages[stage]
	return dto.StageView{Status: st.status, Error: st.err}
}

func (w *MakeupWorkflow) viewLocked() *dto.MakeupWorkflowView {
	suggestionStatus := w.stages[models.StageSuggestions].status

	view := &dto.MakeupWorkflowView{
		ID:          w.id,
		Mode:        w.mode,
		ModeSettled: w.mode != models.MakeupModeNone && (suggestionStatus == models.StageReady || suggestionStatus == models.StageFailed),
		Payload:     w.payload,
		TimeOfDay:   TimeOfDayBucket(w.payload.Time),
		Students: dto.StudentStageView{
			StageView: w.stageViewLocked(models.StageStudents),
			Options:   nonNilStudents(w.students),
		},
		Credits: dto.CreditStageView{
			StageView: w.stageViewLocked(models.StageCredits),
			Options:   nonNilCredits(w.credits),
		},
		SourceSession: dto.SourceSessionStageView{
			StageView: w.stageViewLocked(models.StageSourceSession),
			Session:   w.sourceSession,
		},
		Suggestions: dto.SessionStageView{
			StageView: w.stageViewLocked(models.StageSuggestions),
			Options:   nonNilSessions(w.suggestions),
		},
		TargetClasses: dto.ClassStageView{
			Options: nonNilClasses(w.targetClassOptionsLocked()),
		},
		TargetSessions: dto.SessionStageView{
			Options: nonNilSessions(w.targetSessionOptionsLocked()),
		},
		Loading:     w.inflight > 0,
		CanSubmit:   !w.submitting && w.gate.CanSubmit(w.payload),
		Submitting:  w.submitting,
		SubmitError: w.submitError,
	}
	if w.opts.TTL > 0 {
		view.ExpiresAt = w.lastActive.Add(w.opts.TTL).UTC()
	}

	switch w.mode {
	case models.MakeupModeGuided:
		view.TargetClasses.StageView = w.stageViewLocked(models.StageSuggestions)
		view.TargetSessions.StageView = dto.StageView{Status: models.StageIdle}
		if w.payload.TargetClassID != "" && suggestionStatus == models.StageReady {
			view.TargetSessions.Status = models.StageReady
		}
	case models.MakeupModeManual:
		view.TargetClasses.StageView = w.stageViewLocked(models.StageManualClasses)
		view.TargetSessions.StageView = w.stageViewLocked(models.StageManualSessions)
	default:
		view.TargetClasses.StageView = dto.StageView{Status: models.StageIdle}
		view.TargetSessions.StageView = dto.StageView{Status: models.StageIdle}
	}
	return view
}

func stageErrorMessage(stage models.MakeupStage, err error) string {
	switch {
	case errors.Is(err, appErrors.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return timedOutMessage
	case errors.Is(err, appErrors.ErrNotFound):
		return stageLabels[stage] + " not found"
	case errors.Is(err, jobs.ErrQueueFull):
		return "too many pending requests, retry " + stageLabels[stage]
	default:
		return "failed to load " + stageLabels[stage]
	}
}

func containsStudent(options []models.MakeupStudent, id string) bool {
	for _, opt := range options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

func containsClass(options []models.MakeupClassOption, id string) bool {
	_, ok := findClass(options, id)
	return ok
}

func findClass(options []models.MakeupClassOption, id string) (models.MakeupClassOption, bool) {
	for _, opt := range options {
		if opt.ID == id {
			return opt, true
		}
	}
	return models.MakeupClassOption{}, false
}

func findSession(options []models.MakeupSessionOption, id string) (models.MakeupSessionOption, bool) {
	for _, opt := range options {
		if opt.SessionID == id {
			return opt, true
		}
	}
	return models.MakeupSessionOption{}, false
}

func nonNilStudents(v []models.MakeupStudent) []models.MakeupStudent {
	if v == nil {
		return []models.MakeupStudent{}
	}
	return v
}

func nonNilCredits(v []models.MakeupCredit) []models.MakeupCredit {
	if v == nil {
		return []models.MakeupCredit{}
	}
	return v
}

func nonNilClasses(v []models.MakeupClassOption) []models.MakeupClassOption {
	if v == nil {
		return []models.MakeupClassOption{}
	}
	return v
}

func nonNilSessions(v []models.MakeupSessionOption) []models.MakeupSessionOption {
	if v == nil {
		return []models.MakeupSessionOption{}
	}
	return v
}
