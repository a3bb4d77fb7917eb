package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
)

var testZone = time.FixedZone("+07:00", 7*60*60)

// manualDispatcher holds fetches until the test runs them, so arrival order is controlled.
type manualDispatcher struct {
	mu    sync.Mutex
	tasks []FetchTask
}

func (d *manualDispatcher) Dispatch(task FetchTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *manualDispatcher) pending(label models.MakeupStage) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.tasks {
		if t.Label == string(label) {
			n++
		}
	}
	return n
}

// take removes the index-th queued task of the stage.
func (d *manualDispatcher) take(t *testing.T, label models.MakeupStage, index int) FetchTask {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := 0
	for i, task := range d.tasks {
		if task.Label != string(label) {
			continue
		}
		if seen == index {
			d.tasks = append(d.tasks[:i], d.tasks[i+1:]...)
			return task
		}
		seen++
	}
	t.Fatalf("no queued %s task #%d", label, index)
	return FetchTask{}
}

func (d *manualDispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.tasks) == 0 {
			d.mu.Unlock()
			return
		}
		task := d.tasks[0]
		d.tasks = d.tasks[1:]
		d.mu.Unlock()
		task.Run(context.Background())
	}
}

type stubFetcher struct {
	mu             sync.Mutex
	students       []models.MakeupStudent
	credits        map[string][]models.MakeupCredit
	sessions       map[string]*models.SourceSession
	suggestions    map[string][]models.MakeupSessionOption
	suggestionErr  error
	blockSuggest   bool
	classes        []models.MakeupClassOption
	manualSessions map[string][]models.MakeupSessionOption

	suggestionQueries []models.SuggestionQuery
	manualQueries     [][2]string
	classCalls        int
}

func (f *stubFetcher) Students(ctx context.Context) ([]models.MakeupStudent, error) {
	return f.students, nil
}

func (f *stubFetcher) Credits(ctx context.Context, studentID string) ([]models.MakeupCredit, error) {
	return f.credits[studentID], nil
}

func (f *stubFetcher) SourceSession(ctx context.Context, sessionID string) (*models.SourceSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	return session, nil
}

func (f *stubFetcher) Suggestions(ctx context.Context, q models.SuggestionQuery) ([]models.MakeupSessionOption, error) {
	f.mu.Lock()
	f.suggestionQueries = append(f.suggestionQueries, q)
	block, err := f.blockSuggest, f.suggestionErr
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return f.suggestions[q.MakeupDate], nil
}

func (f *stubFetcher) ManualClasses(ctx context.Context) ([]models.MakeupClassOption, error) {
	f.mu.Lock()
	f.classCalls++
	f.mu.Unlock()
	return f.classes, nil
}

func (f *stubFetcher) ManualSessions(ctx context.Context, classID, date string) ([]models.MakeupSessionOption, error) {
	f.mu.Lock()
	f.manualQueries = append(f.manualQueries, [2]string{classID, date})
	f.mu.Unlock()
	return f.manualSessions[classID], nil
}

func (f *stubFetcher) lastSuggestionQuery() models.SuggestionQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.suggestionQueries) == 0 {
		return models.SuggestionQuery{}
	}
	return f.suggestionQueries[len(f.suggestionQueries)-1]
}

type stubBooker struct {
	mu       sync.Mutex
	bookings []models.MakeupBookingRequest
	err      error
	release  chan struct{}
	entered  chan struct{}
}

func (b *stubBooker) CreateMakeupBooking(ctx context.Context, booking models.MakeupBookingRequest) error {
	if b.entered != nil {
		close(b.entered)
	}
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.bookings = append(b.bookings, booking)
	return nil
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		students: []models.MakeupStudent{{ID: "stu-1", DisplayName: "Ana"}, {ID: "stu-2", DisplayName: "Budi"}},
		credits: map[string][]models.MakeupCredit{
			"stu-1": {{ID: "cr-1", Status: "AVAILABLE", SourceSessionID: "src-1"}},
			"stu-2": {{ID: "cr-2", Status: "ACTIVE", SourceSessionID: "src-2"}},
		},
		sessions: map[string]*models.SourceSession{
			"src-1": {ID: "src-1", ClassID: "cls-src", PlannedDatetime: "2025-01-10T09:30:00+07:00"},
			"src-2": {ID: "src-2", ClassID: "cls-other", PlannedDatetime: "2025-01-12T19:00:00+07:00"},
		},
		suggestions: map[string][]models.MakeupSessionOption{
			"2025-01-10": {
				{ClassID: "cls-a", ClassName: "Class A", SessionID: "ses-a1", PlannedDatetime: "2025-01-11T14:00:00+07:00"},
				{ClassID: "cls-a", ClassName: "Class A", SessionID: "ses-a2", PlannedDatetime: "2025-01-12T14:00:00+07:00"},
				{ClassID: "cls-b", ClassName: "Class B", SessionID: "ses-b1", PlannedDatetime: "2025-01-11T08:00:00+07:00"},
			},
		},
		classes: []models.MakeupClassOption{{ID: "cls-m", Name: "Manual Class"}},
		manualSessions: map[string][]models.MakeupSessionOption{
			"cls-m": {{SessionID: "ses-m1", PlannedDatetime: "2025-01-10T18:30:00+07:00"}},
		},
	}
}

func newTestWorkflow(fetcher StageFetcher, booker MakeupBooker, dispatcher FetchDispatcher) (*MakeupWorkflow, *MetricsService) {
	metrics := NewMetricsService()
	wf := NewMakeupWorkflow("wf-1", fetcher, booker, dispatcher, NewSubmissionGate(nil), MakeupWorkflowOptions{
		FetchTimeout: time.Second,
		Location:     testZone,
		TTL:          time.Minute,
		Metrics:      metrics,
	})
	return wf, metrics
}

func mustSet(t *testing.T, wf *MakeupWorkflow, field models.MakeupField, value string) {
	t.Helper()
	_, err := wf.SetField(field, value)
	require.NoError(t, err)
}

// guidedWorkflow returns a workflow with student, credit and source session resolved.
func guidedWorkflow(t *testing.T, fetcher *stubFetcher, booker MakeupBooker) (*MakeupWorkflow, *manualDispatcher) {
	t.Helper()
	d := &manualDispatcher{}
	wf, _ := newTestWorkflow(fetcher, booker, d)
	wf.Start()
	d.drain()
	mustSet(t, wf, models.FieldStudentProfileID, "stu-1")
	d.drain()
	mustSet(t, wf, models.FieldMakeupCreditID, "cr-1")
	d.drain()
	return wf, d
}

func TestMakeupWorkflowGuidedFlowProducesBooking(t *testing.T) {
	fetcher := newStubFetcher()
	booker := &stubBooker{}
	wf, _ := guidedWorkflow(t, fetcher, booker)

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.MakeupModeGuided, view.Mode)
	assert.True(t, view.ModeSettled)
	assert.Equal(t, "cls-src", view.Payload.FromClassID)
	assert.Equal(t, "2025-01-10", view.Payload.Date)
	assert.Equal(t, "09:30", view.Payload.Time)
	assert.Equal(t, models.TimeOfDayMorning, view.TimeOfDay)
	assert.Equal(t, models.SuggestionQuery{CreditID: "cr-1", MakeupDate: "2025-01-10", TimeOfDay: models.TimeOfDayMorning}, fetcher.lastSuggestionQuery())
	require.Len(t, view.TargetClasses.Options, 2)
	assert.Equal(t, "cls-a", view.TargetClasses.Options[0].ID)
	assert.False(t, view.CanSubmit)

	mustSet(t, wf, models.FieldTargetClassID, "cls-a")
	view, err = wf.SetField(models.FieldTargetSessionID, "ses-a1")
	require.NoError(t, err)
	assert.Len(t, view.TargetSessions.Options, 2)
	assert.Equal(t, "2025-01-11", view.Payload.Date)
	assert.Equal(t, "14:00", view.Payload.Time)
	assert.True(t, view.CanSubmit)

	_, err = wf.SetNote("bring the workbook")
	require.NoError(t, err)

	booking, err := wf.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.MakeupBookingRequest{
		StudentProfileID: "stu-1",
		MakeupCreditID:   "cr-1",
		FromClassID:      "cls-src",
		TargetClassID:    "cls-a",
		TargetSessionID:  "ses-a1",
		Date:             "2025-01-11",
		Time:             "14:00",
		Note:             "bring the workbook",
	}, booking)
	require.Len(t, booker.bookings, 1)

	_, err = wf.View()
	assert.ErrorIs(t, err, appErrors.ErrWorkflowNotFound)
}

func TestMakeupWorkflowDropsStaleCreditResponses(t *testing.T) {
	d := &manualDispatcher{}
	wf, metrics := newTestWorkflow(newStubFetcher(), &stubBooker{}, d)
	wf.Start()
	d.drain()

	mustSet(t, wf, models.FieldStudentProfileID, "stu-1")
	mustSet(t, wf, models.FieldStudentProfileID, "stu-2")
	require.Equal(t, 2, d.pending(models.StageCredits))

	// The newer request resolves first; the older one arrives late and must be ignored.
	newer := d.take(t, models.StageCredits, 1)
	older := d.take(t, models.StageCredits, 0)
	newer.Run(context.Background())
	older.Run(context.Background())

	view, err := wf.View()
	require.NoError(t, err)
	require.Len(t, view.Credits.Options, 1)
	assert.Equal(t, "cr-2", view.Credits.Options[0].ID)
	assert.Equal(t, models.StageReady, view.Credits.Status)
	assert.Equal(t, uint64(1), metrics.Snapshot().StaleResultsDropped)
}

func TestMakeupWorkflowStudentChangeClearsDependents(t *testing.T) {
	fetcher := newStubFetcher()
	wf, d := guidedWorkflow(t, fetcher, &stubBooker{})
	mustSet(t, wf, models.FieldTargetClassID, "cls-a")
	mustSet(t, wf, models.FieldTargetSessionID, "ses-a1")

	view, err := wf.SetField(models.FieldStudentProfileID, "stu-2")
	require.NoError(t, err)
	assert.Equal(t, "stu-2", view.Payload.StudentProfileID)
	assert.Empty(t, view.Payload.MakeupCreditID)
	assert.Empty(t, view.Payload.FromClassID)
	assert.Empty(t, view.Payload.TargetClassID)
	assert.Empty(t, view.Payload.TargetSessionID)
	assert.Empty(t, view.Payload.Date, "seeded date is cleared")
	assert.Empty(t, view.Payload.Time, "seeded time is cleared")
	assert.Equal(t, models.MakeupModeNone, view.Mode)
	assert.Nil(t, view.SourceSession.Session)
	assert.Empty(t, view.Suggestions.Options)
	assert.Equal(t, models.StageLoading, view.Credits.Status)

	d.drain()
	view, err = wf.View()
	require.NoError(t, err)
	assert.Equal(t, "cr-2", view.Credits.Options[0].ID)
}

func TestMakeupWorkflowUserDatePersistsAcrossCreditChange(t *testing.T) {
	fetcher := newStubFetcher()
	d := &manualDispatcher{}
	wf, _ := newTestWorkflow(fetcher, &stubBooker{}, d)
	wf.Start()
	d.drain()

	mustSet(t, wf, models.FieldDate, "2025-02-01")
	mustSet(t, wf, models.FieldStudentProfileID, "stu-1")
	d.drain()

	view, err := wf.SetField(models.FieldMakeupCreditID, "cr-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageLoading, view.Suggestions.Status, "date already present, suggestions start with the credit")
	d.drain()

	view, err = wf.View()
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", view.Payload.Date)
	assert.Equal(t, "09:30", view.Payload.Time)
	assert.Equal(t, models.SuggestionQuery{CreditID: "cr-1", MakeupDate: "2025-02-01", TimeOfDay: models.TimeOfDayMorning}, fetcher.lastSuggestionQuery())

	view, err = wf.SetField(models.FieldMakeupCreditID, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", view.Payload.Date)
	assert.Empty(t, view.Payload.Time)
}

func TestMakeupWorkflowDateChangeClearsTargetsAndRequeries(t *testing.T) {
	fetcher := newStubFetcher()
	wf, d := guidedWorkflow(t, fetcher, &stubBooker{})
	mustSet(t, wf, models.FieldTargetClassID, "cls-a")
	mustSet(t, wf, models.FieldTargetSessionID, "ses-a1")

	view, err := wf.SetField(models.FieldTime, "20:15")
	require.NoError(t, err)
	assert.Empty(t, view.Payload.TargetClassID)
	assert.Empty(t, view.Payload.TargetSessionID)
	assert.Equal(t, models.StageLoading, view.Suggestions.Status)
	assert.Equal(t, models.TimeOfDayEvening, view.TimeOfDay)
	d.drain()

	q := fetcher.lastSuggestionQuery()
	assert.Equal(t, models.TimeOfDayEvening, q.TimeOfDay)
	// Picking a session moved the payload date, but the lookup keeps the chosen day.
	assert.Equal(t, "2025-01-10", q.MakeupDate)
}

func TestMakeupWorkflowFallsBackToManualOnEmptySuggestions(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.suggestions = map[string][]models.MakeupSessionOption{}
	wf, d := guidedWorkflow(t, fetcher, &stubBooker{})

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.MakeupModeManual, view.Mode)
	assert.True(t, view.ModeSettled)
	require.Len(t, view.TargetClasses.Options, 1)
	assert.Equal(t, "cls-m", view.TargetClasses.Options[0].ID)

	view, err = wf.SetField(models.FieldTargetClassID, "cls-m")
	require.NoError(t, err)
	assert.Equal(t, models.StageLoading, view.TargetSessions.Status)
	d.drain()
	assert.Equal(t, [][2]string{{"cls-m", "2025-01-10"}}, fetcher.manualQueries)

	view, err = wf.View()
	require.NoError(t, err)
	require.Len(t, view.TargetSessions.Options, 1)
	assert.Equal(t, "cls-m", view.TargetSessions.Options[0].ClassID)
	assert.Equal(t, "Manual Class", view.TargetSessions.Options[0].ClassName)

	view, err = wf.SetField(models.FieldTargetSessionID, "ses-m1")
	require.NoError(t, err)
	assert.Equal(t, "18:30", view.Payload.Time)
	assert.True(t, view.CanSubmit)
}

func TestMakeupWorkflowSuggestionFailureSettlesManual(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.suggestionErr = errors.New("boom")
	wf, _ := guidedWorkflow(t, fetcher, &stubBooker{})

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, view.Suggestions.Status)
	assert.Equal(t, "failed to load suggested sessions", view.Suggestions.Error)
	assert.Equal(t, models.MakeupModeManual, view.Mode)
	assert.Equal(t, 1, fetcher.classCalls)
}

func TestMakeupWorkflowFetchTimeoutBecomesStageError(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.blockSuggest = true
	d := &manualDispatcher{}
	wf := NewMakeupWorkflow("wf-timeout", fetcher, &stubBooker{}, d, nil, MakeupWorkflowOptions{
		FetchTimeout: 50 * time.Millisecond,
		Location:     testZone,
	})
	wf.Start()
	d.drain()
	mustSet(t, wf, models.FieldStudentProfileID, "stu-1")
	d.drain()
	mustSet(t, wf, models.FieldMakeupCreditID, "cr-1")
	d.drain()

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, view.Suggestions.Status)
	assert.Equal(t, "request timed out", view.Suggestions.Error)
}

func TestMakeupWorkflowRejectsOptionsOutsideCurrentPopulation(t *testing.T) {
	wf, _ := guidedWorkflow(t, newStubFetcher(), &stubBooker{})

	_, err := wf.SetField(models.FieldStudentProfileID, "stu-unknown")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, "stu-1", view.Payload.StudentProfileID)
	assert.Equal(t, "cr-1", view.Payload.MakeupCreditID)

	_, err = wf.SetField(models.FieldMakeupCreditID, "cr-unknown")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = wf.SetField(models.FieldTargetClassID, "cls-m")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	mustSet(t, wf, models.FieldTargetClassID, "cls-b")
	_, err = wf.SetField(models.FieldTargetSessionID, "ses-a1")
	assert.ErrorIs(t, err, appErrors.ErrValidation, "session of another class")

	_, err = wf.SetField(models.FieldDate, "10/01/2025")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = wf.SetField(models.FieldTime, "9.30")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestMakeupWorkflowSubmitRequiresCompletePayload(t *testing.T) {
	booker := &stubBooker{}
	wf, _ := guidedWorkflow(t, newStubFetcher(), booker)

	_, err := wf.Submit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrIncompletePayload)
	assert.Contains(t, err.Error(), "targetClassID")
	assert.Empty(t, booker.bookings)
}

func TestMakeupWorkflowSubmitIsNotReentrant(t *testing.T) {
	booker := &stubBooker{release: make(chan struct{}), entered: make(chan struct{})}
	wf, _ := guidedWorkflow(t, newStubFetcher(), booker)
	mustSet(t, wf, models.FieldTargetClassID, "cls-a")
	mustSet(t, wf, models.FieldTargetSessionID, "ses-a1")

	done := make(chan error, 1)
	go func() {
		_, err := wf.Submit(context.Background())
		done <- err
	}()
	<-booker.entered

	view, err := wf.View()
	require.NoError(t, err)
	assert.True(t, view.Submitting)
	assert.False(t, view.CanSubmit)

	_, err = wf.Submit(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrSubmissionInFlight)
	_, err = wf.SetField(models.FieldTargetSessionID, "ses-a2")
	assert.ErrorIs(t, err, appErrors.ErrSubmissionInFlight)

	close(booker.release)
	require.NoError(t, <-done)
	assert.Len(t, booker.bookings, 1)
	assert.True(t, wf.Closed())
}

func TestMakeupWorkflowSubmitFailureKeepsForm(t *testing.T) {
	booker := &stubBooker{err: appErrors.Clone(appErrors.ErrUpstream, "session is full")}
	wf, _ := guidedWorkflow(t, newStubFetcher(), booker)
	mustSet(t, wf, models.FieldTargetClassID, "cls-a")
	mustSet(t, wf, models.FieldTargetSessionID, "ses-a1")

	_, err := wf.Submit(context.Background())
	require.Error(t, err)

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, "session is full", view.SubmitError)
	assert.False(t, view.Submitting)
	assert.True(t, view.CanSubmit)
	assert.Equal(t, "ses-a1", view.Payload.TargetSessionID)
}

func TestMakeupWorkflowRetryFailedStage(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.sessions = map[string]*models.SourceSession{}
	wf, d := guidedWorkflow(t, fetcher, &stubBooker{})

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, view.SourceSession.Status)
	assert.Equal(t, "source session not found", view.SourceSession.Error)

	_, err = wf.Retry(models.StageStudents)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	fetcher.sessions = newStubFetcher().sessions
	view, err = wf.Retry(models.StageSourceSession)
	require.NoError(t, err)
	assert.Equal(t, models.StageLoading, view.SourceSession.Status)
	d.drain()

	view, err = wf.View()
	require.NoError(t, err)
	assert.Equal(t, "cls-src", view.Payload.FromClassID)
}

func TestMakeupWorkflowWaitIdleWithGoroutineDispatcher(t *testing.T) {
	wf, _ := newTestWorkflow(newStubFetcher(), &stubBooker{}, NewGoDispatcher(context.Background()))
	view := wf.Start()
	assert.Equal(t, models.StageLoading, view.Students.Status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wf.WaitIdle(ctx))

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.StageReady, view.Students.Status)
	assert.Len(t, view.Students.Options, 2)
	assert.False(t, view.Loading)
}

func TestMakeupWorkflowStudentMustBeLoaded(t *testing.T) {
	d := &manualDispatcher{}
	wf, _ := newTestWorkflow(newStubFetcher(), &stubBooker{}, d)
	wf.Start()

	_, err := wf.SetField(models.FieldStudentProfileID, "stu-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation, "student list still loading")

	d.drain()
	mustSet(t, wf, models.FieldStudentProfileID, "stu-1")
}

func TestMakeupWorkflowManualSessionsStayInTargetClass(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.suggestions = map[string][]models.MakeupSessionOption{}
	fetcher.manualSessions = map[string][]models.MakeupSessionOption{
		"cls-m": {
			{ClassID: "cls-m", SessionID: "ses-m1", PlannedDatetime: "2025-01-10T18:30:00+07:00"},
			{ClassID: "cls-x", SessionID: "ses-x1", PlannedDatetime: "2025-01-10T19:30:00+07:00"},
			{SessionID: "ses-m2", PlannedDatetime: "2025-01-10T20:00:00+07:00"},
		},
	}
	wf, d := guidedWorkflow(t, fetcher, &stubBooker{})
	mustSet(t, wf, models.FieldTargetClassID, "cls-m")
	d.drain()

	view, err := wf.View()
	require.NoError(t, err)
	require.Equal(t, models.MakeupModeManual, view.Mode)
	require.Len(t, view.TargetSessions.Options, 2)
	for _, opt := range view.TargetSessions.Options {
		assert.Equal(t, "cls-m", opt.ClassID)
	}

	_, err = wf.SetField(models.FieldTargetSessionID, "ses-x1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	mustSet(t, wf, models.FieldTargetSessionID, "ses-m2")
}

func TestMakeupWorkflowReturnsToGuidedWhenSuggestionsAppear(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.suggestions = map[string][]models.MakeupSessionOption{
		"2025-01-15": {{ClassID: "cls-z", ClassName: "Class Z", SessionID: "ses-z1", PlannedDatetime: "2025-01-15T14:00:00+07:00"}},
	}
	wf, d := guidedWorkflow(t, fetcher, &stubBooker{})
	mustSet(t, wf, models.FieldTargetClassID, "cls-m")
	d.drain()

	view, err := wf.View()
	require.NoError(t, err)
	require.Equal(t, models.MakeupModeManual, view.Mode)

	view, err = wf.SetField(models.FieldDate, "2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, models.MakeupModeManual, view.Mode, "mode holds until the new lookup settles")
	assert.Empty(t, view.Payload.TargetClassID)
	d.drain()

	view, err = wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.MakeupModeGuided, view.Mode)
	assert.True(t, view.ModeSettled)
	require.Len(t, view.TargetClasses.Options, 1)
	assert.Equal(t, "cls-z", view.TargetClasses.Options[0].ID)

	_, err = wf.SetField(models.FieldTargetClassID, "cls-m")
	assert.ErrorIs(t, err, appErrors.ErrValidation, "manual classes are no longer offered")
	mustSet(t, wf, models.FieldTargetClassID, "cls-z")
	mustSet(t, wf, models.FieldTargetSessionID, "ses-z1")
}

func TestMakeupWorkflowDropsStaleSuggestionResponses(t *testing.T) {
	fetcher := newStubFetcher()
	d := &manualDispatcher{}
	wf, metrics := newTestWorkflow(fetcher, &stubBooker{}, d)
	wf.Start()
	d.drain()
	mustSet(t, wf, models.FieldStudentProfileID, "stu-1")
	d.drain()
	mustSet(t, wf, models.FieldMakeupCreditID, "cr-1")
	d.drain()
	require.Equal(t, uint64(0), metrics.Snapshot().StaleResultsDropped)

	// 2025-01-20 has no suggestions; applying it would switch the form to manual.
	mustSet(t, wf, models.FieldDate, "2025-01-20")
	mustSet(t, wf, models.FieldDate, "2025-01-10")
	require.Equal(t, 2, d.pending(models.StageSuggestions))

	newer := d.take(t, models.StageSuggestions, 1)
	older := d.take(t, models.StageSuggestions, 0)
	newer.Run(context.Background())
	older.Run(context.Background())

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.MakeupModeGuided, view.Mode)
	assert.Len(t, view.Suggestions.Options, 3)
	assert.Equal(t, models.StageReady, view.Suggestions.Status)
	assert.Zero(t, d.pending(models.StageManualClasses))
	assert.Equal(t, uint64(1), metrics.Snapshot().StaleResultsDropped)
}

func TestMakeupWorkflowQueueWaitCountsAgainstFetchTimeout(t *testing.T) {
	d := &manualDispatcher{}
	wf := NewMakeupWorkflow("wf-queued", newStubFetcher(), &stubBooker{}, d, nil, MakeupWorkflowOptions{
		FetchTimeout: 20 * time.Millisecond,
		Location:     testZone,
	})
	wf.Start()
	time.Sleep(60 * time.Millisecond)
	d.drain()

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, view.Students.Status)
	assert.Equal(t, "request timed out", view.Students.Error)

	_, err = wf.Retry(models.StageStudents)
	require.NoError(t, err)
	d.drain()
	view, err = wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.StageReady, view.Students.Status)
}
