package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-makeup-api/internal/models"
)

func TestQueueDispatcherRunsTasks(t *testing.T) {
	d := NewQueueDispatcher(2, zap.NewNop())
	d.Start(context.Background())
	defer d.Stop()

	done := make(chan string, 2)
	for _, label := range []string{"students", "classes"} {
		label := label
		require.NoError(t, d.Dispatch(FetchTask{Label: label, Run: func(context.Context) { done <- label }}))
	}
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case label := <-done:
			got[label] = true
		case <-time.After(time.Second):
			t.Fatal("task did not run")
		}
	}
	assert.True(t, got["students"])
	assert.True(t, got["classes"])
}

func TestQueueDispatcherRejectsBeforeStart(t *testing.T) {
	d := NewQueueDispatcher(1, nil)
	assert.Error(t, d.Dispatch(FetchTask{Label: "students", Run: func(context.Context) {}}))
}

func TestMakeupWorkflowOverQueueDispatcher(t *testing.T) {
	d := NewQueueDispatcher(4, zap.NewNop())
	d.Start(context.Background())
	defer d.Stop()

	wf, _ := newTestWorkflow(newStubFetcher(), &stubBooker{}, d)
	wf.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wf.WaitIdle(ctx))

	mustSet(t, wf, models.FieldStudentProfileID, "stu-1")
	require.NoError(t, wf.WaitIdle(ctx))
	mustSet(t, wf, models.FieldMakeupCreditID, "cr-1")
	require.NoError(t, wf.WaitIdle(ctx))

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.MakeupModeGuided, view.Mode)
	assert.Len(t, view.Suggestions.Options, 3)
}

// gatedFetcher holds the suggestion lookup until released and then reports no suggestions.
type gatedFetcher struct {
	*stubFetcher
	entered chan struct{}
	release chan struct{}
}

func (f *gatedFetcher) Suggestions(ctx context.Context, q models.SuggestionQuery) ([]models.MakeupSessionOption, error) {
	close(f.entered)
	select {
	case <-f.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestQueueDispatcherFullBufferDoesNotStallWorkers(t *testing.T) {
	d := NewQueueDispatcher(1, zap.NewNop())
	d.Start(context.Background())
	defer d.Stop()

	fetcher := &gatedFetcher{stubFetcher: newStubFetcher(), entered: make(chan struct{}), release: make(chan struct{})}
	wf, _ := newTestWorkflow(fetcher, &stubBooker{}, d)
	wf.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wf.WaitIdle(ctx))
	mustSet(t, wf, models.FieldStudentProfileID, "stu-1")
	require.NoError(t, wf.WaitIdle(ctx))
	mustSet(t, wf, models.FieldMakeupCreditID, "cr-1")

	select {
	case <-fetcher.entered:
	case <-time.After(time.Second):
		t.Fatal("suggestion lookup did not start")
	}

	// The only worker is busy; fill the buffer and overflow it.
	others := make([]*MakeupWorkflow, 0, 17)
	for i := 0; i < 17; i++ {
		other := NewMakeupWorkflow(fmt.Sprintf("wf-%d", i), newStubFetcher(), &stubBooker{}, d, nil, MakeupWorkflowOptions{
			FetchTimeout: 2 * time.Second,
			Location:     testZone,
		})
		other.Start()
		others = append(others, other)
	}
	assert.Equal(t, 16, d.Pending())

	overflow, err := others[16].View()
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, overflow.Students.Status)
	assert.Equal(t, "too many pending requests, retry students", overflow.Students.Error)

	// The empty result schedules the manual class list from inside the worker.
	close(fetcher.release)
	require.NoError(t, wf.WaitIdle(ctx), "worker must not block on its own queue")
	for _, other := range others {
		require.NoError(t, other.WaitIdle(ctx))
	}

	view, err := wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.MakeupModeManual, view.Mode)
	assert.Equal(t, models.StageFailed, view.TargetClasses.Status)

	_, err = wf.Retry(models.StageManualClasses)
	require.NoError(t, err)
	require.NoError(t, wf.WaitIdle(ctx))
	view, err = wf.View()
	require.NoError(t, err)
	assert.Equal(t, models.StageReady, view.TargetClasses.Status)
	require.Len(t, view.TargetClasses.Options, 1)
}
