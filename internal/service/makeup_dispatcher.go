package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-makeup-api/pkg/jobs"
)

const fetchJobType = "makeup_stage_fetch"

// FetchTask is one stage fetch scheduled by a workflow.
type FetchTask struct {
	Label string
	Run   func(ctx context.Context)
}

// FetchDispatcher runs stage fetches off the caller's goroutine.
type FetchDispatcher interface {
	Dispatch(task FetchTask) error
}

// GoDispatcher runs every fetch on its own goroutine.
type GoDispatcher struct {
	ctx context.Context
}

// NewGoDispatcher constructs a goroutine-per-fetch dispatcher bound to ctx.
func NewGoDispatcher(ctx context.Context) *GoDispatcher {
	if ctx == nil {
		ctx = context.Background()
	}
	return &GoDispatcher{ctx: ctx}
}

// Dispatch starts the task immediately.
func (d *GoDispatcher) Dispatch(task FetchTask) error {
	go task.Run(d.ctx)
	return nil
}

// QueueDispatcher bounds upstream concurrency through the shared worker queue.
type QueueDispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewQueueDispatcher builds a dispatcher and its queue. Stage fetches are never retried;
// a failure becomes the stage's error state instead.
func NewQueueDispatcher(workers int, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &QueueDispatcher{logger: logger}
	d.queue = jobs.NewQueue("makeup-fetch", d.handle, jobs.QueueConfig{
		Workers:        workers,
		BufferSize:     workers * 16,
		DisableRetries: true,
		Logger:         logger,
	})
	return d
}

// Start launches the queue workers.
func (d *QueueDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *QueueDispatcher) Stop() {
	d.queue.Stop()
}

// Pending reports queued fetches not yet picked by a worker.
func (d *QueueDispatcher) Pending() int {
	return d.queue.Len()
}

// Dispatch enqueues the task without blocking. Follow-up fetches are dispatched from
// queue workers, so a full buffer is reported as an error instead of waited on.
func (d *QueueDispatcher) Dispatch(task FetchTask) error {
	return d.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: fetchJobType, Payload: task})
}

func (d *QueueDispatcher) handle(ctx context.Context, job jobs.Job) error {
	task, ok := job.Payload.(FetchTask)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	d.logger.Debug("running stage fetch", zap.String("job_id", job.ID), zap.String("stage", task.Label))
	task.Run(ctx)
	return nil
}
