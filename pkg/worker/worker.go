// Package worker consumes tasks from the queue and runs them through the
// task runner. Each worker process pulls from a shared work queue with a
// configurable number of concurrent loops; each loop owns at most one
// browser session at a time. Delivery resolution follows the at-least-once
// contract: terminal reports and dead-lettered garbage are acked, engine
// faults are nacked for redelivery.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
	"github.com/crawlerd/crawlerd/pkg/logging"
	"github.com/crawlerd/crawlerd/pkg/queue"
	"github.com/crawlerd/crawlerd/pkg/task"
)

// TaskRunner executes one validated task. Satisfied by runner.Runner.
type TaskRunner interface {
	Run(ctx context.Context, t *task.Task) (*task.Report, error)
}

// Options configures a Worker.
type Options struct {
	Bus    queue.Bus
	Runner TaskRunner
	Logger *logging.Logger

	// QueueName is the work queue to pull from.
	QueueName string

	// ResultSubject receives every terminal report as JSON.
	ResultSubject string

	// DeadLetterSubject receives payloads that failed validation.
	DeadLetterSubject string

	// Concurrency is the number of parallel pull loops.
	Concurrency int
}

// DeadLetter is the payload published for an unprocessable delivery.
type DeadLetter struct {
	DeliveryID string          `json:"delivery_id"`
	Error      string          `json:"error"`
	Payload    json.RawMessage `json:"payload"`
}

// Worker is a queue consumer.
type Worker struct {
	opts   Options
	id     string
	logger *logging.Logger
}

// New creates a Worker with a generated worker ID.
func New(opts Options) *Worker {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.QueueName == "" {
		opts.QueueName = "tasks"
	}
	if opts.ResultSubject == "" {
		opts.ResultSubject = "crawlerd.results.done"
	}
	if opts.DeadLetterSubject == "" {
		opts.DeadLetterSubject = "crawlerd.results.dead"
	}

	id := "worker-" + strings.ToLower(ulid.Make().String())
	return &Worker{
		opts:   opts,
		id:     id,
		logger: opts.Logger.WithWorker(id),
	}
}

// ID returns the worker's generated identifier.
func (w *Worker) ID() string { return w.id }

// Run pulls and processes tasks until the context is cancelled. Each
// concurrency slot is an independent pull loop; a failure in one loop
// stops the others.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info(logging.CategoryWorker, "worker_started", "", map[string]any{
		"queue":       w.opts.QueueName,
		"concurrency": w.opts.Concurrency,
	})

	q := w.opts.Bus.Queue(w.opts.QueueName)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Concurrency; i++ {
		g.Go(func() error {
			return w.loop(gctx, q)
		})
	}
	err := g.Wait()

	w.logger.Info(logging.CategoryWorker, "worker_stopped", "", nil)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context, q queue.TaskQueue) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		d, err := q.Pull(ctx)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrEmpty):
				continue
			case errors.Is(err, context.Canceled):
				return ctx.Err()
			case errors.Is(err, queue.ErrClosed):
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
				// The transport went away under a live context; that is an
				// outage, not a shutdown.
				return fmt.Errorf("work queue %q closed: %w", q.Name(), queue.ErrClosed)
			default:
				w.logger.Error(logging.CategoryQueue, "pull_failed", err.Error(), nil)
				// Transient transport trouble; back off rather than spin.
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
		}

		tasksPulled.Inc()
		w.process(ctx, q, d)
	}
}

// process resolves exactly one delivery. It never returns an error: every
// outcome maps to an ack or a nack.
func (w *Worker) process(ctx context.Context, q queue.TaskQueue, d *queue.Delivery) {
	t, err := task.Decode(d.Data)
	if err != nil {
		// The task author must fix this; redelivery cannot.
		w.deadLetter(ctx, d, err)
		w.ack(ctx, q, d)
		return
	}

	logger := w.logger.WithTask(t.TaskID)
	start := time.Now()

	report, err := w.opts.Runner.Run(ctx, t)
	if err != nil {
		logger.Error(logging.CategoryWorker, "engine_fault", err.Error(), map[string]any{
			"delivery_id": d.ID,
			"retryable":   crawlerrors.IsRetryable(err),
		})
		tasksRetried.Inc()
		if nerr := q.Nack(ctx, d.ID); nerr != nil {
			logger.Error(logging.CategoryQueue, "nack_failed", nerr.Error(), nil)
		}
		return
	}

	taskDuration.Observe(time.Since(start).Seconds())
	tasksCompleted.WithLabelValues(string(report.Status)).Inc()

	w.publishReport(ctx, logger, report)
	w.ack(ctx, q, d)
}

func (w *Worker) publishReport(ctx context.Context, logger *logging.Logger, report *task.Report) {
	data, err := json.Marshal(report)
	if err != nil {
		logger.Error(logging.CategoryWorker, "report_marshal_failed", err.Error(), nil)
		return
	}
	if err := w.opts.Bus.Publish(ctx, w.opts.ResultSubject, data); err != nil {
		// The report is already persisted by the runner; losing the
		// notification is survivable.
		logger.Warn(logging.CategoryQueue, "result_publish_failed", err.Error(), nil)
	}
}

func (w *Worker) deadLetter(ctx context.Context, d *queue.Delivery, cause error) {
	tasksDeadLettered.Inc()
	w.logger.Warn(logging.CategoryValidation, "task_dead_lettered", cause.Error(), map[string]any{
		"delivery_id": d.ID,
	})

	payload, err := json.Marshal(DeadLetter{
		DeliveryID: d.ID,
		Error:      cause.Error(),
		Payload:    json.RawMessage(d.Data),
	})
	if err != nil {
		// The raw payload was not valid JSON; wrap it as a string.
		payload, _ = json.Marshal(DeadLetter{
			DeliveryID: d.ID,
			Error:      cause.Error(),
			Payload:    json.RawMessage(fmt.Sprintf("%q", d.Data)),
		})
	}
	if err := w.opts.Bus.Publish(ctx, w.opts.DeadLetterSubject, payload); err != nil {
		w.logger.Error(logging.CategoryQueue, "dead_letter_publish_failed", err.Error(), nil)
	}
}

func (w *Worker) ack(ctx context.Context, q queue.TaskQueue, d *queue.Delivery) {
	if err := q.Ack(ctx, d.ID); err != nil {
		w.logger.Error(logging.CategoryQueue, "ack_failed", err.Error(), map[string]any{
			"delivery_id": d.ID,
		})
	}
}
