package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
	"github.com/crawlerd/crawlerd/pkg/queue"
	"github.com/crawlerd/crawlerd/pkg/task"
)

// stubRunner fails the first failures runs with an engine error, then
// succeeds with a canned report.
type stubRunner struct {
	mu       sync.Mutex
	failures int
	runs     int
}

func (r *stubRunner) Run(ctx context.Context, t *task.Task) (*task.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	if r.runs <= r.failures {
		return nil, crawlerrors.New(crawlerrors.CodeEngine, "browser crashed").WithRetryable(true)
	}
	return &task.Report{TaskID: t.TaskID, URL: t.URL, Status: task.TaskSuccess}, nil
}

func (r *stubRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func validPayload(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(task.Task{
		TaskID:  "task-0000000000-worker",
		URL:     "https://example.test/",
		Actions: []task.Action{{Type: task.ActionScreenshot, Name: "s1"}},
	})
	require.NoError(t, err)
	return data
}

func startWorker(t *testing.T, bus queue.Bus, runner TaskRunner) (*Worker, context.CancelFunc) {
	t.Helper()
	w := New(Options{Bus: bus, Runner: runner, Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("worker did not stop after cancel")
		}
	})
	return w, cancel
}

func waitForMessage(t *testing.T, ch <-chan *queue.Message) *queue.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestWorkerPublishesReportAndAcks(t *testing.T) {
	bus := queue.NewMemoryBus()
	defer bus.Close()

	results := make(chan *queue.Message, 1)
	_, err := bus.Subscribe(context.Background(), "crawlerd.results.done", func(msg *queue.Message) {
		results <- msg
	})
	require.NoError(t, err)

	runner := &stubRunner{}
	startWorker(t, bus, runner)

	require.NoError(t, bus.Queue("tasks").Push(context.Background(), validPayload(t)))

	msg := waitForMessage(t, results)
	var report task.Report
	require.NoError(t, json.Unmarshal(msg.Data, &report))
	assert.Equal(t, "task-0000000000-worker", report.TaskID)
	assert.Equal(t, task.TaskSuccess, report.Status)
	assert.Equal(t, 1, runner.count())

	n, err := bus.Queue("tasks").Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorkerDeadLettersInvalidPayload(t *testing.T) {
	bus := queue.NewMemoryBus()
	defer bus.Close()

	dead := make(chan *queue.Message, 1)
	_, err := bus.Subscribe(context.Background(), "crawlerd.results.dead", func(msg *queue.Message) {
		dead <- msg
	})
	require.NoError(t, err)

	runner := &stubRunner{}
	startWorker(t, bus, runner)

	require.NoError(t, bus.Queue("tasks").Push(context.Background(), []byte(`{"url":"","actions":[]}`)))

	msg := waitForMessage(t, dead)
	var dl DeadLetter
	require.NoError(t, json.Unmarshal(msg.Data, &dl))
	assert.NotEmpty(t, dl.Error)
	assert.NotEmpty(t, dl.DeliveryID)
	// The runner never sees a task that failed validation.
	assert.Zero(t, runner.count())
}

func TestWorkerNacksEngineFaultForRedelivery(t *testing.T) {
	bus := queue.NewMemoryBus()
	defer bus.Close()

	results := make(chan *queue.Message, 1)
	_, err := bus.Subscribe(context.Background(), "crawlerd.results.done", func(msg *queue.Message) {
		results <- msg
	})
	require.NoError(t, err)

	runner := &stubRunner{failures: 1}
	startWorker(t, bus, runner)

	require.NoError(t, bus.Queue("tasks").Push(context.Background(), validPayload(t)))

	// First run crashes and is nacked; the redelivery succeeds.
	waitForMessage(t, results)
	assert.Equal(t, 2, runner.count())
}

func TestWorkerReportsClosedQueueAsError(t *testing.T) {
	bus := queue.NewMemoryBus()
	w := New(Options{Bus: bus, Runner: &stubRunner{}})

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(context.Background())
	}()

	// Let the pull loop block on the queue, then yank the transport.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, bus.Close())

	select {
	case err := <-errCh:
		require.Error(t, err, "a closed transport under a live context is an outage")
		assert.ErrorIs(t, err, queue.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after the bus closed")
	}
}
