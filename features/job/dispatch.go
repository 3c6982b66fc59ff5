package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// External run statuses reported by dispatchers that track execution.
const (
	RunQueued  = "QUEUED"
	RunStarted = "STARTED"
	RunSuccess = "SUCCESS"
	RunFailure = "FAILURE"
)

var ErrNoHandler = errors.New("dispatcher has no handler")

// Dispatcher hands queued jobs to an executor.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
	// Status reports the executor's view of a run. ok is false when the
	// dispatcher cannot tell.
	Status(ctx context.Context, runID string) (status string, ok bool)
}

type HandlerFunc func(ctx context.Context, msg Message) error

// FailureFunc is told about every run that ended with an error, including
// runs the pool refused.
type FailureFunc func(ctx context.Context, msg Message, err error)

// LocalDispatcher runs jobs in process on a bounded ants pool.
type LocalDispatcher struct {
	pool      *ants.Pool
	handler   HandlerFunc
	onFailure FailureFunc

	mu   sync.RWMutex
	runs map[string]string
	wg   sync.WaitGroup
}

func NewLocalDispatcher(workers int) (*LocalDispatcher, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create job pool: %w", err)
	}
	return &LocalDispatcher{pool: pool, runs: map[string]string{}}, nil
}

// AddHandler sets the function executing each dispatched job.
func (d *LocalDispatcher) AddHandler(h HandlerFunc) {
	d.handler = h
}

// OnFailure sets the function called when a run fails. Local runs are not
// redelivered, so it is the last chance to settle the job.
func (d *LocalDispatcher) OnFailure(f FailureFunc) {
	d.onFailure = f
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if d.handler == nil {
		return ErrNoHandler
	}
	if d.pool.IsClosed() {
		return fmt.Errorf("submit job %s: %w", msg.JobID, ants.ErrPoolClosed)
	}
	d.setStatus(msg.RunID, RunQueued)

	// The job outlives the submitting request, and a busy pool must not
	// hold the request up, so the blocking Submit happens off the caller.
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		err := d.pool.Submit(func() {
			defer d.wg.Done()
			d.run(runCtx, msg)
		})
		if err != nil {
			d.wg.Done()
			slog.ErrorContext(runCtx, "job submission to pool failed", "job_id", msg.JobID, "error", err)
			d.setStatus(msg.RunID, RunFailure)
			d.failed(runCtx, msg, err)
		}
	}()
	return nil
}

func (d *LocalDispatcher) run(ctx context.Context, msg Message) {
	d.setStatus(msg.RunID, RunStarted)
	if err := d.handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "job run failed", "job_id", msg.JobID, "run_id", msg.RunID, "error", err)
		d.setStatus(msg.RunID, RunFailure)
		d.failed(ctx, msg, err)
		return
	}
	d.setStatus(msg.RunID, RunSuccess)
}

func (d *LocalDispatcher) failed(ctx context.Context, msg Message, err error) {
	if d.onFailure != nil {
		d.onFailure(ctx, msg, err)
	}
}

func (d *LocalDispatcher) Status(_ context.Context, runID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.runs[runID]
	return s, ok
}

// Close waits for running jobs and releases the pool.
func (d *LocalDispatcher) Close() {
	d.wg.Wait()
	d.pool.Release()
}

func (d *LocalDispatcher) setStatus(runID, status string) {
	d.mu.Lock()
	d.runs[runID] = status
	d.mu.Unlock()
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// NSQDispatcher publishes jobs for the worker process to consume.
type NSQDispatcher struct {
	pub     EventPublisher
	topic   string
	timeout time.Duration
}

func NewNSQDispatcher(pub EventPublisher, topic string) *NSQDispatcher {
	return &NSQDispatcher{pub: pub, topic: topic, timeout: 5 * time.Second}
}

func (d *NSQDispatcher) Dispatch(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- d.pub.Publish(d.topic, body)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.timeout):
		return errors.New("timeout waiting for NSQ publish")
	}
}

// Status is unknown for NSQ runs; the job row is the only record.
func (d *NSQDispatcher) Status(context.Context, string) (string, bool) {
	return "", false
}
