// Package worker consumes embedding jobs published to NSQ.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"github.com/timrodz/cards-oracle/features/job"
	"github.com/timrodz/cards-oracle/internal/middleware"
)

// Executor runs one dispatched job and settles jobs whose deliveries ran out.
type Executor interface {
	Execute(ctx context.Context, msg job.Message) error
	Abandon(ctx context.Context, msg job.Message, cause error)
}

var ErrAttemptsExhausted = errors.New("delivery attempts exhausted")

type JobConsumer struct {
	executor Executor
}

func NewJobConsumer(e Executor) *JobConsumer {
	return &JobConsumer{executor: e}
}

// HandleMessage returns an error only when the job should be redelivered.
// Failures already recorded on the job, duplicates and unknown jobs are
// finished.
func (c *JobConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var msg job.Message
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		// Poison pill
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if msg.JobID == "" {
		slog.Error("poison pill: missing job_id")
		return nil
	}

	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), msg.CorrelationID)

	err := c.executor.Execute(ctx, msg)
	var execErr *job.ExecutionError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &execErr):
		slog.ErrorContext(ctx, "job failed", "job_id", msg.JobID, "error", execErr.Err)
		return nil
	case errors.Is(err, job.ErrNotQueued):
		slog.WarnContext(ctx, "duplicate delivery dropped", "job_id", msg.JobID, "attempts", m.Attempts)
		return nil
	case errors.Is(err, job.ErrNotFound):
		slog.ErrorContext(ctx, "job not found, dropping", "job_id", msg.JobID)
		return nil
	default:
		slog.ErrorContext(ctx, "job execution interrupted, requeueing", "job_id", msg.JobID, "attempts", m.Attempts, "error", err)
		return err
	}
}

// LogFailedMessage is called by go-nsq instead of HandleMessage once a
// message exceeds MaxAttempts. The job is failed so it does not stay queued.
func (c *JobConsumer) LogFailedMessage(m *nsq.Message) {
	var msg job.Message
	if err := json.Unmarshal(m.Body, &msg); err != nil || msg.JobID == "" {
		return
	}
	ctx := context.Background()
	if msg.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, msg.CorrelationID)
	}
	slog.ErrorContext(ctx, "giving up on job", "job_id", msg.JobID, "attempts", m.Attempts)
	c.executor.Abandon(ctx, msg, ErrAttemptsExhausted)
}

// Consumer binds a JobConsumer to an NSQ topic.
type Consumer struct {
	consumer *nsq.Consumer
}

// NewConsumer creates an NSQ consumer running concurrency handlers. Each
// message may be attempted maxAttempts times.
func NewConsumer(topic, channel string, h nsq.Handler, concurrency int, maxAttempts uint16) (*Consumer, error) {
	cfg := nsq.NewConfig()
	cfg.MaxInFlight = concurrency
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}

	c, err := nsq.NewConsumer(topic, channel, cfg)
	if err != nil {
		return nil, err
	}
	c.SetLogger(nsqLogger{}, nsq.LogLevelWarning)
	c.AddConcurrentHandlers(h, concurrency)
	return &Consumer{consumer: c}, nil
}

func (c *Consumer) Connect(nsqdAddr string) error {
	return c.consumer.ConnectToNSQD(nsqdAddr)
}

func (c *Consumer) ConnectLookupd(addr string) error {
	return c.consumer.ConnectToNSQLookupd(addr)
}

// Stop drains in-flight messages and waits for the handlers to return.
func (c *Consumer) Stop() {
	c.consumer.Stop()
	<-c.consumer.StopChan
}

// nsqLogger routes go-nsq output through slog.
type nsqLogger struct{}

func (nsqLogger) Output(_ int, s string) error {
	slog.Warn("nsq", "message", s)
	return nil
}
