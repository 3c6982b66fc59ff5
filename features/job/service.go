package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/timrodz/cards-oracle/internal/middleware"
	"github.com/timrodz/cards-oracle/internal/pipeline"
)

// ErrNotQueued is returned when a job is delivered again after it left the
// queued state.
var ErrNotQueued = errors.New("job is not queued")

// ExecutionError is a pipeline failure that was recorded on the job.
type ExecutionError struct {
	JobID string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("job %s failed: %v", e.JobID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// SubmissionError reports a job that was recorded but never reached an
// executor.
type SubmissionError struct {
	Job *Job
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("dispatch job %s: %v", e.Job.ID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Stats, error)
}

type Service struct {
	repo       Repository
	dispatcher Dispatcher
	runner     Runner
}

func NewService(repo Repository, dispatcher Dispatcher, runner Runner) *Service {
	return &Service{repo: repo, dispatcher: dispatcher, runner: runner}
}

// Submit records a queued job and hands it to the dispatcher. It does not
// wait for the run.
func (s *Service) Submit(ctx context.Context, req pipeline.Request) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	j := &Job{
		ID:            uuid.NewString(),
		Status:        StatusQueued,
		ExternalRunID: uuid.NewString(),
		Request:       req,
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	msg := Message{JobID: j.ID, RunID: j.ExternalRunID}
	if id := middleware.GetCorrelationID(ctx); id != "unknown" {
		msg.CorrelationID = id
	}

	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		reason := err.Error()
		if _, markErr := s.repo.MarkFailedSubmission(ctx, j.ID, reason); markErr != nil {
			slog.ErrorContext(ctx, "failed to record submission failure", "job_id", j.ID, "error", markErr)
		}
		j.Status = StatusFailedSubmission
		j.Error = &reason
		return j, &SubmissionError{Job: j, Err: err}
	}

	slog.InfoContext(ctx, "job submitted", "job_id", j.ID, "run_id", j.ExternalRunID, "source", req.SourceCollection, "target", req.TargetCollection)
	return j, nil
}

// Execute runs a queued job to completion. Each status is entered at most
// once: a redelivered job returns ErrNotQueued without running. Pipeline
// errors and panics become the job's error and are returned as
// *ExecutionError.
func (s *Service) Execute(ctx context.Context, msg Message) (err error) {
	if msg.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, msg.CorrelationID)
	}
	j, err := s.repo.Get(ctx, msg.JobID)
	if err != nil {
		return err
	}

	started, err := s.repo.MarkRunning(ctx, j.ID)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if !started {
		slog.WarnContext(ctx, "job already left the queue, skipping", "job_id", j.ID, "status", j.Status)
		return ErrNotQueued
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err == nil {
			return
		}
		if _, markErr := s.repo.MarkFailed(context.WithoutCancel(ctx), j.ID, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "failed to record job failure", "job_id", j.ID, "error", markErr)
		}
		err = &ExecutionError{JobID: j.ID, Err: err}
	}()

	slog.InfoContext(ctx, "job started", "job_id", j.ID, "run_id", msg.RunID)
	stats, err := s.runner.Run(ctx, j.Request)
	if err != nil {
		return err
	}

	if _, err := s.repo.MarkSucceeded(ctx, j.ID); err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}
	slog.InfoContext(ctx, "job succeeded", "job_id", j.ID, "read", stats.Read, "filtered", stats.Filtered, "chunks", stats.Chunks)
	return nil
}

// Abandon fails a job whose run ended before it could record an outcome
// itself, so it does not stay queued or running. Outcomes the job already
// carries are left alone.
func (s *Service) Abandon(ctx context.Context, msg Message, cause error) {
	var execErr *ExecutionError
	if cause == nil || errors.As(cause, &execErr) || errors.Is(cause, ErrNotQueued) || errors.Is(cause, ErrNotFound) {
		return
	}
	if msg.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, msg.CorrelationID)
	}
	changed, err := s.repo.MarkFailed(context.WithoutCancel(ctx), msg.JobID, cause.Error())
	if err != nil {
		slog.ErrorContext(ctx, "failed to record abandoned job", "job_id", msg.JobID, "error", err)
		return
	}
	if changed {
		slog.WarnContext(ctx, "job abandoned", "job_id", msg.JobID, "error", cause)
	}
}

// Get returns the job with the dispatcher's view of its run when known.
func (s *Service) Get(ctx context.Context, id string) (*StatusResponse, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	external, _ := s.dispatcher.Status(ctx, j.ExternalRunID)
	resp := j.StatusResponse(external)
	return &resp, nil
}

func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx)
}
