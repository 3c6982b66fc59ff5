package job_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/timrodz/cards-oracle/features/job"
	"github.com/timrodz/cards-oracle/internal/pipeline"
)

// MockRepo implements job.Repository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Create(ctx context.Context, j *job.Job) error {
	return m.Called(ctx, j).Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) MarkSucceeded(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	args := m.Called(ctx, id, message)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) MarkFailedSubmission(ctx context.Context, id, message string) (bool, error) {
	args := m.Called(ctx, id, message)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) CountByStatus(ctx context.Context) (map[job.Status]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[job.Status]int), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, msg job.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockDispatcher) Status(ctx context.Context, runID string) (string, bool) {
	args := m.Called(ctx, runID)
	return args.String(0), args.Bool(1)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []pipeline.Request
	run   func(req pipeline.Request) (pipeline.Stats, error)
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (pipeline.Stats, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.run == nil {
		return pipeline.Stats{}, nil
	}
	return f.run(req)
}

type MockLister struct {
	mock.Mock
}

func (m *MockLister) Properties(ctx context.Context, collection string) ([]string, error) {
	args := m.Called(ctx, collection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
