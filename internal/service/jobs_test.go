package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docflow/internal/auth"
	"docflow/internal/service"
	"docflow/internal/service/mocks"
)

func startManager(t *testing.T, bulk service.BulkService, workers int) *service.JobManager {
	t.Helper()
	m := service.NewJobManager(bulk, service.JobConfig{Workers: workers})
	m.Start(context.Background())
	t.Cleanup(m.Stop)
	return m
}

func waitState(t *testing.T, m *service.JobManager, id string, want service.JobState) service.Job {
	t.Helper()
	var job service.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Poll(id)
		return err == nil && job.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestJobManager_Succeeds(t *testing.T) {
	bulk := &mocks.MockBulkService{}
	bulk.On("RunAnalyzeAll", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(func(service.AnalyzeAllResult))(service.AnalyzeAllResult{Analyzed: 5, Remaining: 2, Iterations: 1})
			caller, ok := auth.FromContext(args.Get(0).(context.Context))
			assert.True(t, ok)
			assert.Equal(t, "u1", caller.UserID)
		}).
		Return(&service.AnalyzeAllResult{Analyzed: 7, Iterations: 2}, nil)
	m := startManager(t, bulk, 1)

	ctx := auth.WithCaller(context.Background(), auth.Caller{UserID: "u1", Role: auth.RoleOperator})
	job, err := m.Submit(ctx, service.JobAnalyzeAll)
	require.NoError(t, err)
	assert.Equal(t, "u1", job.CreatedBy)

	done := waitState(t, m, job.ID, service.JobSucceeded)
	assert.Equal(t, 7, done.Progress.Analyzed)
	assert.NotNil(t, done.FinishedAt)
	bulk.AssertExpectations(t)
}

func TestJobManager_BreakerStopAndFailure(t *testing.T) {
	bulk := &mocks.MockBulkService{}
	bulk.On("RunAnalyzeAll", mock.Anything, mock.Anything).
		Return(&service.AnalyzeAllResult{Iterations: 50}, fmt.Errorf("%w: cap", service.ErrCircuitBreakerStop)).Once()
	bulk.On("RunAnalyzeAll", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("db down")).Once()
	m := startManager(t, bulk, 1)

	stopped, err := m.Submit(context.Background(), service.JobAnalyzeAll)
	require.NoError(t, err)
	job := waitState(t, m, stopped.ID, service.JobStopped)
	assert.Contains(t, job.Error, "circuit breaker")

	failed, err := m.Submit(context.Background(), service.JobAnalyzeAll)
	require.NoError(t, err)
	job = waitState(t, m, failed.ID, service.JobFailed)
	assert.Equal(t, "db down", job.Error)
}

func TestJobManager_Cancel(t *testing.T) {
	started := make(chan struct{})
	bulk := &mocks.MockBulkService{}
	bulk.On("RunAnalyzeAll", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(&service.AnalyzeAllResult{Iterations: 1}, context.Canceled).Once()
	m := startManager(t, bulk, 1)

	running, err := m.Submit(context.Background(), service.JobAnalyzeAll)
	require.NoError(t, err)
	<-started
	queued, err := m.Submit(context.Background(), service.JobAnalyzeAll)
	require.NoError(t, err)

	job, err := m.Cancel(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, service.JobCancelled, job.State)

	_, err = m.Cancel(running.ID)
	require.NoError(t, err)
	waitState(t, m, running.ID, service.JobCancelled)

	_, err = m.Cancel(running.ID)
	assert.ErrorIs(t, err, service.ErrConflict)
	bulk.AssertNumberOfCalls(t, "RunAnalyzeAll", 1)
}

func TestJobManager_Errors(t *testing.T) {
	m := startManager(t, &mocks.MockBulkService{}, 1)

	_, err := m.Submit(context.Background(), service.JobKind("reindex"))
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = m.Poll("missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = m.Cancel("missing")
	assert.ErrorIs(t, err, service.ErrNotFound)

	idle := service.NewJobManager(&mocks.MockBulkService{}, service.JobConfig{})
	_, err = idle.Submit(context.Background(), service.JobAnalyzeAll)
	assert.Error(t, err)
}
