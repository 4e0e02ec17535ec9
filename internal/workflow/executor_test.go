package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"comfy-test/internal/api"
	"comfy-test/internal/testerror"
)

// scriptedClient replays a fixed sequence of statuses, repeating the last one.
type scriptedClient struct {
	mu        sync.Mutex
	submitErr error
	statuses  []api.JobStatus
	statusErr error
	polls     int
	submits   int
	cancels   int
}

func (c *scriptedClient) SubmitJob(ctx context.Context, prompt api.Prompt) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits++
	if c.submitErr != nil {
		return "", c.submitErr
	}
	return "job-1", nil
}

func (c *scriptedClient) GetJobStatus(ctx context.Context, id string) (api.JobStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return api.JobStatus{}, c.statusErr
	}
	i := c.polls
	if i >= len(c.statuses) {
		i = len(c.statuses) - 1
	}
	c.polls++
	return c.statuses[i], nil
}

func (c *scriptedClient) CancelJob(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
	return nil
}

func fastExecutor(c JobClient) *Executor {
	return NewExecutor(c, WithPollInterval(5*time.Millisecond))
}

var testPrompt = api.Prompt{"1": {ClassType: "MyNode", Inputs: map[string]any{}}}

func TestExecute_Completes(t *testing.T) {
	c := &scriptedClient{statuses: []api.JobStatus{
		{State: api.JobQueued},
		{State: api.JobRunning},
		{State: api.JobCompleted},
	}}

	res, err := fastExecutor(c).Execute(context.Background(), testPrompt, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, res.Outcome)
	assert.Equal(t, "job-1", res.PromptID)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, 1, c.submits)
	assert.Zero(t, c.cancels)
}

func TestExecute_FailedCarriesHostError(t *testing.T) {
	hostErr := &api.ExecutionError{NodeID: "3", NodeType: "MyNode", ExceptionType: "ValueError", ExceptionMessage: "bad input"}
	c := &scriptedClient{statuses: []api.JobStatus{
		{State: api.JobRunning},
		{State: api.JobFailed, Error: hostErr},
	}}

	res, err := fastExecutor(c).Execute(context.Background(), testPrompt, 5*time.Second)
	require.Error(t, err)
	kind, _ := testerror.KindOf(err)
	assert.Equal(t, testerror.KindExecution, kind)
	assert.Equal(t, JobFailed, res.Outcome)
	assert.Same(t, hostErr, res.Error)
	assert.Zero(t, c.cancels)
}

func TestExecute_StuckRunningTimesOutAndCancelsOnce(t *testing.T) {
	c := &scriptedClient{statuses: []api.JobStatus{{State: api.JobRunning}}}

	res, err := fastExecutor(c).Execute(context.Background(), testPrompt, 100*time.Millisecond)
	require.Error(t, err)
	kind, _ := testerror.KindOf(err)
	assert.Equal(t, testerror.KindExecutionTimeout, kind)
	assert.Equal(t, JobTimedOut, res.Outcome)
	assert.Equal(t, api.JobRunning, res.LastState)
	assert.True(t, res.CancelAttempted)
	assert.Equal(t, 1, c.cancels)
	assert.Equal(t, 1, c.submits)
}

func TestExecute_ContextDeadlineIsExecutionTimeout(t *testing.T) {
	c := &scriptedClient{statuses: []api.JobStatus{{State: api.JobQueued}}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := fastExecutor(c).Execute(ctx, testPrompt, time.Hour)
	kind, _ := testerror.KindOf(err)
	assert.Equal(t, testerror.KindExecutionTimeout, kind)
	assert.Equal(t, 1, c.cancels)
	assert.True(t, res.CancelAttempted)
}

func TestExecute_SubmissionErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind testerror.Kind
	}{
		{"unreachable", fmt.Errorf("%w: POST /prompt", api.ErrUnreachable), testerror.KindAPIUnreachable},
		{"rejected", &api.StatusError{Method: "POST", Path: "/prompt", StatusCode: 400, Body: "invalid prompt"}, testerror.KindExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scriptedClient{submitErr: tt.err}
			res, err := fastExecutor(c).Execute(context.Background(), testPrompt, time.Second)
			kind, ok := testerror.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, JobFailed, res.Outcome)
			assert.Zero(t, c.polls)
			assert.Zero(t, c.cancels)
		})
	}
}

func TestExecute_HostDisappearsWhilePolling(t *testing.T) {
	c := &scriptedClient{statusErr: fmt.Errorf("%w: GET /history/job-1", api.ErrUnreachable)}

	_, err := fastExecutor(c).Execute(context.Background(), testPrompt, time.Second)
	kind, _ := testerror.KindOf(err)
	assert.Equal(t, testerror.KindAPIUnreachable, kind)
}

// mockJobClient checks call counts with testify's mock package.
type mockJobClient struct {
	mock.Mock
}

func (m *mockJobClient) SubmitJob(ctx context.Context, prompt api.Prompt) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockJobClient) GetJobStatus(ctx context.Context, id string) (api.JobStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(api.JobStatus), args.Error(1)
}

func (m *mockJobClient) CancelJob(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestExecute_CancellationFailureStillReportsTimeout(t *testing.T) {
	m := &mockJobClient{}
	m.On("SubmitJob", mock.Anything, testPrompt).Return("job-9", nil).Once()
	m.On("GetJobStatus", mock.Anything, "job-9").Return(api.JobStatus{State: api.JobQueued}, nil)
	m.On("CancelJob", mock.Anything, "job-9").Return(errors.New("connection reset")).Once()

	res, err := fastExecutor(m).Execute(context.Background(), testPrompt, 50*time.Millisecond)
	kind, _ := testerror.KindOf(err)
	assert.Equal(t, testerror.KindExecutionTimeout, kind)
	assert.Equal(t, api.JobQueued, res.LastState)
	m.AssertExpectations(t)
	m.AssertNumberOfCalls(t, "CancelJob", 1)
}
