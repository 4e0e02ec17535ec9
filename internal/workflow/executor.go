package workflow

import (
	"context"
	"errors"
	"time"

	"k8s.io/utils/clock"

	"comfy-test/internal/api"
	"comfy-test/internal/poll"
	"comfy-test/internal/testerror"
	"comfy-test/pkg/logging"
)

const (
	// DefaultPollInterval is how often job status is checked.
	DefaultPollInterval = time.Second
	cancelTimeout       = 10 * time.Second
)

// JobClient is the part of the host API the executor needs.
type JobClient interface {
	SubmitJob(ctx context.Context, prompt api.Prompt) (string, error)
	GetJobStatus(ctx context.Context, promptID string) (api.JobStatus, error)
	CancelJob(ctx context.Context, promptID string) error
}

// Executor submits a job and follows it to a terminal state.
type Executor struct {
	client   JobClient
	interval time.Duration
	clock    clock.Clock
	log      *logging.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithPollInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.interval = d }
}

func WithClock(c clock.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

func WithLogger(l *logging.Logger) ExecutorOption {
	return func(e *Executor) { e.log = l }
}

func NewExecutor(client JobClient, opts ...ExecutorOption) *Executor {
	e := &Executor{
		client:   client,
		interval: DefaultPollInterval,
		clock:    clock.RealClock{},
		log:      logging.With("WorkflowExecutor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute submits prompt exactly once and polls until the job completes,
// fails or timeout elapses. On timeout one best-effort cancellation is sent.
// The returned result is always populated; the error is a *testerror.Error
// for every outcome other than completion.
func (e *Executor) Execute(ctx context.Context, prompt api.Prompt, timeout time.Duration) (JobResult, error) {
	promptID, err := e.client.SubmitJob(ctx, prompt)
	if err != nil {
		return JobResult{Outcome: JobFailed}, classifyAPIError(err, "job submission failed")
	}
	e.log.Info("submitted job %s, waiting up to %s", promptID, timeout)

	result := JobResult{PromptID: promptID, LastState: api.JobQueued}
	var last api.JobStatus

	outcome, err := poll.Until(ctx, e.clock, e.interval, timeout, func(ctx context.Context) (bool, error) {
		result.Polls++
		status, err := e.client.GetJobStatus(ctx, promptID)
		if err != nil {
			return false, err
		}
		if status.State != result.LastState {
			e.log.Debug("job %s is %s", promptID, status.State)
		}
		last = status
		if status.State != api.JobUnknown {
			result.LastState = status.State
		}
		return status.State.Terminal(), nil
	})

	switch {
	case outcome == poll.Succeeded && last.State == api.JobCompleted:
		result.Outcome = JobCompleted
		e.log.Info("job %s completed after %d polls", promptID, result.Polls)
		return result, nil

	case outcome == poll.Succeeded:
		result.Outcome = JobFailed
		result.Error = last.Error
		return result, testerror.Execution(last.Error.String(), "job %s failed", promptID)

	case outcome == poll.TimedOut || errors.Is(err, context.DeadlineExceeded):
		result.Outcome = JobTimedOut
		e.cancel(ctx, &result)
		return result, testerror.ExecutionTimeout("job %s still %s after %s", promptID, result.LastState, timeout)

	case ctx.Err() != nil:
		result.Outcome = JobFailed
		e.cancel(ctx, &result)
		return result, ctx.Err()

	default:
		result.Outcome = JobFailed
		return result, classifyAPIError(err, "failed to read job status")
	}
}

// cancel sends a single cancellation on a context detached from ctx, which
// may already be done.
func (e *Executor) cancel(ctx context.Context, result *JobResult) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	result.CancelAttempted = true
	if err := e.client.CancelJob(cctx, result.PromptID); err != nil {
		e.log.Warn("cancellation of job %s failed: %v", result.PromptID, err)
		return
	}
	e.log.Info("cancelled job %s", result.PromptID)
}

func classifyAPIError(err error, msg string) error {
	var statusErr *api.StatusError
	switch {
	case errors.Is(err, api.ErrUnreachable):
		return testerror.APIUnreachable(err, "%s", msg)
	case errors.As(err, &statusErr):
		return testerror.Execution(statusErr.Body, "%s: host returned HTTP %d", msg, statusErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return testerror.ExecutionTimeout("%s: %v", msg, err)
	default:
		return err
	}
}
