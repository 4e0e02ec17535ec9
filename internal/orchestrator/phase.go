package orchestrator

import (
	"time"

	"comfy-test/internal/config"
	"comfy-test/internal/testerror"
	"comfy-test/internal/workflow"
)

// Phase is a state of a platform run.
type Phase string

const (
	PhasePending      Phase = "PENDING"
	PhaseProvisioning Phase = "PROVISIONING"
	PhaseInstalling   Phase = "INSTALLING"
	PhaseStarting     Phase = "STARTING"
	PhaseVerifying    Phase = "VERIFYING"
	PhaseExecuting    Phase = "EXECUTING"
	PhaseTeardown     Phase = "TEARDOWN"
	PhaseSuccess      Phase = "SUCCESS"
	PhaseFailed       Phase = "FAILED"
)

// Outcome is the final classification of a platform run.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeVerificationFailure Outcome = "verification-failure"
	OutcomeExecutionFailure    Outcome = "execution-failure"
	OutcomeTimeout             Outcome = "timeout"
	OutcomeSetupError          Outcome = "setup-error"
)

func outcomeOf(kind testerror.Kind) Outcome {
	switch kind {
	case testerror.KindVerification, testerror.KindWorkflowInvalid:
		return OutcomeVerificationFailure
	case testerror.KindExecution:
		return OutcomeExecutionFailure
	case testerror.KindExecutionTimeout, testerror.KindSetupTimeout:
		return OutcomeTimeout
	default:
		return OutcomeSetupError
	}
}

// PhaseRecord is the timing of one phase.
type PhaseRecord struct {
	Phase   Phase
	Started time.Time
	Ended   time.Time
	Skipped bool
	Err     error
}

func (r PhaseRecord) Duration() time.Duration {
	return r.Ended.Sub(r.Started)
}

// PlatformRun is the result of driving one platform through its phases. It
// is only mutated by the goroutine running it.
type PlatformRun struct {
	RunID    string
	Platform config.PlatformName
	DryRun   bool

	// Phase is the current phase; SUCCESS or FAILED once the run ended.
	Phase  Phase
	Phases []PhaseRecord

	Outcome     Outcome
	FailedPhase Phase
	Err         *testerror.Error
	// Missing lists expected components the host did not register.
	Missing []string
	// Problems lists workflow validation errors.
	Problems []string
	Job      *workflow.JobResult
	// Output is the captured diagnostic output tail.
	Output []string

	// TeardownErr is informational and never affects Outcome.
	TeardownErr error

	Started time.Time
	Ended   time.Time
}

// Succeeded reports whether the run reached SUCCESS.
func (r *PlatformRun) Succeeded() bool {
	return r.Phase == PhaseSuccess
}

func (r *PlatformRun) Duration() time.Duration {
	return r.Ended.Sub(r.Started)
}

// Result aggregates the runs of one invocation.
type Result struct {
	DryRun bool
	// Runs are in the order the platforms were requested.
	Runs    []*PlatformRun
	Started time.Time
	Ended   time.Time
}

// OK reports whether every requested run succeeded.
func (r *Result) OK() bool {
	if len(r.Runs) == 0 {
		return false
	}
	for _, run := range r.Runs {
		if !run.Succeeded() {
			return false
		}
	}
	return true
}

// Run returns the run for platform, or nil.
func (r *Result) Run(platform config.PlatformName) *PlatformRun {
	for _, run := range r.Runs {
		if run.Platform == platform {
			return run
		}
	}
	return nil
}
