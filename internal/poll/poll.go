// Package poll implements the cooperative wait used for readiness checks and
// job polling: evaluate a condition on a fixed interval until it reports a
// terminal state or a deadline passes.
package poll

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

// Outcome is the tri-state result of Until.
type Outcome int

const (
	// Succeeded means the condition reported done without error.
	Succeeded Outcome = iota
	// Failed means the condition returned an error, or ctx was cancelled.
	Failed
	// TimedOut means the timeout elapsed before the condition was done.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// ConditionFunc reports whether polling is done. A non-nil error stops
// polling immediately with Failed.
type ConditionFunc func(ctx context.Context) (done bool, err error)

// Until evaluates cond immediately and then every interval until it is done,
// fails, ctx ends or timeout elapses. The returned error is the one produced
// by cond, or ctx.Err() when ctx ended first.
func Until(ctx context.Context, clk clock.Clock, interval, timeout time.Duration, cond ConditionFunc) (Outcome, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}

	deadline := clk.NewTimer(timeout)
	defer deadline.Stop()

	for {
		done, err := cond(ctx)
		if err != nil {
			return Failed, err
		}
		if done {
			return Succeeded, nil
		}

		select {
		case <-ctx.Done():
			return Failed, ctx.Err()
		case <-deadline.C():
			return TimedOut, nil
		case <-clk.After(interval):
		}
	}
}
