package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type result struct {
	outcome Outcome
	err     error
}

// drive steps the fake clock until Until returns.
func drive(t *testing.T, clk *testingclock.FakeClock, step time.Duration, done <-chan result) result {
	t.Helper()
	giveUp := time.After(10 * time.Second)
	for {
		select {
		case r := <-done:
			return r
		case <-giveUp:
			t.Fatal("poll did not return")
		default:
			clk.Step(step)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestUntil_SucceedsAfterSeveralAttempts(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	var calls atomic.Int32

	done := make(chan result, 1)
	go func() {
		o, err := Until(context.Background(), clk, time.Second, time.Hour, func(context.Context) (bool, error) {
			return calls.Add(1) >= 3, nil
		})
		done <- result{o, err}
	}()

	r := drive(t, clk, time.Second, done)
	assert.Equal(t, Succeeded, r.outcome)
	assert.NoError(t, r.err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUntil_TimesOut(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())

	done := make(chan result, 1)
	go func() {
		o, err := Until(context.Background(), clk, time.Second, 5*time.Second, func(context.Context) (bool, error) {
			return false, nil
		})
		done <- result{o, err}
	}()

	r := drive(t, clk, time.Second, done)
	assert.Equal(t, TimedOut, r.outcome)
	assert.NoError(t, r.err)
}

func TestUntil_ConditionErrorStopsImmediately(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	boom := errors.New("process exited")

	o, err := Until(context.Background(), clk, time.Second, time.Minute, func(context.Context) (bool, error) {
		return false, boom
	})
	assert.Equal(t, Failed, o)
	assert.ErrorIs(t, err, boom)
}

func TestUntil_ContextCancelled(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan result, 1)
	go func() {
		o, err := Until(ctx, clk, time.Second, time.Minute, func(context.Context) (bool, error) {
			return false, nil
		})
		done <- result{o, err}
	}()

	require.Eventually(t, clk.HasWaiters, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case r := <-done:
		assert.Equal(t, Failed, r.outcome)
		assert.ErrorIs(t, r.err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("poll ignored cancellation")
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "timed-out", TimedOut.String())
}
