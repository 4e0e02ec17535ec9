// Package process owns the host application's server process: start with
// captured output, readiness wait and graceful termination.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"k8s.io/utils/clock"

	"comfy-test/internal/poll"
	"comfy-test/pkg/logging"
)

// DefaultGracePeriod is how long Terminate waits after the graceful stop
// signal before killing the process.
const DefaultGracePeriod = 10 * time.Second

// State is the lifecycle state of a Handle.
type State string

const (
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

// ReadyResult is the outcome of WaitReady.
type ReadyResult string

const (
	Ready       ReadyResult = "ready"
	ExitedEarly ReadyResult = "exited-early"
	TimedOut    ReadyResult = "timed-out"
)

// execCommand is replaced in tests.
var execCommand = exec.Command

// Options describe the process to start.
type Options struct {
	Command string
	Args    []string
	Dir     string
	// Env is the complete environment; nil inherits the current one.
	Env  []string
	Port int

	TailLines   int
	GracePeriod time.Duration
	Clock       clock.Clock
	Logger      *logging.Logger
}

// Handle owns exactly one OS process, or none when detached.
type Handle struct {
	cmd    *exec.Cmd
	port   int
	output *RingBuffer
	clock  clock.Clock
	grace  time.Duration
	log    *logging.Logger

	exited  chan struct{}
	exitErr error
	readers sync.WaitGroup

	mu    sync.Mutex
	state State

	terminateOnce sync.Once
}

// Start launches the process. The process is not bound to ctx; it lives until
// Terminate is called or it exits on its own.
func Start(ctx context.Context, opts Options) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := newHandle(opts)

	cmd := execCommand(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	setProcessGroup(cmd)
	// Children holding the pipes open must not block Wait past the grace period.
	cmd.WaitDelay = h.grace

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return nil, fmt.Errorf("failed to start process %s: %w", opts.Command, err)
	}
	h.cmd = cmd

	h.log.Debug("started %s %s (PID: %d)", opts.Command, strings.Join(opts.Args, " "), cmd.Process.Pid)

	h.readers.Add(2)
	go h.capture(stdoutR, "stdout")
	go h.capture(stderrR, "stderr")

	go func() {
		err := cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		h.readers.Wait()
		h.exitErr = err
		close(h.exited)
	}()

	return h, nil
}

// Detached returns a Handle without an OS process, used by dry runs.
func Detached(port int, logger *logging.Logger) *Handle {
	h := newHandle(Options{Port: port, Logger: logger})
	return h
}

func newHandle(opts Options) *Handle {
	h := &Handle{
		port:   opts.Port,
		output: NewRingBuffer(opts.TailLines),
		clock:  opts.Clock,
		grace:  opts.GracePeriod,
		log:    opts.Logger,
		exited: make(chan struct{}),
		state:  StateStarting,
	}
	if h.clock == nil {
		h.clock = clock.RealClock{}
	}
	if h.grace <= 0 {
		h.grace = DefaultGracePeriod
	}
	if h.log == nil {
		h.log = logging.With("Process")
	}
	return h
}

func (h *Handle) capture(r io.Reader, stream string) {
	defer h.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		h.output.Add(line)
		h.log.Debug("[%s] %s", stream, line)
	}
}

// PID returns the OS process ID, or 0 when detached.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *Handle) Port() int { return h.port }

// Detached reports whether the handle owns no OS process.
func (h *Handle) Detached() bool { return h.cmd == nil }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateStopped {
		return
	}
	h.state = s
}

// Exited is closed once the process has exited and been reaped. It is never
// closed for a detached handle.
func (h *Handle) Exited() <-chan struct{} { return h.exited }

// ExitErr returns the error reported by Wait. Only valid after Exited.
func (h *Handle) ExitErr() error {
	select {
	case <-h.exited:
		return h.exitErr
	default:
		return nil
	}
}

// Output returns the most recent output lines, stdout and stderr interleaved.
func (h *Handle) Output() []string { return h.output.Lines() }

// Tail returns the buffered output as a single string.
func (h *Handle) Tail() string { return h.output.String() }

var errExited = errors.New("process exited before becoming ready")

// WaitReady polls probe every interval until it succeeds, the process exits
// or timeout elapses. A nil probe error means ready.
func (h *Handle) WaitReady(ctx context.Context, timeout, interval time.Duration, probe func(context.Context) error) (ReadyResult, error) {
	outcome, err := poll.Until(ctx, h.clock, interval, timeout, func(ctx context.Context) (bool, error) {
		select {
		case <-h.exited:
			return false, errExited
		default:
		}
		if perr := probe(ctx); perr != nil {
			h.log.Debug("not ready yet: %v", perr)
			return false, nil
		}
		return true, nil
	})

	switch outcome {
	case poll.Succeeded:
		h.setState(StateReady)
		return Ready, nil
	case poll.TimedOut:
		h.setState(StateFailed)
		return TimedOut, nil
	default:
		h.setState(StateFailed)
		if errors.Is(err, errExited) {
			code := -1
			if h.cmd != nil && h.cmd.ProcessState != nil {
				code = h.cmd.ProcessState.ExitCode()
			}
			return ExitedEarly, fmt.Errorf("%w (exit code %d)", errExited, code)
		}
		return TimedOut, err
	}
}

// Terminate stops the process and its process group: a graceful signal
// first, then a kill once the grace period passes. It is idempotent, safe on
// an exited process and never blocks longer than the grace period.
func (h *Handle) Terminate() {
	h.terminateOnce.Do(h.terminate)
}

func (h *Handle) terminate() {
	defer func() {
		h.mu.Lock()
		h.state = StateStopped
		h.mu.Unlock()
	}()

	if h.cmd == nil || h.cmd.Process == nil {
		return
	}

	select {
	case <-h.exited:
		h.log.Debug("process %d already exited", h.PID())
		return
	default:
	}

	proc := h.cmd.Process
	if err := signalGroup(proc, syscall.SIGTERM); err != nil {
		// Windows has no SIGTERM.
		h.log.Debug("SIGTERM failed for %d, using kill: %v", proc.Pid, err)
		h.kill(proc)
		return
	}

	timer := h.clock.NewTimer(h.grace)
	defer timer.Stop()

	select {
	case <-h.exited:
		h.log.Debug("process %d exited gracefully", proc.Pid)
	case <-timer.C():
		h.log.Warn("graceful shutdown timeout for %d, forcing kill", proc.Pid)
		h.kill(proc)
	}
}

func (h *Handle) kill(proc *os.Process) {
	if err := signalGroup(proc, syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.log.Warn("failed to kill process %d: %v", proc.Pid, err)
	}
}
