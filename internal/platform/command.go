package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"comfy-test/internal/process"
	"comfy-test/internal/testerror"
	"comfy-test/pkg/logging"
)

// execCommandContext is replaced in tests.
var execCommandContext = exec.CommandContext

// runner executes setup commands, streaming their output to the debug log
// and keeping the tail for error reports.
type runner struct {
	log *logging.Logger
}

// commandError carries the output tail of a failed command.
type commandError struct {
	cmd    string
	output string
	err    error
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%s: %v", e.cmd, e.err)
}

func (e *commandError) Unwrap() error { return e.err }

// outputOf returns the captured output of a failed command, if any.
func outputOf(err error) string {
	var ce *commandError
	if errors.As(err, &ce) {
		return ce.output
	}
	return ""
}

// withOutput attaches the output of a failed command to e.
func withOutput(e *testerror.Error, err error) *testerror.Error {
	e.Output = outputOf(err)
	return e
}

// run executes name with args in dir. extraEnv entries are appended to the
// current environment.
func (r runner) run(ctx context.Context, dir string, extraEnv []string, name string, args ...string) error {
	display := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.log.Info("running %s", display)

	cmd := execCommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(extraEnv) > 0 {
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, extraEnv...)
	}

	out := &lineWriter{buf: process.NewRingBuffer(process.DefaultTailLines), log: r.log}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	out.flush()
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return &commandError{cmd: display, output: out.buf.String(), err: err}
	}
	return nil
}

// lineWriter splits written bytes into lines.
type lineWriter struct {
	mu      sync.Mutex
	partial bytes.Buffer
	buf     *process.RingBuffer
	log     *logging.Logger
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial.Write(p)
	for {
		line, err := w.partial.ReadString('\n')
		if err != nil {
			// Incomplete line, keep it for the next write.
			w.partial.Reset()
			w.partial.WriteString(line)
			break
		}
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.partial.Len() > 0 {
		w.emit(strings.TrimRight(w.partial.String(), "\r\n"))
		w.partial.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	w.buf.Add(line)
	w.log.Debug("  %s", line)
}
