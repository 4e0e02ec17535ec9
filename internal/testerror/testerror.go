// Package testerror defines the error taxonomy shared by every phase of a
// platform run. A single Error type carries the kind, a message, the captured
// diagnostic output and the wrapped cause.
package testerror

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a phase failure.
type Kind string

const (
	KindProvision        Kind = "ProvisionError"
	KindInstall          Kind = "InstallError"
	KindStartup          Kind = "StartupError"
	KindAPIUnreachable   Kind = "ApiUnreachable"
	KindVerification     Kind = "VerificationFailure"
	KindWorkflowInvalid  Kind = "WorkflowInvalid"
	KindExecution        Kind = "ExecutionFailure"
	KindExecutionTimeout Kind = "ExecutionTimeout"
	KindSetupTimeout     Kind = "SetupTimeout"
)

// Error is a classified phase failure.
type Error struct {
	Kind    Kind
	Message string
	// Output is captured subprocess output for diagnosis, if any.
	Output string
	// Details lists individual items, e.g. missing components or validation errors.
	Details []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, &testerror.Error{Kind: testerror.KindInstall}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func Provision(cause error, format string, args ...any) *Error {
	return newf(KindProvision, cause, format, args...)
}

// Install builds an InstallError; output is the captured subprocess output.
func Install(cause error, output string, format string, args ...any) *Error {
	e := newf(KindInstall, cause, format, args...)
	e.Output = output
	return e
}

func Startup(cause error, output string, format string, args ...any) *Error {
	e := newf(KindStartup, cause, format, args...)
	e.Output = output
	return e
}

func APIUnreachable(cause error, format string, args ...any) *Error {
	return newf(KindAPIUnreachable, cause, format, args...)
}

// Verification reports the expected components that were not registered.
func Verification(missing []string) *Error {
	return &Error{
		Kind:    KindVerification,
		Message: fmt.Sprintf("expected components not found: %s", strings.Join(missing, ", ")),
		Details: missing,
	}
}

func WorkflowInvalid(problems []string, format string, args ...any) *Error {
	e := newf(KindWorkflowInvalid, nil, format, args...)
	e.Details = problems
	return e
}

func Execution(detail string, format string, args ...any) *Error {
	e := newf(KindExecution, nil, format, args...)
	if detail != "" {
		e.Details = []string{detail}
	}
	return e
}

func ExecutionTimeout(format string, args ...any) *Error {
	return newf(KindExecutionTimeout, context.DeadlineExceeded, format, args...)
}

func SetupTimeout(cause error, format string, args ...any) *Error {
	return newf(KindSetupTimeout, cause, format, args...)
}

// Expired reclassifies e as SetupTimeout once its phase deadline has passed.
// The captured output and details of e are kept.
func Expired(e *Error, format string, args ...any) *Error {
	t := SetupTimeout(e, format, args...)
	t.Output = e.Output
	t.Details = e.Details
	return t
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// Classify makes sure err carries a Kind. Unclassified deadline errors become
// SetupTimeout, anything else unclassified gets the fallback kind.
func Classify(err error, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return SetupTimeout(err, "phase exceeded its allotted time")
	}
	return &Error{Kind: fallback, Err: err}
}
