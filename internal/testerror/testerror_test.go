package testerror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := Install(errors.New("exit status 1"), "Traceback...", "install.py failed")
	assert.Equal(t, "InstallError: install.py failed: exit status 1", err.Error())
	assert.Equal(t, "Traceback...", err.Output)
}

func TestKindOfThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("linux: %w", Provision(nil, "git clone failed"))

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindProvision, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Startup(nil, "", "exited with code 1"))
	assert.True(t, errors.Is(err, &Error{Kind: KindStartup}))
	assert.False(t, errors.Is(err, &Error{Kind: KindInstall}))
}

func TestVerificationDetails(t *testing.T) {
	err := Verification([]string{"B", "C"})
	assert.Equal(t, []string{"B", "C"}, err.Details)
	assert.Contains(t, err.Error(), "B, C")
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil, KindProvision))

	classified := Classify(fmt.Errorf("wait: %w", context.DeadlineExceeded), KindStartup)
	assert.Equal(t, KindSetupTimeout, classified.Kind)

	classified = Classify(errors.New("disk full"), KindProvision)
	assert.Equal(t, KindProvision, classified.Kind)

	orig := APIUnreachable(nil, "connection refused")
	assert.Same(t, orig, Classify(fmt.Errorf("x: %w", orig), KindProvision))
}

func TestExpiredKeepsOutput(t *testing.T) {
	cause := fmt.Errorf("%w (signal: killed)", context.DeadlineExceeded)
	install := Install(cause, "Collecting torch...", "failed to install requirements")

	err := Expired(install, "INSTALLING did not finish within %s", "5m0s")
	assert.Equal(t, KindSetupTimeout, err.Kind)
	assert.Equal(t, "Collecting torch...", err.Output)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "SetupTimeout: INSTALLING did not finish within 5m0s: InstallError: failed to install requirements: context deadline exceeded (signal: killed)", err.Error())

	kind, _ := KindOf(fmt.Errorf("run: %w", err))
	assert.Equal(t, KindSetupTimeout, kind)
}
