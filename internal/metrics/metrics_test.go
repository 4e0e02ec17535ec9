package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.ObservePhase("linux", "PROVISIONING", 40*time.Second, false)
	r.ObservePhase("linux", "INSTALLING", 3*time.Second, true)
	r.ObserveRun("linux", "setup-error", time.Minute, time.Unix(1700000000, 0))
	r.ObserveRun("windows", "success", 2*time.Minute, time.Unix(1700000100, 0))
	r.ObserveJob("windows", "completed", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("linux", "setup-error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.phaseFailures.WithLabelValues("linux", "INSTALLING")))
	assert.Equal(t, 120.0, testutil.ToFloat64(r.runDuration.WithLabelValues("windows")))
	assert.Equal(t, 1700000100.0, testutil.ToFloat64(r.lastRun))
	assert.Equal(t, 2, testutil.CollectAndCount(r.phaseDuration))

	expected := `
# HELP comfy_test_platform_runs_total Platform runs by final outcome.
# TYPE comfy_test_platform_runs_total counter
comfy_test_platform_runs_total{outcome="setup-error",platform="linux"} 1
comfy_test_platform_runs_total{outcome="success",platform="windows"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "comfy_test_platform_runs_total"))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun("linux", "success", time.Second, time.Now())

	path := filepath.Join(t.TempDir(), "comfy_test.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `comfy_test_platform_runs_total{outcome="success",platform="linux"} 1`)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObservePhase("linux", "STARTING", time.Second, true)
	r.ObserveRun("linux", "timeout", time.Second, time.Now())
	r.ObserveJob("linux", "timed-out", 3)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
