package reporting

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func sampleSummary() Summary {
	return Summary{
		Duration: 95 * time.Second,
		Runs: []RunSummary{
			{
				Platform: "linux",
				RunID:    "run-1",
				Outcome:  "success",
				Duration: 61 * time.Second,
				Phases: []PhaseSummary{
					{Phase: "PROVISIONING", Duration: 40 * time.Second},
					{Phase: "EXECUTING", Skipped: true},
				},
			},
			{
				Platform:    "windows",
				RunID:       "run-2",
				Outcome:     "verification-failure",
				FailedPhase: "VERIFYING",
				Error:       "VerificationFailure: expected components not found: BlurNode",
				Missing:     []string{"BlurNode"},
				Duration:    34 * time.Second,
				OutputTail:  []string{"line 1", "line 2", "line 3"},
			},
		},
	}
}

func TestSummary_OK(t *testing.T) {
	s := sampleSummary()
	assert.False(t, s.OK())

	s.Runs[1].Outcome = "success"
	assert.True(t, s.OK())

	assert.False(t, Summary{}.OK())
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	RenderSummary(&buf, sampleSummary(), SummaryOptions{TailLines: 2})
	out := buf.String()

	assert.Contains(t, out, "Results\n")
	assert.Contains(t, out, "PLATFORM")
	assert.Contains(t, out, "linux     SUCCESS")
	assert.Contains(t, out, "FAILED (verification-failure)  VERIFYING")
	assert.Contains(t, out, "windows failed in VERIFYING")
	assert.Contains(t, out, "    - BlurNode")
	assert.NotContains(t, out, "line 1")
	assert.Contains(t, out, "line 3")
	assert.True(t, strings.HasSuffix(out, "FAILED 1/2 platforms in 1m35s\n"), out)
}

func TestRenderSummary_DryRunTruncates(t *testing.T) {
	s := sampleSummary()
	s.DryRun = true
	s.Runs[1].Error = strings.Repeat("x", 200)

	var buf bytes.Buffer
	RenderSummary(&buf, s, SummaryOptions{Width: 40})
	out := buf.String()

	assert.Contains(t, out, "Results (dry run)")
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "xxx") {
			assert.LessOrEqual(t, len([]rune(line)), 40)
			assert.True(t, strings.HasSuffix(line, "…"))
		}
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "result.json")
	require.NoError(t, WriteJSON(path, sampleSummary()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	runs := decoded["runs"].([]any)
	require.Len(t, runs, 2)
	second := runs[1].(map[string]any)
	assert.Equal(t, "VERIFYING", second["failedPhase"])
	assert.Equal(t, []any{"BlurNode"}, second["missing"])
	first := runs[0].(map[string]any)
	assert.NotContains(t, first, "failedPhase")
}
