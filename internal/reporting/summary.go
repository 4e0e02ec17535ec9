package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"comfy-test/internal/color"
)

// Summary is the reportable view of an aggregate result.
type Summary struct {
	DryRun   bool          `json:"dryRun"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"durationNanos"`
	Runs     []RunSummary  `json:"runs"`
}

// RunSummary describes one platform run.
type RunSummary struct {
	Platform    string         `json:"platform"`
	RunID       string         `json:"runId"`
	Outcome     string         `json:"outcome"`
	FailedPhase string         `json:"failedPhase,omitempty"`
	Error       string         `json:"error,omitempty"`
	Missing     []string       `json:"missing,omitempty"`
	Problems    []string       `json:"problems,omitempty"`
	Duration    time.Duration  `json:"durationNanos"`
	Phases      []PhaseSummary `json:"phases"`
	Job         *JobSummary    `json:"job,omitempty"`
	OutputTail  []string       `json:"outputTail,omitempty"`
}

type PhaseSummary struct {
	Phase    string        `json:"phase"`
	Duration time.Duration `json:"durationNanos"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type JobSummary struct {
	PromptID        string `json:"promptId"`
	Outcome         string `json:"outcome"`
	Polls           int    `json:"polls"`
	CancelAttempted bool   `json:"cancelAttempted,omitempty"`
	Error           string `json:"error,omitempty"`
}

const successOutcome = "success"

// OK reports whether every run succeeded.
func (s Summary) OK() bool {
	for _, r := range s.Runs {
		if r.Outcome != successOutcome {
			return false
		}
	}
	return len(s.Runs) > 0
}

// SummaryOptions tune RenderSummary.
type SummaryOptions struct {
	// Width truncates long lines; 0 means no limit.
	Width int
	// TailLines limits the output tail shown for failed runs.
	TailLines int
}

// RenderSummary writes a table of all runs followed by failure details.
func RenderSummary(w io.Writer, s Summary, opts SummaryOptions) {
	if opts.TailLines <= 0 {
		opts.TailLines = 20
	}

	title := "Results"
	if s.DryRun {
		title = "Results (dry run)"
	}
	fmt.Fprintln(w, color.HeaderStyle.Render(title))

	cols := []string{"PLATFORM", "OUTCOME", "FAILED PHASE", "DURATION"}
	rows := make([][]string, 0, len(s.Runs))
	for _, r := range s.Runs {
		rows = append(rows, []string{r.Platform, outcomeLabel(r), r.FailedPhase, r.Duration.Round(time.Second).String()})
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = runewidth.StringWidth(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	fmt.Fprintln(w, "  "+color.MutedStyle.Render(joinCells(cols, widths)))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = runewidth.FillRight(cell, widths[j])
		}
		// Styled after measuring; escape codes have no display width.
		pad := widths[1] - runewidth.StringWidth(row[1])
		cells[1] = outcomeStyle(s.Runs[i].Outcome).Render(row[1]) + strings.Repeat(" ", pad)
		fmt.Fprintln(w, "  "+strings.TrimRight(strings.Join(cells, "  "), " "))
	}

	for _, r := range s.Runs {
		if r.Outcome == successOutcome {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s failed in %s\n", color.FailureStyle.Render(r.Platform), r.FailedPhase)
		if r.Error != "" {
			fmt.Fprintln(w, "  "+truncate(r.Error, opts.Width-2))
		}
		if len(r.Missing) > 0 {
			fmt.Fprintln(w, "  missing components:")
			for _, m := range r.Missing {
				fmt.Fprintln(w, "    - "+m)
			}
		}
		for _, p := range r.Problems {
			fmt.Fprintln(w, "    "+truncate(p, opts.Width-4))
		}
		if r.Job != nil && r.Job.Error != "" {
			fmt.Fprintln(w, "  job "+r.Job.PromptID+": "+truncate(r.Job.Error, opts.Width-8))
		}
		if tail := lastLines(r.OutputTail, opts.TailLines); len(tail) > 0 {
			fmt.Fprintln(w, color.MutedStyle.Render("  last output:"))
			for _, line := range tail {
				fmt.Fprintln(w, color.MutedStyle.Render("    "+truncate(line, opts.Width-4)))
			}
		}
	}

	fmt.Fprintln(w)
	passed := 0
	for _, r := range s.Runs {
		if r.Outcome == successOutcome {
			passed++
		}
	}
	verdict := color.SuccessStyle.Render("PASSED")
	if !s.OK() {
		verdict = color.FailureStyle.Render("FAILED")
	}
	fmt.Fprintf(w, "%s %d/%d platforms in %s\n", verdict, passed, len(s.Runs), s.Duration.Round(time.Second))
}

func joinCells(cells []string, widths []int) string {
	padded := make([]string, len(cells))
	for i, c := range cells {
		padded[i] = runewidth.FillRight(c, widths[i])
	}
	return strings.TrimRight(strings.Join(padded, "  "), " ")
}

func outcomeLabel(r RunSummary) string {
	if r.Outcome == successOutcome {
		return "SUCCESS"
	}
	return "FAILED (" + r.Outcome + ")"
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case successOutcome:
		return color.SuccessStyle
	case "timeout":
		return color.WarningStyle
	default:
		return color.FailureStyle
	}
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func lastLines(lines []string, n int) []string {
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}
