package orchestrator

import (
	"comfy-test/internal/reporting"
)

// Summary converts the result for reporting.
func (r *Result) Summary() reporting.Summary {
	s := reporting.Summary{
		DryRun:   r.DryRun,
		Started:  r.Started,
		Duration: r.Ended.Sub(r.Started),
		Runs:     make([]reporting.RunSummary, 0, len(r.Runs)),
	}
	for _, run := range r.Runs {
		s.Runs = append(s.Runs, run.summary())
	}
	return s
}

func (r *PlatformRun) summary() reporting.RunSummary {
	rs := reporting.RunSummary{
		Platform:    string(r.Platform),
		RunID:       r.RunID,
		Outcome:     string(r.Outcome),
		FailedPhase: string(r.FailedPhase),
		Missing:     r.Missing,
		Problems:    r.Problems,
		Duration:    r.Duration(),
	}
	if r.Err != nil {
		rs.Error = r.Err.Error()
		rs.OutputTail = r.Output
	}
	for _, p := range r.Phases {
		ps := reporting.PhaseSummary{
			Phase:    string(p.Phase),
			Duration: p.Duration(),
			Skipped:  p.Skipped,
		}
		if p.Err != nil {
			ps.Error = p.Err.Error()
		}
		rs.Phases = append(rs.Phases, ps)
	}
	if r.Job != nil {
		rs.Job = &reporting.JobSummary{
			PromptID:        r.Job.PromptID,
			Outcome:         string(r.Job.Outcome),
			Polls:           r.Job.Polls,
			CancelAttempted: r.Job.CancelAttempted,
		}
		if r.Job.Error != nil {
			rs.Job.Error = r.Job.Error.String()
		}
	}
	return rs
}
