package reporting

import (
	"fmt"
	"time"
)

// UpdateStatus describes what happened to a phase.
type UpdateStatus string

const (
	StatusStarted  UpdateStatus = "started"
	StatusFinished UpdateStatus = "finished"
	StatusSkipped  UpdateStatus = "skipped"
	StatusFailed   UpdateStatus = "failed"
)

// PhaseUpdate is one phase transition of a platform run.
type PhaseUpdate struct {
	Timestamp time.Time
	Platform  string
	RunID     string
	Phase     string
	Status    UpdateStatus
	// Message is a short human-readable note, e.g. why a phase was skipped.
	Message string
	Err     error
	DryRun  bool
}

func (u PhaseUpdate) String() string {
	s := fmt.Sprintf("%s %s %s", u.Platform, u.Phase, u.Status)
	if u.Message != "" {
		s += ": " + u.Message
	}
	if u.Err != nil {
		s += ": " + u.Err.Error()
	}
	return s
}

// Reporter receives phase updates from concurrent platform runs.
// Implementations must be safe for concurrent use.
type Reporter interface {
	Report(update PhaseUpdate)
}

// Multi fans updates out to several reporters.
type Multi []Reporter

func (m Multi) Report(update PhaseUpdate) {
	for _, r := range m {
		r.Report(update)
	}
}
