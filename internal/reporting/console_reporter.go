package reporting

import (
	"sync"
	"time"

	"comfy-test/pkg/logging"
)

// ConsoleReporter logs every phase update through pkg/logging.
type ConsoleReporter struct {
	mu sync.Mutex
}

func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

func (c *ConsoleReporter) Report(update PhaseUpdate) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}

	// Serialized so lines of concurrent runs never interleave.
	c.mu.Lock()
	defer c.mu.Unlock()

	log := logging.With("Run", "platform", update.Platform, "phase", update.Phase)
	prefix := ""
	if update.DryRun {
		prefix = "[dry-run] "
	}

	switch update.Status {
	case StatusFailed:
		log.Error(update.Err, "%s%s failed", prefix, update.Phase)
	case StatusSkipped:
		log.Info("%s%s skipped: %s", prefix, update.Phase, update.Message)
	case StatusStarted:
		log.Info("%s%s", prefix, update.Phase)
	default:
		if update.Message != "" {
			log.Info("%s%s finished: %s", prefix, update.Phase, update.Message)
		} else {
			log.Debug("%s%s finished", prefix, update.Phase)
		}
	}
}
