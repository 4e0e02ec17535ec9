package orchestrator

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

type cleanupFunc func() error

type cleanupEntry struct {
	name string
	fn   cleanupFunc
}

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack struct {
	entries []cleanupEntry
}

func (s *cleanupStack) push(name string, fn cleanupFunc) {
	s.entries = append(s.entries, cleanupEntry{name: name, fn: fn})
}

func (s *cleanupStack) len() int {
	return len(s.entries)
}

// unwind runs every entry once, continuing past failures, and returns the
// aggregated errors.
func (s *cleanupStack) unwind() error {
	var errs []error
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if err := e.fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	s.entries = nil
	return utilerrors.NewAggregate(errs)
}
