package process

import (
	"strings"
	"sync"
)

// DefaultTailLines is the number of output lines a Handle keeps.
const DefaultTailLines = 200

// RingBuffer keeps the most recent lines written to it.
type RingBuffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRingBuffer creates a buffer holding at most capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultTailLines
	}
	return &RingBuffer{lines: make([]string, capacity)}
}

// Add appends a line, evicting the oldest one when full.
func (r *RingBuffer) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the buffered lines, oldest first.
func (r *RingBuffer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}

// Len returns the number of buffered lines.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.lines)
	}
	return r.next
}

func (r *RingBuffer) String() string {
	return strings.Join(r.Lines(), "\n")
}
