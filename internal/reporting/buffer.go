package reporting

import "sync"

// Recorder keeps every update in arrival order.
type Recorder struct {
	mu      sync.Mutex
	updates []PhaseUpdate
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Report(update PhaseUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
}

// Updates returns a copy of the recorded updates.
func (r *Recorder) Updates() []PhaseUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PhaseUpdate(nil), r.updates...)
}

// Sequence returns "PHASE:status" entries for one platform, the shape used
// to compare runs.
func (r *Recorder) Sequence(platform string) []string {
	var seq []string
	for _, u := range r.Updates() {
		if u.Platform == platform {
			seq = append(seq, u.Phase+":"+string(u.Status))
		}
	}
	return seq
}
