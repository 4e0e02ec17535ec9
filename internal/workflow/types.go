package workflow

import (
	"encoding/json"
	"fmt"

	"comfy-test/internal/api"
)

// JobOutcome is the terminal outcome of an executed job.
type JobOutcome string

const (
	JobCompleted JobOutcome = "completed"
	JobFailed    JobOutcome = "failed"
	JobTimedOut  JobOutcome = "timed-out"
)

// JobResult describes one executed job.
type JobResult struct {
	Outcome  JobOutcome          `json:"outcome"`
	PromptID string              `json:"promptId,omitempty"`
	Error    *api.ExecutionError `json:"error,omitempty"`
	// LastState is the last state the host reported before the outcome.
	LastState api.JobState `json:"lastState,omitempty"`
	// CancelAttempted is set when a cancellation request was sent.
	CancelAttempted bool `json:"cancelAttempted,omitempty"`
	Polls           int  `json:"polls"`
}

// Graph is a workflow as saved by the editor: positional widget values and
// links between node slots.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Links []Link      `json:"links"`
}

// GraphNode is one node of an editor workflow.
type GraphNode struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Widgets json.RawMessage `json:"widgets_values,omitempty"`
	Inputs  []GraphSlot     `json:"inputs,omitempty"`
	Outputs []GraphSlot     `json:"outputs,omitempty"`
}

// WidgetValues returns the positional widget values. Some extensions store
// them as an object; those are not positional and yield nil.
func (n GraphNode) WidgetValues() []any {
	var values []any
	if err := json.Unmarshal(n.Widgets, &values); err != nil {
		return nil
	}
	return values
}

// GraphSlot is a declared input or output slot of an editor node.
type GraphSlot struct {
	Name string `json:"name"`
	Type any    `json:"type"`
}

// Link is [id, fromNode, fromSlot, toNode, toSlot, type].
type Link struct {
	ID       int
	FromNode int
	FromSlot int
	ToNode   int
	ToSlot   int
	Type     string
	// Valid is false for entries that do not have the six-element shape.
	Valid bool
}

func (l *Link) UnmarshalJSON(b []byte) error {
	var parts []any
	if err := json.Unmarshal(b, &parts); err != nil || len(parts) < 6 {
		// Links in unexpected shapes are ignored rather than rejected.
		*l = Link{}
		return nil
	}
	ints := make([]int, 5)
	for i := 0; i < 5; i++ {
		f, ok := parts[i].(float64)
		if !ok {
			*l = Link{}
			return nil
		}
		ints[i] = int(f)
	}
	*l = Link{
		ID:       ints[0],
		FromNode: ints[1],
		FromSlot: ints[2],
		ToNode:   ints[3],
		ToSlot:   ints[4],
		Type:     fmt.Sprint(parts[5]),
		Valid:    true,
	}
	return nil
}

// Problem is a single workflow validation error.
type Problem struct {
	NodeID   string
	NodeType string
	// Level is "schema" for node and widget errors, "graph" for link errors.
	Level   string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("[%s] node %s (%s): %s", p.Level, p.NodeID, p.NodeType, p.Message)
}
