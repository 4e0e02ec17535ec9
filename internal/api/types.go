package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JobState is the lifecycle state of a submitted job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	// JobUnknown means the host knows nothing about the job, neither in
	// history nor in the queue.
	JobUnknown JobState = "unknown"
)

// Terminal reports whether no further transitions will happen.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ExecutionError is the error payload the host records for a failed job.
type ExecutionError struct {
	NodeID           string   `json:"node_id"`
	NodeType         string   `json:"node_type"`
	ExceptionType    string   `json:"exception_type"`
	ExceptionMessage string   `json:"exception_message"`
	Traceback        []string `json:"traceback,omitempty"`
}

func (e *ExecutionError) String() string {
	if e == nil {
		return ""
	}
	if e.NodeType != "" {
		return e.ExceptionType + " in node " + e.NodeID + " (" + e.NodeType + "): " + e.ExceptionMessage
	}
	return e.ExceptionType + ": " + e.ExceptionMessage
}

// JobStatus is the result of GetJobStatus.
type JobStatus struct {
	State JobState
	Error *ExecutionError
	// Outputs maps node IDs to their recorded outputs for completed jobs.
	Outputs map[string]json.RawMessage
}

// Prompt is a workflow in API format: node ID to node definition.
type Prompt map[string]PromptNode

// PromptNode is one node of an API-format workflow.
type PromptNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// NodeInfo is the /object_info entry for one node type.
type NodeInfo struct {
	Name         string     `json:"name"`
	DisplayName  string     `json:"display_name"`
	Category     string     `json:"category"`
	Input        NodeInputs `json:"input"`
	Output       []any      `json:"output"`
	OutputName   []string   `json:"output_name"`
	OutputIsList []bool     `json:"output_is_list"`
	OutputNode   bool       `json:"output_node"`
}

// NodeInputs groups input specs by requirement.
type NodeInputs struct {
	Required InputGroup                 `json:"required"`
	Optional InputGroup                 `json:"optional"`
	Hidden   map[string]json.RawMessage `json:"hidden"`
}

// InputGroup is an input spec object that remembers key order, which
// determines how positional widget values map onto inputs. Each spec is the
// raw [type, options] pair the host emits.
type InputGroup struct {
	Names []string
	Specs map[string]json.RawMessage
}

func (g *InputGroup) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("input group: expected object, got %v", tok)
	}

	g.Names = nil
	g.Specs = map[string]json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("input group: unexpected key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("input group: %s: %w", key, err)
		}
		if _, dup := g.Specs[key]; !dup {
			g.Names = append(g.Names, key)
		}
		g.Specs[key] = raw
	}
	_, err = dec.Token()
	return err
}

// InputSpec is a parsed input declaration.
type InputSpec struct {
	Name string
	// Type is the declared type name, e.g. INT, IMAGE or COMBO.
	Type string
	// Choices holds the allowed values of a combo input.
	Choices []any
	Options map[string]any
	// Optional is set for inputs from the optional group.
	Optional bool
}

var widgetTypes = map[string]bool{"INT": true, "FLOAT": true, "STRING": true, "BOOLEAN": true, "COMBO": true}

// IsWidget reports whether the input is set by a value rather than a link.
func (s InputSpec) IsWidget() bool { return widgetTypes[s.Type] }

// Inputs returns the node's required inputs followed by its optional ones,
// in declaration order. Malformed specs are skipped.
func (n NodeInfo) Inputs() []InputSpec {
	var out []InputSpec
	for _, group := range []struct {
		g        InputGroup
		optional bool
	}{{n.Input.Required, false}, {n.Input.Optional, true}} {
		for _, name := range group.g.Names {
			spec, ok := parseInputSpec(name, group.g.Specs[name])
			if !ok {
				continue
			}
			spec.Optional = group.optional
			out = append(out, spec)
		}
	}
	return out
}

func parseInputSpec(name string, raw json.RawMessage) (InputSpec, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		return InputSpec{}, false
	}
	spec := InputSpec{Name: name}
	if len(parts) > 1 {
		_ = json.Unmarshal(parts[1], &spec.Options)
	}

	var typeName string
	if err := json.Unmarshal(parts[0], &typeName); err == nil {
		spec.Type = typeName
		if typeName == "COMBO" {
			if opts, ok := spec.Options["options"].([]any); ok {
				spec.Choices = opts
			}
		}
		return spec, true
	}

	var choices []any
	if err := json.Unmarshal(parts[0], &choices); err == nil {
		spec.Type = "COMBO"
		spec.Choices = choices
		return spec, true
	}
	return InputSpec{}, false
}

// OutputTypes returns the declared output type names. Combo outputs are
// reported as COMBO.
func (n NodeInfo) OutputTypes() []string {
	out := make([]string, len(n.Output))
	for i, o := range n.Output {
		if s, ok := o.(string); ok {
			out[i] = s
		} else {
			out[i] = "COMBO"
		}
	}
	return out
}

// ObjectInfo maps registered node type names to their descriptions.
type ObjectInfo map[string]NodeInfo

type submitRequest struct {
	Prompt   Prompt `json:"prompt"`
	ClientID string `json:"client_id,omitempty"`
}

type submitResponse struct {
	PromptID   string          `json:"prompt_id"`
	Number     int             `json:"number"`
	NodeErrors json.RawMessage `json:"node_errors,omitempty"`
}

type historyEntry struct {
	Status struct {
		StatusStr string           `json:"status_str"`
		Completed bool             `json:"completed"`
		Messages  []historyMessage `json:"messages"`
	} `json:"status"`
	Outputs map[string]json.RawMessage `json:"outputs"`
}

// historyMessage is a [event, payload] pair.
type historyMessage []json.RawMessage

// queueResponse lists queue items as [number, prompt_id, prompt, ...] tuples.
type queueResponse struct {
	Running [][]json.RawMessage `json:"queue_running"`
	Pending [][]json.RawMessage `json:"queue_pending"`
}
