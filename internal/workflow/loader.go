package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"comfy-test/internal/api"
)

// WorkflowsDir is the directory inside an extension holding example workflows.
const WorkflowsDir = "workflows"

// ErrEditorFormat is returned when an editor-format workflow is submitted.
var ErrEditorFormat = errors.New("workflow is in editor format, export it in API format to submit it")

// Document is a parsed workflow file in either format.
type Document struct {
	Path   string
	Graph  *Graph
	Prompt api.Prompt
}

// LoadPrompt reads an API-format workflow, optionally wrapped in
// {"prompt": ...}, for submission.
func LoadPrompt(path string) (api.Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	if doc.Prompt == nil {
		return nil, fmt.Errorf("workflow %s: %w", path, ErrEditorFormat)
	}
	return doc.Prompt, nil
}

// Parse detects the workflow format and decodes it.
func Parse(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("invalid workflow JSON: %w", err)
	}

	if nodes, ok := top["nodes"]; ok && isArray(nodes) {
		var g Graph
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("invalid editor workflow: %w", err)
		}
		return &Document{Graph: &g}, nil
	}

	if wrapped, ok := top["prompt"]; ok && isObject(wrapped) {
		return Parse(wrapped)
	}

	var p api.Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid API workflow: %w", err)
	}
	if len(p) == 0 {
		return nil, errors.New("workflow contains no nodes")
	}
	for id, node := range p {
		if node.ClassType == "" {
			return nil, fmt.Errorf("node %s: missing class_type", id)
		}
	}
	return &Document{Prompt: p}, nil
}

// Discover lists the JSON workflows shipped in an extension, sorted by name.
// A missing directory yields no workflows.
func Discover(extensionDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(extensionDir, WorkflowsDir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// LoadAll parses every discovered workflow of an extension.
func LoadAll(extensionDir string) ([]*Document, error) {
	paths, err := Discover(extensionDir)
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read workflow %s: %w", path, err)
		}
		doc, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", filepath.Base(path), err)
		}
		doc.Path = path
		docs = append(docs, doc)
	}
	return docs, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
