package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"comfy-test/internal/api"
)

// Editor-only node types that never appear in /object_info.
var virtualNodeTypes = sets.New("Note", "MarkdownNote", "Reroute", "PrimitiveNode")

// Values the editor stores after seed-like INT widgets.
var controlValues = sets.New("fixed", "increment", "decrement", "randomize")

const (
	levelSchema = "schema"
	levelGraph  = "graph"
)

// Validator checks workflows against the node schemas the host reports.
type Validator struct {
	info api.ObjectInfo
}

func NewValidator(info api.ObjectInfo) *Validator {
	return &Validator{info: info}
}

// Validate dispatches on the document format.
func (v *Validator) Validate(doc *Document) []Problem {
	if doc.Graph != nil {
		return v.ValidateGraph(doc.Graph)
	}
	return v.ValidatePrompt(doc.Prompt)
}

// ValidateGraph checks node types, widget values and links of an editor
// workflow.
func (v *Validator) ValidateGraph(g *Graph) []Problem {
	var problems []Problem
	byID := make(map[int]GraphNode, len(g.Nodes))

	for _, node := range g.Nodes {
		byID[node.ID] = node
		if virtualNodeTypes.Has(node.Type) {
			continue
		}
		schema, ok := v.info[node.Type]
		if !ok {
			problems = append(problems, Problem{
				NodeID: strconv.Itoa(node.ID), NodeType: node.Type, Level: levelSchema,
				Message: "unknown node type: " + node.Type,
			})
			continue
		}
		problems = append(problems, v.checkWidgets(node, schema)...)
	}

	for _, link := range g.Links {
		if !link.Valid {
			continue
		}
		from, ok := byID[link.FromNode]
		if !ok {
			problems = append(problems, Problem{
				NodeID: strconv.Itoa(link.FromNode), NodeType: "unknown", Level: levelGraph,
				Message: fmt.Sprintf("link %d: source node %d does not exist", link.ID, link.FromNode),
			})
			continue
		}
		to, ok := byID[link.ToNode]
		if !ok {
			problems = append(problems, Problem{
				NodeID: strconv.Itoa(link.ToNode), NodeType: "unknown", Level: levelGraph,
				Message: fmt.Sprintf("link %d: target node %d does not exist", link.ID, link.ToNode),
			})
			continue
		}
		if msg := v.checkLink(from, link.FromSlot, to, link.ToSlot); msg != "" {
			problems = append(problems, Problem{
				NodeID: strconv.Itoa(to.ID), NodeType: to.Type, Level: levelGraph, Message: msg,
			})
		}
	}

	return problems
}

func (v *Validator) checkWidgets(node GraphNode, schema api.NodeInfo) []Problem {
	var problems []Problem
	values := node.WidgetValues()
	idx := 0

	for _, spec := range schema.Inputs() {
		if !spec.IsWidget() {
			continue
		}
		if idx >= len(values) {
			// Remaining widgets use their defaults.
			break
		}
		value := values[idx]
		idx++

		if msg := checkValue(spec, value); msg != "" {
			problems = append(problems, Problem{
				NodeID: strconv.Itoa(node.ID), NodeType: node.Type, Level: levelSchema, Message: msg,
			})
		}

		if idx < len(values) && skipsCompanionValue(spec, values[idx]) {
			idx++
		}
	}
	return problems
}

// skipsCompanionValue reports whether the editor stored an extra value after
// spec: the seed control mode, or the upload button of file combos.
func skipsCompanionValue(spec api.InputSpec, next any) bool {
	s, ok := next.(string)
	if !ok {
		return false
	}
	switch spec.Type {
	case "INT":
		return controlValues.Has(s)
	case "COMBO":
		return isUploadCombo(spec) && (s == "image" || s == "video" || s == "audio")
	}
	return false
}

func isUploadCombo(spec api.InputSpec) bool {
	for _, key := range []string{"image_upload", "video_upload", "audio_upload"} {
		if b, _ := spec.Options[key].(bool); b {
			return true
		}
	}
	return false
}

func (v *Validator) checkLink(from GraphNode, fromSlot int, to GraphNode, toSlot int) string {
	if virtualNodeTypes.Has(from.Type) || virtualNodeTypes.Has(to.Type) {
		return ""
	}
	fromSchema, okFrom := v.info[from.Type]
	toSchema, okTo := v.info[to.Type]
	if !okFrom || !okTo {
		// Already reported as unknown node types.
		return ""
	}

	outputs := fromSchema.OutputTypes()
	if fromSlot < 0 || fromSlot >= len(outputs) {
		return fmt.Sprintf("output slot %d does not exist on %s", fromSlot, from.Type)
	}
	outType := outputs[fromSlot]

	inType, ok := inputSlotType(to, toSchema, toSlot)
	if !ok {
		return fmt.Sprintf("input slot %d does not exist on %s", toSlot, to.Type)
	}

	if !typesCompatible(outType, inType) {
		return fmt.Sprintf("type mismatch: %s outputs %s, but %s expects %s", from.Type, outType, to.Type, inType)
	}
	return ""
}

// inputSlotType resolves the type of an input slot, preferring the slots the
// editor saved with the node over the schema's link inputs.
func inputSlotType(node GraphNode, schema api.NodeInfo, slot int) (string, bool) {
	if slot < 0 {
		return "", false
	}
	if len(node.Inputs) > 0 {
		if slot >= len(node.Inputs) {
			return "", false
		}
		if s, ok := node.Inputs[slot].Type.(string); ok {
			return s, true
		}
		return "COMBO", true
	}

	i := 0
	for _, spec := range schema.Inputs() {
		if spec.IsWidget() {
			continue
		}
		if i == slot {
			return spec.Type, true
		}
		i++
	}
	return "", false
}

func typesCompatible(out, in string) bool {
	if out == "*" || in == "*" || out == in {
		return true
	}
	outs := sets.New(strings.Split(out, ",")...)
	ins := sets.New(strings.Split(in, ",")...)
	return outs.HasAny(sets.List(ins)...)
}

// ValidatePrompt checks node types, literal widget values, links and required
// inputs of an API-format workflow.
func (v *Validator) ValidatePrompt(p api.Prompt) []Problem {
	var problems []Problem

	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := p[id]
		schema, ok := v.info[node.ClassType]
		if !ok {
			problems = append(problems, Problem{
				NodeID: id, NodeType: node.ClassType, Level: levelSchema,
				Message: "unknown node type: " + node.ClassType,
			})
			continue
		}

		specs := map[string]api.InputSpec{}
		for _, spec := range schema.Inputs() {
			specs[spec.Name] = spec
		}

		for _, spec := range schema.Inputs() {
			if _, set := node.Inputs[spec.Name]; !set && !spec.Optional {
				problems = append(problems, Problem{
					NodeID: id, NodeType: node.ClassType, Level: levelSchema,
					Message: fmt.Sprintf("missing required input '%s'", spec.Name),
				})
			}
		}

		names := make([]string, 0, len(node.Inputs))
		for name := range node.Inputs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			value := node.Inputs[name]
			spec, known := specs[name]

			if srcID, slot, isLink := asLink(value); isLink {
				if msg := v.checkPromptLink(p, srcID, slot, spec, known, name); msg != "" {
					problems = append(problems, Problem{NodeID: id, NodeType: node.ClassType, Level: levelGraph, Message: msg})
				}
				continue
			}

			if known && spec.IsWidget() {
				if msg := checkValue(spec, value); msg != "" {
					problems = append(problems, Problem{NodeID: id, NodeType: node.ClassType, Level: levelSchema, Message: msg})
				}
			}
		}
	}
	return problems
}

func (v *Validator) checkPromptLink(p api.Prompt, srcID string, slot int, spec api.InputSpec, known bool, name string) string {
	src, ok := p[srcID]
	if !ok {
		return fmt.Sprintf("input '%s' links to missing node %s", name, srcID)
	}
	srcSchema, ok := v.info[src.ClassType]
	if !ok {
		return ""
	}
	outputs := srcSchema.OutputTypes()
	if slot < 0 || slot >= len(outputs) {
		return fmt.Sprintf("input '%s': output slot %d does not exist on %s", name, slot, src.ClassType)
	}
	if known && !spec.IsWidget() && !typesCompatible(outputs[slot], spec.Type) {
		return fmt.Sprintf("input '%s': type mismatch: %s outputs %s, expected %s", name, src.ClassType, outputs[slot], spec.Type)
	}
	return ""
}

// asLink recognizes the [nodeID, outputSlot] form of a linked input.
func asLink(value any) (string, int, bool) {
	pair, ok := value.([]any)
	if !ok || len(pair) != 2 {
		return "", 0, false
	}
	id, ok := pair[0].(string)
	if !ok {
		return "", 0, false
	}
	slot, ok := pair[1].(float64)
	if !ok {
		return "", 0, false
	}
	return id, int(slot), true
}

func checkValue(spec api.InputSpec, value any) string {
	switch spec.Type {
	case "COMBO":
		if len(spec.Choices) == 0 || isUploadCombo(spec) {
			return ""
		}
		for _, choice := range spec.Choices {
			if fmt.Sprint(choice) == fmt.Sprint(value) {
				return ""
			}
		}
		return fmt.Sprintf("'%s': '%v' not in allowed values %s", spec.Name, value, describeChoices(spec.Choices))

	case "INT", "FLOAT":
		n, ok := value.(float64)
		if !ok {
			return fmt.Sprintf("'%s': expected %s, got %s", spec.Name, spec.Type, typeName(value))
		}
		if lo, ok := spec.Options["min"].(float64); ok && n < lo {
			return fmt.Sprintf("'%s': %v < minimum %v", spec.Name, n, lo)
		}
		if hi, ok := spec.Options["max"].(float64); ok && n > hi {
			return fmt.Sprintf("'%s': %v > maximum %v", spec.Name, n, hi)
		}

	case "STRING":
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("'%s': expected STRING, got %s", spec.Name, typeName(value))
		}

	case "BOOLEAN":
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("'%s': expected BOOLEAN, got %s", spec.Name, typeName(value))
		}
	}
	return ""
}

func describeChoices(choices []any) string {
	if len(choices) > 8 {
		return fmt.Sprintf("(%d options)", len(choices))
	}
	parts := make([]string, len(choices))
	for i, c := range choices {
		parts[i] = fmt.Sprint(c)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
