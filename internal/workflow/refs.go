package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrUnresolvedRef marks a `$nodes.<id>.output.<path>` reference that could
// not be resolved against completed upstream node outputs — spec.md §4.2
// classifies this as node FAILED with INPUT_UNRESOLVED.
var ErrUnresolvedRef = fmt.Errorf("workflow: unresolved reference")

// outputs is the set of completed upstream node outputs available for
// reference resolution, keyed by node id.
type outputs map[string]json.RawMessage

// BuildInput merges a node's static_input_template with resolved
// references against completed upstream Node Runs' output_snapshot. Any
// string value of the exact form "$nodes.<id>.output.<path>" is replaced by
// the referenced value (not string-interpolated — the whole value becomes
// the referenced JSON value, preserving its type).
func BuildInput(template json.RawMessage, upstream map[string]json.RawMessage) (json.RawMessage, error) {
	if len(template) == 0 {
		return json.RawMessage("{}"), nil
	}

	var doc interface{}
	if err := json.Unmarshal(template, &doc); err != nil {
		return nil, fmt.Errorf("workflow: build input: parse template: %w", err)
	}

	resolved, err := resolveValue(doc, outputs(upstream))
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("workflow: build input: marshal: %w", err)
	}
	return out, nil
}

func resolveValue(v interface{}, upstream outputs) (interface{}, error) {
	switch val := v.(type) {
	case string:
		if ref, ok := parseRef(val); ok {
			return resolveRef(ref, upstream)
		}
		return val, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			resolvedChild, err := resolveValue(child, upstream)
			if err != nil {
				return nil, err
			}
			out[k] = resolvedChild
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			resolvedChild, err := resolveValue(child, upstream)
			if err != nil {
				return nil, err
			}
			out[i] = resolvedChild
		}
		return out, nil
	default:
		return val, nil
	}
}

// ref is a parsed `$nodes.<id>.output.<path>` reference.
type ref struct {
	nodeID string
	path   []string
}

// parseRef recognizes the exact `$nodes.<id>.output.<path...>` form. The
// node id itself may not contain dots; the path after ".output." may.
func parseRef(s string) (ref, bool) {
	if !strings.HasPrefix(s, "$nodes.") {
		return ref{}, false
	}
	rest := strings.TrimPrefix(s, "$nodes.")
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 || parts[0] == "" {
		return ref{}, false
	}
	nodeID := parts[0]
	tail := parts[1]
	if !strings.HasPrefix(tail, "output") {
		return ref{}, false
	}
	tail = strings.TrimPrefix(tail, "output")
	if tail != "" && !strings.HasPrefix(tail, ".") {
		return ref{}, false
	}
	tail = strings.TrimPrefix(tail, ".")

	var path []string
	if tail != "" {
		path = strings.Split(tail, ".")
	}
	return ref{nodeID: nodeID, path: path}, true
}

func resolveRef(r ref, upstream outputs) (interface{}, error) {
	raw, ok := upstream[r.nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: node %q has no completed output", ErrUnresolvedRef, r.nodeID)
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: node %q output is not valid JSON: %s", ErrUnresolvedRef, r.nodeID, err)
	}

	cur := doc
	for _, segment := range r.path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: path segment %q on node %q is not an object", ErrUnresolvedRef, segment, r.nodeID)
		}
		cur, ok = m[segment]
		if !ok {
			return nil, fmt.Errorf("%w: path segment %q not found on node %q output", ErrUnresolvedRef, segment, r.nodeID)
		}
	}
	return cur, nil
}
