// Package workflow implements the DAG workflow execution engine (spec.md
// §4.2): given a triggered workflow, it runs each node's agent as a
// containerized one-shot process, wiring inputs from upstream outputs and
// respecting approval gates, retries, and cancellation.
package workflow

import (
	"encoding/json"
	"fmt"
)

// RetryPolicy bounds how many times a node is retried on failure and the
// backoff shape between attempts.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelayMS int           `json:"base_delay_ms"`
	MaxDelayMS  int           `json:"max_delay_ms"`
}

// Node is one vertex of a workflow's DAG.
type Node struct {
	ID                   string          `json:"id"`
	AgentID              string          `json:"agent_id"`
	Action               string          `json:"action"`
	StaticInputTemplate  json.RawMessage `json:"static_input_template"`
	DependsOn            []string        `json:"depends_on"`
	ApprovalRequired     bool            `json:"approval_required"`
	RetryPolicy          RetryPolicy     `json:"retry_policy"`
}

// Edge connects two nodes within a workflow. Redundant with Node.DependsOn
// but kept as an explicit list because spec.md's data model names it
// separately — depends_on is required to be a subset of the edge set.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ParseNodes decodes a workflow's NodesJSON column.
func ParseNodes(raw string) ([]Node, error) {
	var nodes []Node
	if raw == "" {
		return nodes, nil
	}
	if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
		return nil, fmt.Errorf("workflow: parse nodes: %w", err)
	}
	return nodes, nil
}

// ParseEdges decodes a workflow's EdgesJSON column.
func ParseEdges(raw string) ([]Edge, error) {
	var edges []Edge
	if raw == "" {
		return edges, nil
	}
	if err := json.Unmarshal([]byte(raw), &edges); err != nil {
		return nil, fmt.Errorf("workflow: parse edges: %w", err)
	}
	return edges, nil
}

// Validate checks the structural invariants spec.md requires of a
// workflow's DAG: node ids unique, every depends_on target exists, every
// edge connects two nodes within the workflow, depends_on is a subset of
// the edge set, and the graph is acyclic.
func Validate(nodes []Node, edges []Edge) error {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("workflow: duplicate node id %q", n.ID)
		}
		byID[n.ID] = n
	}

	edgeSet := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		if _, ok := byID[e.From]; !ok {
			return fmt.Errorf("workflow: edge references unknown node %q", e.From)
		}
		if _, ok := byID[e.To]; !ok {
			return fmt.Errorf("workflow: edge references unknown node %q", e.To)
		}
		edgeSet[e.From+"->"+e.To] = struct{}{}
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("workflow: node %q depends on unknown node %q", n.ID, dep)
			}
			if _, ok := edgeSet[dep+"->"+n.ID]; !ok {
				return fmt.Errorf("workflow: node %q depends_on %q has no matching edge", n.ID, dep)
			}
		}
	}

	if cycle := findCycle(nodes); cycle != "" {
		return fmt.Errorf("workflow: cycle detected through node %q", cycle)
	}

	return nil
}

// findCycle runs a DFS over depends_on edges and returns the id of a node
// on a cycle, or "" if the graph is acyclic.
func findCycle(nodes []Node) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	byID := make(map[string]Node, len(nodes))
	color := make(map[string]int, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		color[n.ID] = white
	}

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if found := visit(dep); found != "" {
					return found
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, n := range nodes {
		if color[n.ID] == white {
			if found := visit(n.ID); found != "" {
				return found
			}
		}
	}
	return ""
}

// indegrees computes each node's indegree from depends_on.
func indegrees(nodes []Node) map[string]int {
	deg := make(map[string]int, len(nodes))
	for _, n := range nodes {
		deg[n.ID] = len(n.DependsOn)
	}
	return deg
}

// successors maps each node id to the ids of nodes that depend on it.
func successors(nodes []Node) map[string][]string {
	succ := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			succ[dep] = append(succ[dep], n.ID)
		}
	}
	return succ
}
