package workflow

import (
	"fmt"
	"strings"
)

// ValidateLabels enforces the save-time uniqueness rule from: node
// labels must be unique case-insensitively.
func ValidateLabels(def *Definition) error {
	seen := map[string]string{}
	for _, n := range def.Nodes {
		if n.Label == "" {
			continue
		}
		key := strings.ToLower(n.Label)
		if other, ok := seen[key]; ok && other != n.ID {
			return fmt.Errorf("duplicate node label %q (nodes %s and %s)", n.Label, other, n.ID)
		}
		seen[key] = n.ID
	}
	return nil
}

// ValidateConnections enforces save-time rule that connections
// reference existing nodes in the same workflow.
func ValidateConnections(def *Definition) error {
	ids := map[string]bool{}
	for _, n := range def.Nodes {
		ids[n.ID] = true
	}
	for _, c := range def.Connections {
		if !ids[c.SourceNodeID] {
			return fmt.Errorf("connection %s references unknown source node %s", c.ID, c.SourceNodeID)
		}
		if !ids[c.TargetNodeID] {
			return fmt.Errorf("connection %s references unknown target node %s", c.ID, c.TargetNodeID)
		}
	}
	return nil
}

// ValidateAcyclic enforces save-time rule that there must be zero
// cycles among non-executeWorkflow edges (sub-workflow calls are excepted
// Workflow invariant).
func ValidateAcyclic(def *Definition) error {
	kindByID := map[string]NodeKind{}
	for _, n := range def.Nodes {
		kindByID[n.ID] = n.Kind
	}

	adj := map[string][]string{}
	inDegree := map[string]int{}
	for _, n := range def.Nodes {
		inDegree[n.ID] = 0
	}
	for _, c := range def.Connections {
		if kindByID[c.SourceNodeID] == NodeKindExecuteWorkflow {
			continue
		}
		adj[c.SourceNodeID] = append(adj[c.SourceNodeID], c.TargetNodeID)
		inDegree[c.TargetNodeID]++
	}

	var queue []string
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[cur] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(def.Nodes) {
		return fmt.Errorf("workflow graph contains a cycle")
	}
	return nil
}

// Validate runs all three save-time graph validators in order.
func (d *Definition) Validate() error {
	if err := ValidateLabels(d); err != nil {
		return err
	}
	if err := ValidateConnections(d); err != nil {
		return err
	}
	return ValidateAcyclic(d)
}
