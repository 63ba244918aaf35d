package executor

import (
	"fmt"
	"regexp"

	"github.com/typeflow/typeflow/internal/workflow"
)

var identifierSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SanitizeLabel turns a node label into a valid identifier per:
// non-identifier chars become '_', and a leading digit gets a '_' prefix.
func SanitizeLabel(label string) string {
	s := identifierSanitizer.ReplaceAllString(label, "_")
	if s == "" {
		return "_"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

// TriggerKind identifies which entry node kind an invocation targets.
type TriggerKind string

const (
	TriggerManual TriggerKind = "manual"
	TriggerWebhook TriggerKind = "webhook"
	TriggerSchedule TriggerKind = "schedule"
	TriggerSubflow TriggerKind = "subflow"
	TriggerDebug TriggerKind = "debug"
)

// findEntryNode resolves "entry node": the trigger node matching the
// invocation kind. executeWorkflow invocations target the workflowInput
// node instead of a trigger node.
func findEntryNode(def *workflow.Definition, kind TriggerKind) (workflow.Node, error) {
	if kind == TriggerSubflow {
		for _, n := range def.Nodes {
			if n.Kind == workflow.NodeKindWorkflowInput {
				return n, nil
			}
		}
		return workflow.Node{}, fmt.Errorf("workflow has no workflowInput node")
	}

	var candidates []workflow.Node
	for _, n := range def.Nodes {
		if n.Kind == workflow.NodeKindTrigger || n.Kind == workflow.NodeKindWebhook {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return workflow.Node{}, fmt.Errorf("workflow has no trigger node")
	}
	// If multiple qualify, the one whose handle/kind matches the invocation
	// wins; webhook invocations prefer kind "webhook", everything else
	// (manual, schedule, debug) prefers kind "trigger".
	var want workflow.NodeKind = workflow.NodeKindTrigger
	if kind == TriggerWebhook {
		want = workflow.NodeKindWebhook
	}
	for _, n := range candidates {
		if n.Kind == want {
			return n, nil
		}
	}
	return candidates[0], nil
}

// ancestorsOf computes the set of ancestor node ids of target via reverse
// BFS over connections, for the runUntil(nodeId) plan mode.
func ancestorsOf(def *workflow.Definition, target string) map[string]bool {
	visited := map[string]bool{target: true}
	queue := []string{target}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range def.IncomingEdges(cur) {
			if !visited[edge.SourceNodeID] {
				visited[edge.SourceNodeID] = true
				queue = append(queue, edge.SourceNodeID)
			}
		}
	}
	return visited
}

// InPlanFilter restricts a definition to the given node id set, keeping
// only connections whose endpoints are both in the set.
func inPlanFilter(def *workflow.Definition, allowed map[string]bool) *workflow.Definition {
	if allowed == nil {
		return def
	}
	out := &workflow.Definition{}
	for _, n := range def.Nodes {
		if allowed[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, c := range def.Connections {
		if allowed[c.SourceNodeID] && allowed[c.TargetNodeID] {
			out.Connections = append(out.Connections, c)
		}
	}
	return out
}

// TranscendentPredecessors returns the set of node ids that are transitive
// predecessors of nodeID (used for label injection: "immediate or
// transitive predecessor").
func TransitivePredecessors(def *workflow.Definition, nodeID string) []string {
	visited := map[string]bool{}
	queue := []string{nodeID}
	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range def.IncomingEdges(cur) {
			if !visited[edge.SourceNodeID] {
				visited[edge.SourceNodeID] = true
				order = append(order, edge.SourceNodeID)
				queue = append(queue, edge.SourceNodeID)
			}
		}
	}
	return order
}

// Save-time graph validation (: unique labels, resolvable connection
// endpoints, acyclic non-executeWorkflow edges) lives on workflow.Definition
// itself (see workflow.Definition.Validate) so the workflow package's
// repository/service layer can enforce it without depending on executor.
