package executor

import (
	"encoding/json"

	"github.com/typeflow/typeflow/internal/workflow"
)

// RunState is the durable-shaped, in-memory state of one plan execution.
// Its shape mirrors workflow.DebugSession exactly so the debug controller
// can persist/reconstruct it between RPC calls without replaying work
// ("Durable debug state").
type RunState struct {
	ExecutionID string
	OrganizationID string
	WorkflowID string
	Definition *workflow.Definition
	Frontier []string
	Completed map[string]bool
	Skipped map[string]bool
	NodeResults map[string]*workflow.NodeResult
	NodeOutputs map[string][]workflow.Item
	ActiveEdge map[string]bool // connection ID -> active, defaults true if absent
	UtilityExports map[string]map[string]any
	CallStack []workflow.CallFrame
	Depth int
	TriggerData json.RawMessage

	// Credentials is the resolver scoped to this top-level execution (and
	// any sub-workflow calls it makes): one resolver per Run call, so
	// handles it opens are pooled and released together when the
	// execution ends, instead of living for the executor's
	// lifetime. Set by Executor.Run; defaults to the executor's resolver
	// when nil.
	Credentials CredentialResolver
}

// NewRunState creates a fresh state for a plan rooted at entry.
func NewRunState(def *workflow.Definition, entry string, triggerData json.RawMessage, depth int, callStack []workflow.CallFrame) *RunState {
	return &RunState{
		Definition: def,
		Frontier: []string{entry},
		Completed: map[string]bool{},
		Skipped: map[string]bool{},
		NodeResults: map[string]*workflow.NodeResult{},
		NodeOutputs: map[string][]workflow.Item{},
		ActiveEdge: map[string]bool{},
		UtilityExports: map[string]map[string]any{},
		CallStack: callStack,
		Depth: depth,
		TriggerData: triggerData,
	}
}

// edgeActive reports whether a connection is active. Connections default
// to active unless a branching node (if/merge selection) explicitly marked
// them inactive.
func (s *RunState) edgeActive(connID string) bool {
	active, set := s.ActiveEdge[connID]
	if !set {
		return true
	}
	return active
}

// resolved reports whether a predecessor has been resolved (either it ran
// to completion, or it is provably skipped/unreachable — Open Question:
// "missing inputs as empty sequences").
func (s *RunState) resolved(nodeID string) bool {
	return s.Completed[nodeID] || s.Skipped[nodeID]
}

// inputItemsFor assembles a node's input "Input assembly":
// concatenation of active incoming edges in deterministic order
// (source executionOrder, then sourceNodeId).
func (s *RunState) inputItemsFor(nodeID string) []workflow.Item {
	edges := s.Definition.IncomingEdges(nodeID)
	type src struct {
		order int
		nodeID string
		items []workflow.Item
	}
	var sources []src
	for _, e := range edges {
		if !s.edgeActive(e.ID) {
			continue
		}
		if s.Skipped[e.SourceNodeID] {
			continue // contributes an empty sequence
		}
		n, _ := s.Definition.NodeByID(e.SourceNodeID)
		sources = append(sources, src{order: n.ExecutionOrder, nodeID: e.SourceNodeID, items: s.NodeOutputs[e.SourceNodeID]})
	}
	// deterministic order: by source executionOrder, then sourceNodeId
	for i := 1; i < len(sources); i++ {
		for j := i; j > 0 && (sources[j].order < sources[j-1].order ||
			(sources[j].order == sources[j-1].order && sources[j].nodeID < sources[j-1].nodeID)); j-- {
			sources[j], sources[j-1] = sources[j-1], sources[j]
		}
	}
	var out []workflow.Item
	for _, s := range sources {
		out = append(out, s.items...)
	}
	return out
}

// inputGroupsFor is like inputItemsFor but keeps each source's items as its
// own group, in deterministic source order — the shape merge-node modes
// need to tell "which side" an item came from.
func (s *RunState) inputGroupsFor(nodeID string) [][]workflow.Item {
	edges := s.Definition.IncomingEdges(nodeID)
	type src struct {
		order int
		nodeID string
		items []workflow.Item
	}
	var sources []src
	for _, e := range edges {
		if !s.edgeActive(e.ID) {
			continue
		}
		if s.Skipped[e.SourceNodeID] {
			continue
		}
		n, _ := s.Definition.NodeByID(e.SourceNodeID)
		sources = append(sources, src{order: n.ExecutionOrder, nodeID: e.SourceNodeID, items: s.NodeOutputs[e.SourceNodeID]})
	}
	for i := 1; i < len(sources); i++ {
		for j := i; j > 0 && (sources[j].order < sources[j-1].order ||
			(sources[j].order == sources[j-1].order && sources[j].nodeID < sources[j-1].nodeID)); j-- {
			sources[j], sources[j-1] = sources[j-1], sources[j]
		}
	}
	groups := make([][]workflow.Item, 0, len(sources))
	for _, s := range sources {
		groups = append(groups, s.items)
	}
	return groups
}

// labelVarsFor builds the label-injection map for a code/utilities
// node: one entry per sanitized label of a transitive predecessor (bound to
// that predecessor's item outputs), plus one entry per utilities node in
// the workflow (bound to its captured module exports).
func (s *RunState) labelVarsFor(nodeID string) map[string]any {
	vars := map[string]any{}
	for _, predID := range TransitivePredecessors(s.Definition, nodeID) {
		pred, ok := s.Definition.NodeByID(predID)
		if !ok || pred.Label == "" {
			continue
		}
		vars[SanitizeLabel(pred.Label)] = itemsToPlain(s.NodeOutputs[predID])
	}
	for _, n := range s.Definition.Nodes {
		if n.Kind != workflow.NodeKindUtilities || n.Label == "" {
			continue
		}
		if exports, ok := s.UtilityExports[n.ID]; ok {
			vars[SanitizeLabel(n.Label)] = exports
		}
	}
	return vars
}

func itemsToPlain(items []workflow.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, it.JSON)
	}
	return out
}
