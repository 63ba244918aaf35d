package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/typeflow/typeflow/internal/apperrors"
	"github.com/typeflow/typeflow/internal/workflow"
)

// runFrontier drains rs's FIFO frontier, dispatching each node by kind,
// until nothing is left runnable or a node fails. It is also the resume
// point for the debug controller: calling it again on a RunState whose
// Frontier was saved mid-run continues from exactly where it stopped.
func (e *Executor) runFrontier(ctx context.Context, rs *RunState) error {
	for len(rs.Frontier) > 0 {
		nodeID := rs.Frontier[0]
		rs.Frontier = rs.Frontier[1:]

		if rs.resolved(nodeID) {
			continue
		}
		if !e.nodeReady(rs, nodeID) {
			// Not all active predecessors are resolved yet; some other
			// frontier entry will complete first and re-enqueue this one.
			continue
		}

		if err := e.runNode(ctx, rs, nodeID); err != nil {
			return err
		}
	}
	return nil
}

// nodeReady reports whether every active incoming edge's source is
// resolved (completed or skipped).
func (e *Executor) nodeReady(rs *RunState, nodeID string) bool {
	for _, edge := range rs.Definition.IncomingEdges(nodeID) {
		if !rs.edgeActive(edge.ID) {
			continue
		}
		if !rs.resolved(edge.SourceNodeID) {
			return false
		}
	}
	return true
}

// runNode executes a single node, records its NodeResult, and enqueues any
// successor whose predecessors are now all resolved.
func (e *Executor) runNode(ctx context.Context, rs *RunState, nodeID string) error {
	node, ok := rs.Definition.NodeByID(nodeID)
	if !ok {
		return fmt.Errorf("unknown node %s in plan", nodeID)
	}

	started := time.Now()
	result := &workflow.NodeResult{Status: workflow.NodeStatusRunning, StartedAt: started}
	rs.NodeResults[nodeID] = result

	output, err := e.dispatch(ctx, rs, node)

	result.DurationMs = time.Since(started).Milliseconds()
	result.CompletedAt = time.Now()

	if err != nil {
		result.Status = workflow.NodeStatusFailed
		result.Error = err.Error()
		return fmt.Errorf("node %s (%s): %w", node.Label, node.ID, err)
	}

	result.Status = workflow.NodeStatusCompleted
	result.Output = output
	rs.NodeOutputs[nodeID] = output
	rs.Completed[nodeID] = true

	for _, edge := range rs.Definition.OutgoingEdges(nodeID) {
		if !rs.edgeActive(edge.ID) {
			continue
		}
		if rs.resolved(edge.TargetNodeID) {
			continue
		}
		if e.nodeReady(rs, edge.TargetNodeID) {
			rs.Frontier = append(rs.Frontier, edge.TargetNodeID)
		}
	}
	return nil
}

// dispatch runs one node's kind-specific behavior and returns its output
// items.
func (e *Executor) dispatch(ctx context.Context, rs *RunState, node workflow.Node) ([]workflow.Item, error) {
	switch node.Kind {
	case workflow.NodeKindTrigger, workflow.NodeKindWebhook:
		return triggerItems(rs.TriggerData), nil

	case workflow.NodeKindWorkflowInput:
		return triggerItems(rs.TriggerData), nil

	case workflow.NodeKindWorkflowOutput, workflow.NodeKindWebhookResponse, workflow.NodeKindGeneric:
		return rs.inputItemsFor(node.ID), nil

	case workflow.NodeKindCode:
		return e.runCode(ctx, rs, node)

	case workflow.NodeKindUtilities:
		return e.runUtilities(ctx, rs, node)

	case workflow.NodeKindIf:
		return e.runIf(ctx, rs, node)

	case workflow.NodeKindMerge:
		groups := rs.inputGroupsFor(node.ID)
		return mergeInputs(node, groups)

	case workflow.NodeKindRemoveDuplicates:
		return removeDuplicates(node, rs.inputItemsFor(node.ID))

	case workflow.NodeKindExecuteWorkflow:
		return e.runSubWorkflow(ctx, rs, node, rs.inputItemsFor(node.ID))

	default:
		return nil, fmt.Errorf("unhandled node kind %q", node.Kind)
	}
}

func triggerItems(data json.RawMessage) []workflow.Item {
	if len(data) == 0 {
		return []workflow.Item{workflow.NewJSONItem(map[string]any{})}
	}
	var asArray []map[string]any
	if err := json.Unmarshal(data, &asArray); err == nil {
		out := make([]workflow.Item, 0, len(asArray))
		for _, m := range asArray {
			out = append(out, workflow.NewJSONItem(m))
		}
		return out
	}
	var asObject map[string]any
	if err := json.Unmarshal(data, &asObject); err == nil {
		return []workflow.Item{workflow.NewJSONItem(asObject)}
	}
	var asPrimitive any
	_ = json.Unmarshal(data, &asPrimitive)
	return []workflow.Item{workflow.NewJSONItem(map[string]any{"value": asPrimitive})}
}

func (e *Executor) runCode(ctx context.Context, rs *RunState, node workflow.Node) ([]workflow.Item, error) {
	input := rs.inputItemsFor(node.ID)
	labelVars := rs.labelVarsFor(node.ID)
	credentials, err := e.resolveCredentials(ctx, rs, node)
	if err != nil {
		return nil, err
	}
	return e.codeRunner.RunCodeNode(ctx, rs.OrganizationID, rs.WorkflowID, rs.ExecutionID, node, input, labelVars, credentials)
}

func (e *Executor) runUtilities(ctx context.Context, rs *RunState, node workflow.Node) ([]workflow.Item, error) {
	labelVars := rs.labelVarsFor(node.ID)
	credentials, err := e.resolveCredentials(ctx, rs, node)
	if err != nil {
		return nil, err
	}
	exports, err := e.codeRunner.RunUtilitiesNode(ctx, rs.OrganizationID, rs.WorkflowID, rs.ExecutionID, node, labelVars, credentials)
	if err != nil {
		return nil, err
	}
	rs.UtilityExports[node.ID] = exports
	return nil, nil
}

func (e *Executor) runIf(ctx context.Context, rs *RunState, node workflow.Node) ([]workflow.Item, error) {
	input := rs.inputItemsFor(node.ID)
	evalCtx := map[string]any{
		"items": itemsToPlain(input),
		"json":  firstItemJSON(input),
	}
	handle, err := evaluateIfNode(node, evalCtx)
	if err != nil {
		return nil, err
	}

	outgoing := rs.Definition.OutgoingEdges(node.ID)
	nonTaken := map[string]bool{}
	for _, edge := range outgoing {
		if edge.SourceHandle == handle {
			continue
		}
		nonTaken[edge.SourceHandle] = true
		rs.ActiveEdge[edge.ID] = false
	}
	skipSubtree(rs.Definition, node.ID, nonTaken, rs.Skipped)
	for skippedID := range rs.Skipped {
		if rs.NodeResults[skippedID] == nil {
			rs.NodeResults[skippedID] = &workflow.NodeResult{Status: workflow.NodeStatusSkipped, StartedAt: time.Now(), CompletedAt: time.Now()}
		}
	}

	return input, nil
}

func firstItemJSON(items []workflow.Item) map[string]any {
	if len(items) == 0 {
		return map[string]any{}
	}
	return items[0].JSON
}

func (e *Executor) resolveCredentials(ctx context.Context, rs *RunState, node workflow.Node) (map[string]any, error) {
	names := credentialReferences(node.Config)
	if len(names) == 0 {
		return nil, nil
	}
	resolver := rs.Credentials
	if resolver == nil {
		resolver = e.credentials
	}
	out := map[string]any{}
	for _, name := range names {
		handle, err := resolver.ResolveHandle(ctx, rs.OrganizationID, name)
		if err != nil {
			return nil, &apperrors.RuntimeError{NodeID: node.ID, Cause: err}
		}
		out[name] = handle
	}
	return out, nil
}
