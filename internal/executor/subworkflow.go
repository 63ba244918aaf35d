package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/typeflow/typeflow/internal/apperrors"
	"github.com/typeflow/typeflow/internal/workflow"
)

// MaxSubWorkflowDepth bounds executeWorkflow call-stack recursion, guarding
// against a workflow that (directly or transitively) calls itself.
const MaxSubWorkflowDepth = 16

// runSubWorkflow dispatches an executeWorkflow node: loads the referenced
// workflow, runs it from its workflowInput node, and folds its
// workflowOutput items back as this node's output. "once" mode runs the
// sub-workflow a single time against the concatenated input; "foreach"
// mode runs it once per input item, concatenating the outputs.
func (e *Executor) runSubWorkflow(ctx context.Context, rs *RunState, node workflow.Node, input []workflow.Item) ([]workflow.Item, error) {
	var cfg workflow.ExecuteWorkflowConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid executeWorkflow config: %w", err)
	}

	if rs.Depth+1 > MaxSubWorkflowDepth {
		return nil, fmt.Errorf("sub-workflow call stack exceeds maximum depth %d", MaxSubWorkflowDepth)
	}
	for _, frame := range rs.CallStack {
		if frame.WorkflowID == cfg.WorkflowID {
			return nil, fmt.Errorf("circular sub-workflow call to %s", cfg.WorkflowID)
		}
	}

	frame := workflow.CallFrame{
		CallerExecutionID: rs.ExecutionID,
		CallerNodeID:      node.ID,
		WorkflowID:        cfg.WorkflowID,
	}
	callStack := append(append([]workflow.CallFrame{}, rs.CallStack...), frame)

	mode := cfg.Mode
	if mode == "" {
		mode = workflow.SubWorkflowOnce
	}

	switch mode {
	case workflow.SubWorkflowForeach:
		var out []workflow.Item
		if len(input) == 0 {
			input = []workflow.Item{workflow.NewJSONItem(map[string]any{})}
		}
		for _, item := range input {
			triggerData, _ := json.Marshal(item.JSON)
			result, err := e.runSubWorkflowOnce(ctx, cfg.WorkflowID, triggerData, rs.Depth+1, callStack, rs.Credentials)
			if err != nil {
				return nil, err
			}
			out = append(out, result...)
		}
		return out, nil

	default: // once
		plain := itemsToPlain(input)
		triggerData, _ := json.Marshal(map[string]any{"items": plain})
		return e.runSubWorkflowOnce(ctx, cfg.WorkflowID, triggerData, rs.Depth+1, callStack, rs.Credentials)
	}
}

// runSubWorkflowOnce runs one sub-workflow invocation, sharing the
// caller's scoped credential resolver so handles opened inside the
// sub-workflow are released with the top-level execution, not per call.
func (e *Executor) runSubWorkflowOnce(ctx context.Context, workflowID string, triggerData json.RawMessage, depth int, callStack []workflow.CallFrame, credentials CredentialResolver) ([]workflow.Item, error) {
	wf, err := e.repo.GetWorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("workflow", workflowID)
	}
	def, err := wf.ParsedDefinition()
	if err != nil {
		return nil, fmt.Errorf("parsing sub-workflow definition: %w", err)
	}

	entry, err := findEntryNode(def, TriggerSubflow)
	if err != nil {
		return nil, err
	}

	sub := NewRunState(def, entry.ID, triggerData, depth, callStack)
	sub.ExecutionID = uuid.New().String()
	sub.OrganizationID = wf.OrganizationID
	sub.WorkflowID = wf.ID
	sub.Credentials = credentials
	if err := e.runFrontier(ctx, sub); err != nil {
		return nil, err
	}

	var out []workflow.Item
	for _, n := range def.Nodes {
		if n.Kind == workflow.NodeKindWorkflowOutput {
			out = append(out, sub.NodeOutputs[n.ID]...)
		}
	}
	return out, nil
}
