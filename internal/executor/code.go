package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/typeflow/typeflow/internal/apperrors"
	"github.com/typeflow/typeflow/internal/executor/javascript"
	"github.com/typeflow/typeflow/internal/workflow"
)

// DefaultCodeTimeout is the wall-clock budget for a code/utilities node when
// its config doesn't override it.
const DefaultCodeTimeout = 5 * time.Second

// CodeRunner executes kind-"code" and kind-"utilities" nodes in the
// sandboxed JavaScript engine, once per node invocation over the node's
// full ordered item list.
type CodeRunner struct {
	engine *javascript.Engine
	packages javascript.PackageSource
}

// NewCodeRunner wraps a JavaScript engine for node execution. packages may
// be nil, in which case require() is left undefined inside the sandbox.
func NewCodeRunner(engine *javascript.Engine, packages javascript.PackageSource) *CodeRunner {
	return &CodeRunner{engine: engine, packages: packages}
}

// itemsToInput converts a node's item list into the shape $input expects:
// each element a plain {"json": ...} map, independent of workflow.Item's
// own (possibly richer) internal representation.
func itemsToInput(items []workflow.Item) []map[string]any {
	out := make([]map[string]any, len(items))
	for i, item := range items {
		out[i] = map[string]any{"json": item.JSON}
	}
	return out
}

// RunCodeNode executes a code node's script exactly once against its full
// input item list and normalizes the returned value into items. $input
// (and its alias $inputAll) is the node's entire ordered item list; $json
// (and its alias $inputItem) is the first item's json, or {} when there
// are no items. credentials maps credential name to its resolved handle
// (already opened by the caller); labelVars maps each sanitized
// predecessor label to its output.
func (r *CodeRunner) RunCodeNode(ctx context.Context, organizationID, workflowID, executionID string, node workflow.Node, items []workflow.Item, labelVars map[string]any, credentials map[string]any) ([]workflow.Item, error) {
	var cfg workflow.CodeConfig
	if len(node.Config) > 0 {
		if err := json.Unmarshal(node.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid code-node config: %w", err)
		}
	}

	if err := StaticCheck(node.ID, cfg.Code, cfg.TypeDeclarations, string(cfg.Imports)); err != nil {
		return nil, err
	}

	timeout := DefaultCodeTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	// A code node with no input items still runs once against an empty
	// item, matching the passthrough-on-no-predecessor behavior for
	// trigger-adjacent code nodes.
	runItems := items
	if len(runItems) == 0 {
		runItems = []workflow.Item{workflow.NewJSONItem(map[string]any{})}
	}

	result, err := r.engine.Execute(ctx, &javascript.ExecuteConfig{
		Script: cfg.Code,
		Timeout: timeout,
		ExecutionID: executionID,
		TenantID: organizationID,
		WorkflowID: workflowID,
		NodeID: node.ID,
		Labels: labelVars,
		Credentials: credentials,
		Items: itemsToInput(runItems),
		Packages: r.packages,
	})
	if err != nil {
		if errors.Is(err, javascript.ErrTimeout) || errors.Is(err, javascript.ErrInterrupted) {
			return nil, &apperrors.TimeoutError{NodeID: node.ID, Timeout: timeout.String()}
		}
		return nil, &apperrors.RuntimeError{NodeID: node.ID, Cause: err}
	}
	return normalizeOutput(result.Result, runItems), nil
}

// RunUtilitiesNode executes a utilities node's script exactly once per
// execution, compiled once and memoized, and captures its return value as
// the module's exports, made available to downstream code nodes as
// $<utilityLabel>.<exportName>. Utilities nodes carry no item edges, so
// $input is always empty.
func (r *CodeRunner) RunUtilitiesNode(ctx context.Context, organizationID, workflowID, executionID string, node workflow.Node, labelVars map[string]any, credentials map[string]any) (map[string]any, error) {
	var cfg workflow.CodeConfig
	if len(node.Config) > 0 {
		if err := json.Unmarshal(node.Config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid utilities-node config: %w", err)
		}
	}

	if err := StaticCheck(node.ID, cfg.Code, cfg.TypeDeclarations, string(cfg.Imports)); err != nil {
		return nil, err
	}

	timeout := DefaultCodeTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	result, err := r.engine.Execute(ctx, &javascript.ExecuteConfig{
		Script: cfg.Code,
		Timeout: timeout,
		ExecutionID: executionID,
		TenantID: organizationID,
		WorkflowID: workflowID,
		NodeID: node.ID,
		Labels: labelVars,
		Credentials: credentials,
		Packages: r.packages,
	})
	if err != nil {
		if errors.Is(err, javascript.ErrTimeout) || errors.Is(err, javascript.ErrInterrupted) {
			return nil, &apperrors.TimeoutError{NodeID: node.ID, Timeout: timeout.String()}
		}
		return nil, &apperrors.RuntimeError{NodeID: node.ID, Cause: err}
	}

	exports, ok := result.Result.(map[string]any)
	if !ok {
		exports = map[string]any{}
	}
	return exports, nil
}
