package executor

import (
	"context"
	"fmt"

	"github.com/typeflow/typeflow/internal/workflow"
)

// EntryNodeForDebug resolves a workflow's debug-mode entry node: the same
// rule Run uses for any other trigger kind, applied to an already-loaded
// workflow so the debug controller keeps its own org-scoped repository
// access (create).
func (e *Executor) EntryNodeForDebug(wf *workflow.Workflow) (*workflow.Definition, workflow.Node, error) {
	def, err := wf.ParsedDefinition()
	if err != nil {
		return nil, workflow.Node{}, fmt.Errorf("parsing workflow definition: %w", err)
	}
	entry, err := findEntryNode(def, TriggerDebug)
	if err != nil {
		return nil, workflow.Node{}, err
	}
	return def, entry, nil
}

// ScopeCredentials opens a credential resolver scoped to one debug
// operation, mirroring Run's per-execution scoping: handles opened
// while stepping are released when the operation returns instead of
// living for the executor's lifetime, since a debug session's RunState
// itself is rebuilt fresh on every RPC call rather than held in memory.
func (e *Executor) ScopeCredentials() (CredentialResolver, func()) {
	if scoper, ok := e.credentials.(ScopedCredentialResolver); ok {
		return scoper.Scope()
	}
	return e.credentials, func() {}
}

// NextReadyNode pops frontier entries until it finds one whose active
// predecessors are all resolved, without executing it — the building
// block single-step operations (stepOver, continue) need to see a
// node before deciding whether to run it. A not-yet-ready entry is
// dropped rather than re-enqueued, matching runFrontier: it is re-added
// once whichever sibling completion makes it ready.
func (e *Executor) NextReadyNode(rs *RunState) (nodeID string, ok bool) {
	for len(rs.Frontier) > 0 {
		id := rs.Frontier[0]
		rs.Frontier = rs.Frontier[1:]
		if rs.resolved(id) {
			continue
		}
		if !e.nodeReady(rs, id) {
			continue
		}
		return id, true
	}
	return "", false
}

// RunNode executes exactly one node and folds its result into rs. Exported
// for the debug controller's single-step operations.
func (e *Executor) RunNode(ctx context.Context, rs *RunState, nodeID string) error {
	return e.runNode(ctx, rs, nodeID)
}
