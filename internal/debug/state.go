// Package debug implements the debug controller: step-wise
// execution over a workflow plan, with state persisted durably between
// RPC calls so a client can drive one session across many requests.
package debug

import (
	"github.com/google/uuid"

	"github.com/typeflow/typeflow/internal/executor"
	"github.com/typeflow/typeflow/internal/workflow"
)

// toRunState reconstructs the in-memory run state a session left off at.
// Completed and Skipped are derived from nodeResults rather than
// persisted separately, since a node's recorded status already implies
// which bucket it belongs to. ActiveEdge and utility-node exports are not
// part of the persisted DebugSession schema and so are not restored; branch
// skip state survives regardless because skipSubtree records every
// skipped descendant directly in nodeResults; see DESIGN.md for the
// resulting limitation around re-using a utilities node's exports after a
// session has been paused and resumed.
func toRunState(def *workflow.Definition, session *workflow.DebugSession) *executor.RunState {
	rs := executor.NewRunState(def, "", session.TriggerData, 0, []workflow.CallFrame(session.CallStack))
	rs.WorkflowID = session.WorkflowID
	rs.OrganizationID = session.OrganizationID
	rs.ExecutionID = session.ID
	rs.Frontier = append([]string{}, session.NextNodeIDs...)

	for id, result := range session.NodeResults {
		rs.NodeResults[id] = result
		switch result.Status {
		case workflow.NodeStatusCompleted:
			rs.Completed[id] = true
		case workflow.NodeStatusSkipped:
			rs.Skipped[id] = true
		}
	}
	for id, items := range session.NodeOutputs {
		rs.NodeOutputs[id] = items
	}
	return rs
}

// applyRunState folds a stepped RunState's results back into the session
// row, leaving status/currentNodeId to the caller (they depend on what
// kind of step just ran, not just the resulting state).
func applyRunState(session *workflow.DebugSession, rs *executor.RunState) {
	session.NextNodeIDs = workflow.StringList(append([]string{}, rs.Frontier...))
	session.NodeResults = workflow.NodeResultMap(rs.NodeResults)
	session.NodeOutputs = workflow.NodeOutputMap(rs.NodeOutputs)
	session.CallStack = workflow.CallStackList(rs.CallStack)
}

// pause marks a session paused at the front of its own frontier:
// currentNodeId is the node that will run next, and nextNodeIds is the
// exact frontier continue/stepOver will resume from.
func pause(session *workflow.DebugSession) {
	if len(session.NextNodeIDs) == 0 {
		session.Status = workflow.DebugSessionCompleted
		session.CurrentNodeID = nil
		return
	}
	session.Status = workflow.DebugSessionPaused
	current := session.NextNodeIDs[0]
	session.CurrentNodeID = &current
}

// fail transitions a session to terminated after a node failure, which is
// already recorded in nodeResults by the executor.
func fail(session *workflow.DebugSession) {
	session.Status = workflow.DebugSessionTerminated
	session.CurrentNodeID = nil
}

func newSessionID() string { return uuid.New().String() }
