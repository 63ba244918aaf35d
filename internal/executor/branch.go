package executor

import (
	"encoding/json"
	"fmt"

	"github.com/typeflow/typeflow/internal/executor/expression"
	"github.com/typeflow/typeflow/internal/workflow"
)

// evaluateIfNode runs "If-node" branch-activation rule: an ordered
// list of branches (each a condition list combined by and/or), plus an
// optional else. Exactly one outgoing handle becomes active.
func evaluateIfNode(node workflow.Node, evalCtx map[string]any) (handle string, err error) {
	var cfg workflow.IfConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return "", fmt.Errorf("invalid if-node config: %w", err)
	}

	evaluator := expression.NewEvaluator()

	for _, branch := range cfg.Branches {
		if len(branch.Conditions) == 0 {
			continue
		}
		ok, err := evaluateBranch(evaluator, branch, evalCtx)
		if err != nil {
			return "", err
		}
		if ok {
			return branch.Handle, nil
		}
	}

	if cfg.ElseHandle != "" {
		return cfg.ElseHandle, nil
	}
	// Legacy binary form: no branches matched, emit "false".
	return "false", nil
}

func evaluateBranch(evaluator *expression.Evaluator, branch workflow.IfBranch, evalCtx map[string]any) (bool, error) {
	combine := branch.Combine
	if combine == "" {
		combine = workflow.CombineAnd
	}

	result := combine == workflow.CombineAnd // AND starts true, OR starts false
	for _, cond := range branch.Conditions {
		left, err := evaluator.Evaluate(cond.Operand1, evalCtx)
		if err != nil {
			return false, fmt.Errorf("evaluating operand1 %q: %w", cond.Operand1, err)
		}
		var right any
		if cond.Operand2 != "" {
			right, err = evaluator.Evaluate(cond.Operand2, evalCtx)
			if err != nil {
				// Operand2 may be a literal, not an expression; fall back to raw string.
				right = cond.Operand2
			}
		}
		matched, err := evaluator.EvaluateBooleanExpression(left, cond.Operator, right)
		if err != nil {
			return false, err
		}
		switch combine {
		case workflow.CombineOr:
			result = result || matched
		default:
			result = result && matched
		}
	}
	return result, nil
}

// skipSubtree marks every node reachable only through the inactive branch
// as skipped, generalized from a fixed true/false pair to an arbitrary set
// of non-taken handles. A node is skipped only if it has no other,
// non-skipped parent (so a join downstream of two branches of the SAME
// if-node is skipped, but a merge fed by a second, independent branch is
// not).
func skipSubtree(def *workflow.Definition, fromNodeID string, nonTakenHandles map[string]bool, skipped map[string]bool) {
	var queue []string
	for _, e := range def.OutgoingEdges(fromNodeID) {
		if nonTakenHandles[e.SourceHandle] {
			queue = append(queue, e.TargetNodeID)
		}
	}

	visited := map[string]bool{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		skipped[cur] = true

		for _, out := range def.OutgoingEdges(cur) {
			hasOtherParent := false
			for _, in := range def.IncomingEdges(out.TargetNodeID) {
				if in.SourceNodeID != cur && !skipped[in.SourceNodeID] {
					hasOtherParent = true
					break
				}
			}
			if !hasOtherParent {
				queue = append(queue, out.TargetNodeID)
			}
		}
	}
}
