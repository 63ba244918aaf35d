package workflow

import "encoding/json"

// CombineMode joins multiple branch conditions together.
type CombineMode string

const (
	CombineAnd CombineMode = "and"
	CombineOr  CombineMode = "or"
)

// IfCondition is one leaf boolean test within an If-node branch.
type IfCondition struct {
	Operator string `json:"operator"` // equals, not_equals, gt, lt, gte, lte, contains, starts_with, ends_with
	Operand1 string `json:"operand1"` // expression, e.g. "$json.n"
	Operand2 string `json:"operand2"`
}

// IfBranch is one ordered branch of an If-node: a list of conditions
// combined by CombineMode, routed to a named output handle on match.
type IfBranch struct {
	Handle     string        `json:"handle"`
	Combine    CombineMode   `json:"combine"`
	Conditions []IfCondition `json:"conditions"`
}

// IfConfig is the config of a kind-"if" node: an ordered branch list plus
// an optional else handle. The legacy binary form has exactly one branch
// named "true" and emits on "true"/"false".
type IfConfig struct {
	Branches   []IfBranch `json:"branches"`
	ElseHandle string     `json:"elseHandle,omitempty"`
}

// MergeMode is the combination strategy for a kind-"merge" node.
type MergeMode string

const (
	MergeAppend           MergeMode = "append"
	MergeByPosition        MergeMode = "combine/mergeByPosition"
	MergeByKey             MergeMode = "combine/mergeByKey"
	MergeMultiplex         MergeMode = "multiplex"
	MergeChooseBranch      MergeMode = "chooseBranch"
)

// MergeConfig is the config of a kind-"merge" node.
type MergeConfig struct {
	Mode    MergeMode `json:"mode"`
	KeyPath string    `json:"keyPath,omitempty"` // dot-path for mergeByKey
}

// RemoveDuplicatesConfig is the config of a kind-"removeDuplicates" node.
type RemoveDuplicatesConfig struct {
	Field string `json:"field,omitempty"` // dot-path; empty = whole-object equality
}

// SubWorkflowMode is the invocation mode of an executeWorkflow node.
type SubWorkflowMode string

const (
	SubWorkflowOnce    SubWorkflowMode = "once"
	SubWorkflowForeach SubWorkflowMode = "foreach"
)

// ExecuteWorkflowConfig is the config of a kind-"executeWorkflow" node.
type ExecuteWorkflowConfig struct {
	WorkflowID string          `json:"workflowId"`
	Mode       SubWorkflowMode `json:"mode"`
}

// CodeConfig is the config of kind-"code" and kind-"utilities" nodes.
type CodeConfig struct {
	Code             string          `json:"code"`
	TypeDeclarations string          `json:"typeDeclarations,omitempty"`
	TimeoutMs        int             `json:"timeoutMs,omitempty"`
	Imports          json.RawMessage `json:"imports,omitempty"`
}
