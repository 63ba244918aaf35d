package workflow

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// jsonColumn marshals any of this package's map/slice-typed columns to and
// from a JSONB column, the same Valuer/Scanner pattern credential.JSONMap
// uses.
func scanJSON(value any, dest any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSON column")
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// NodeKind is the closed set of node kinds the graph executor understands.
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindWebhook NodeKind = "webhook"
	NodeKindCode NodeKind = "code"
	NodeKindUtilities NodeKind = "utilities"
	NodeKindIf NodeKind = "if"
	NodeKindMerge NodeKind = "merge"
	NodeKindExecuteWorkflow NodeKind = "executeWorkflow"
	NodeKindWorkflowInput NodeKind = "workflowInput"
	NodeKindWorkflowOutput NodeKind = "workflowOutput"
	NodeKindWebhookResponse NodeKind = "webhookResponse"
	NodeKindRemoveDuplicates NodeKind = "removeDuplicates"
	NodeKindGeneric NodeKind = "generic"
)

// Node is a processing step in a workflow graph.
type Node struct {
	ID string `db:"id" json:"id"`
	Kind NodeKind `db:"kind" json:"kind"`
	Label string `db:"label" json:"label"`
	Position json.RawMessage `db:"position" json:"position,omitempty"`
	Config json.RawMessage `db:"config" json:"config,omitempty"`
	ExecutionOrder int `db:"execution_order" json:"executionOrder"`
}

// Connection is a directed edge between two node handles.
type Connection struct {
	ID string `db:"id" json:"id"`
	SourceNodeID string `db:"source_node_id" json:"sourceNodeId"`
	SourceHandle string `db:"source_handle" json:"sourceHandle,omitempty"`
	TargetNodeID string `db:"target_node_id" json:"targetNodeId"`
	TargetHandle string `db:"target_handle" json:"targetHandle,omitempty"`
}

// Item is the unit of data flowing between nodes.
type Item struct {
	JSON map[string]any `json:"json"`
	Binary map[string][]byte `json:"binary,omitempty"`
	PairedItem *PairedItem `json:"pairedItem,omitempty"`
}

// PairedItem back-references the source item an item was derived from.
type PairedItem struct {
	Item int `json:"item"`
}

// NewJSONItem wraps a plain map as a single item.
func NewJSONItem(v map[string]any) Item {
	if v == nil {
		v = map[string]any{}
	}
	return Item{JSON: v}
}

// Definition is the node/connection graph of a workflow, independent of
// its metadata.
type Definition struct {
	Nodes []Node `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// NodeByID returns the node with the given id, or false.
func (d *Definition) NodeByID(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// OutgoingEdges returns connections whose source is nodeID.
func (d *Definition) OutgoingEdges(nodeID string) []Connection {
	var out []Connection
	for _, c := range d.Connections {
		if c.SourceNodeID == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// IncomingEdges returns connections whose target is nodeID.
func (d *Definition) IncomingEdges(nodeID string) []Connection {
	var in []Connection
	for _, c := range d.Connections {
		if c.TargetNodeID == nodeID {
			in = append(in, c)
		}
	}
	return in
}

// Workflow is a named, versioned node/connection graph owned by an
// organization.
type Workflow struct {
	ID string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organizationId"`
	Name string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Version int `db:"version" json:"version"`
	Active bool `db:"active" json:"active"`
	Metadata json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Definition json.RawMessage `db:"definition" json:"definition"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ParsedDefinition unmarshals the workflow's stored definition.
func (w *Workflow) ParsedDefinition() (*Definition, error) {
	var def Definition
	if len(w.Definition) == 0 {
		return &Definition{}, nil
	}
	if err := json.Unmarshal(w.Definition, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// WorkflowMetadata holds author-provided type declarations plus the
// persisted debug breakpoint set (toggleBreakpoint).
type WorkflowMetadata struct {
	TypeDeclarations string `json:"typeDeclarations,omitempty"`
	Breakpoints []string `json:"breakpoints,omitempty"`
}

// ExecutionStatus is the lifecycle state of an Execution.
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// NodeStatus is the lifecycle state of a single node within an execution.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed NodeStatus = "failed"
	NodeStatusSkipped NodeStatus = "skipped"
)

// NodeResult is the recorded outcome of running one node once.
type NodeResult struct {
	Status NodeStatus `json:"status"`
	Output []Item `json:"output,omitempty"`
	Error string `json:"error,omitempty"`
	DurationMs int64 `json:"durationMs"`
	StartedAt time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// NodeResultMap is a JSONB-persisted map[nodeId]*NodeResult.
type NodeResultMap map[string]*NodeResult

func (m NodeResultMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *NodeResultMap) Scan(value any) error {
	*m = NodeResultMap{}
	return scanJSON(value, m)
}

// NodeOutputMap is a JSONB-persisted map[nodeId][]Item.
type NodeOutputMap map[string][]Item

func (m NodeOutputMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *NodeOutputMap) Scan(value any) error {
	*m = NodeOutputMap{}
	return scanJSON(value, m)
}

// StringList is a JSONB-persisted []string, used for breakpoint sets and
// frontier node-id lists.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value any) error {
	*l = StringList{}
	return scanJSON(value, l)
}

// CallStackList is a JSONB-persisted sub-workflow call stack.
type CallStackList []CallFrame

func (l CallStackList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *CallStackList) Scan(value any) error {
	*l = CallStackList{}
	return scanJSON(value, l)
}

// Execution is one run of a workflow.
type Execution struct {
	ID string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organizationId"`
	WorkflowID string `db:"workflow_id" json:"workflowId"`
	WorkflowVersion int `db:"workflow_version" json:"workflowVersion"`
	Status ExecutionStatus `db:"status" json:"status"`
	TriggerType string `db:"trigger_type" json:"triggerType"`
	TriggerData json.RawMessage `db:"trigger_data" json:"triggerData,omitempty"`
	NodeResults NodeResultMap `db:"node_results" json:"nodeResults"`
	Result json.RawMessage `db:"result" json:"result,omitempty"`
	Error string `db:"error" json:"error,omitempty"`
	ParentExecution *string `db:"parent_execution_id" json:"parentExecutionId,omitempty"`
	StartedAt *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Duration returns the execution's wall-clock duration, if finished.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}

// DebugSessionStatus is the lifecycle state of a DebugSession.
type DebugSessionStatus string

const (
	DebugSessionActive DebugSessionStatus = "active"
	DebugSessionPaused DebugSessionStatus = "paused"
	DebugSessionCompleted DebugSessionStatus = "completed"
	DebugSessionTerminated DebugSessionStatus = "terminated"
)

// CallFrame is one entry of a debug session's sub-workflow call stack.
type CallFrame struct {
	CallerExecutionID string `json:"callerExecutionId"`
	CallerNodeID string `json:"callerNodeId"`
	WorkflowID string `json:"workflowId"`
}

// DebugSession is the persisted state of one step-wise debug run.
type DebugSession struct {
	ID string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organizationId"`
	WorkflowID string `db:"workflow_id" json:"workflowId"`
	Status DebugSessionStatus `db:"status" json:"status"`
	Breakpoints StringList `db:"breakpoints" json:"breakpoints"`
	CurrentNodeID *string `db:"current_node_id" json:"currentNodeId,omitempty"`
	NextNodeIDs StringList `db:"next_node_ids" json:"nextNodeIds"`
	NodeResults NodeResultMap `db:"node_results" json:"nodeResults"`
	NodeOutputs NodeOutputMap `db:"node_outputs" json:"nodeOutputs"`
	CallStack CallStackList `db:"call_stack" json:"callStack,omitempty"`
	TriggerData json.RawMessage `db:"trigger_data" json:"triggerData,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Package is a dependency installed into an organization's module-resolution
// root (): a named, versioned CommonJS source a code or utilities
// node can pull in via require("<name>") instead of inlining it.
type Package struct {
	ID string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organizationId"`
	Name string `db:"name" json:"name"`
	Version string `db:"version" json:"version"`
	Source string `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
