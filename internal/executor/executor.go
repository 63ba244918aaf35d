// Package executor implements the graph executor: it walks a
// workflow's node/connection graph from a trigger using a FIFO frontier
// scheduler, dispatches each node by kind, and folds results back into the
// run state until the frontier drains or a node fails.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/typeflow/typeflow/internal/executor/javascript"
	"github.com/typeflow/typeflow/internal/workflow"
)

// WorkflowRepository is the slice of workflow.Repository the executor
// needs: load a workflow definition by id, persist execution records, and
// resolve an organization's installed packages for the sandbox's
// require().
type WorkflowRepository interface {
	GetWorkflowByID(ctx context.Context, id string) (*workflow.Workflow, error)
	CreateExecution(ctx context.Context, execution *workflow.Execution) error
	UpdateExecution(ctx context.Context, execution *workflow.Execution) error
	GetPackage(ctx context.Context, organizationID, name string) (*workflow.Package, error)
}

// packageSourceAdapter satisfies javascript.PackageSource against a
// WorkflowRepository, keeping the javascript package free of a dependency
// on the workflow package.
type packageSourceAdapter struct {
	repo WorkflowRepository
}

func (a packageSourceAdapter) GetPackage(ctx context.Context, organizationID, name string) (*javascript.ModuleSource, error) {
	pkg, err := a.repo.GetPackage(ctx, organizationID, name)
	if err != nil {
		return nil, err
	}
	return &javascript.ModuleSource{Name: pkg.Name, Source: pkg.Source}, nil
}

// CredentialResolver resolves a credential reference into the handle value
// a code node sees at $credentials.<name>.
type CredentialResolver interface {
	ResolveHandle(ctx context.Context, organizationID, name string) (any, error)
}

// ScopedCredentialResolver is implemented by resolvers that pool the
// handles they open (database connections, clients) and want them closed
// together at the end of one top-level execution rather than living for
// the executor's lifetime. Scope returns a resolver to use for the
// execution and a release func to defer.
type ScopedCredentialResolver interface {
	CredentialResolver
	Scope() (scoped CredentialResolver, release func())
}

// noopCredentialResolver is used when no resolver is configured; workflows
// that don't reference credentials are unaffected.
type noopCredentialResolver struct{}

func (noopCredentialResolver) ResolveHandle(ctx context.Context, organizationID, name string) (any, error) {
	return nil, fmt.Errorf("no credential resolver configured: cannot resolve %q", name)
}

// Executor runs workflow graphs to completion.
type Executor struct {
	repo WorkflowRepository
	codeRunner *CodeRunner
	credentials CredentialResolver
	logger *slog.Logger
}

// New constructs an Executor.
func New(repo WorkflowRepository, engine *javascript.Engine, credentials CredentialResolver, logger *slog.Logger) *Executor {
	if credentials == nil {
		credentials = noopCredentialResolver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	var packages javascript.PackageSource
	if repo != nil {
		packages = packageSourceAdapter{repo: repo}
	}
	return &Executor{
		repo: repo,
		codeRunner: NewCodeRunner(engine, packages),
		credentials: credentials,
		logger: logger,
	}
}

// RunRequest describes one top-level invocation of a workflow.
type RunRequest struct {
	OrganizationID string
	WorkflowID string
	Trigger TriggerKind
	TriggerData json.RawMessage
	// RunUntilNodeID, if set, restricts the plan to the ancestors of this
	// node (inclusive) — the debug controller's "run to breakpoint" mode.
	RunUntilNodeID string
}

// Run executes a workflow from its entry node to completion (or failure),
// persisting the resulting Execution record.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*workflow.Execution, error) {
	wf, err := e.repo.GetWorkflowByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("loading workflow %s: %w", req.WorkflowID, err)
	}
	def, err := wf.ParsedDefinition()
	if err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}

	entry, err := findEntryNode(def, req.Trigger)
	if err != nil {
		return nil, err
	}
	if req.RunUntilNodeID != "" {
		allowed := ancestorsOf(def, req.RunUntilNodeID)
		def = inPlanFilter(def, allowed)
	}

	now := time.Now()
	execution := &workflow.Execution{
		ID: uuid.New().String(),
		OrganizationID: req.OrganizationID,
		WorkflowID: wf.ID,
		WorkflowVersion: wf.Version,
		Status: workflow.ExecutionStatusRunning,
		TriggerType: string(req.Trigger),
		TriggerData: req.TriggerData,
		NodeResults: map[string]*workflow.NodeResult{},
		StartedAt: &now,
		CreatedAt: now,
	}
	if err := e.repo.CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("persisting execution: %w", err)
	}

	rs := NewRunState(def, entry.ID, req.TriggerData, 0, nil)
	rs.ExecutionID = execution.ID
	rs.OrganizationID = req.OrganizationID
	rs.WorkflowID = wf.ID

	if scoper, ok := e.credentials.(ScopedCredentialResolver); ok {
		var release func()
		rs.Credentials, release = scoper.Scope()
		defer release()
	}

	runErr := e.runFrontier(ctx, rs)

	completed := time.Now()
	execution.CompletedAt = &completed
	execution.NodeResults = workflow.NodeResultMap(rs.NodeResults)
	if runErr != nil {
		execution.Status = workflow.ExecutionStatusFailed
		execution.Error = runErr.Error()
	} else {
		execution.Status = workflow.ExecutionStatusCompleted
		execution.Result = finalResult(def, rs)
	}
	if err := e.repo.UpdateExecution(ctx, execution); err != nil {
		return execution, fmt.Errorf("persisting execution result: %w", err)
	}
	return execution, runErr
}

// RunTriggerAdapter satisfies workflow.RunTrigger by converting its
// string-typed request into the executor's own RunRequest, so
// workflow.Service can start executions without workflow importing
// executor (which itself imports workflow).
type RunTriggerAdapter struct{ Executor *Executor }

func (a RunTriggerAdapter) Run(ctx context.Context, req workflow.RunTriggerRequest) (*workflow.Execution, error) {
	return a.Executor.Run(ctx, RunRequest{
		OrganizationID: req.OrganizationID,
		WorkflowID: req.WorkflowID,
		Trigger: TriggerKind(req.Trigger),
		TriggerData: req.TriggerData,
	})
}

// finalResult collects the final output of an execution: the concatenated
// item lists of every completed node that has no active outgoing edge (a
// terminal node of the plan), in node-list order. This is what webhook
// ingress response shaping and the RPC `execution.result` field
// both read.
func finalResult(def *workflow.Definition, rs *RunState) json.RawMessage {
	items := []workflow.Item{}
	for _, n := range def.Nodes {
		if !rs.Completed[n.ID] {
			continue
		}
		terminal := true
		for _, c := range def.OutgoingEdges(n.ID) {
			if rs.edgeActive(c.ID) {
				terminal = false
				break
			}
		}
		if terminal {
			items = append(items, rs.NodeOutputs[n.ID]...)
		}
	}
	b, _ := json.Marshal(items)
	return b
}
