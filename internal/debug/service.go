package debug

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/typeflow/typeflow/internal/apperrors"
	"github.com/typeflow/typeflow/internal/executor"
	"github.com/typeflow/typeflow/internal/workflow"
)

// Repository is the slice of workflow.Repository the debug controller
// needs: resolve the workflow graph and its breakpoint metadata, and
// persist/read debug session rows.
type Repository interface {
	GetByID(ctx context.Context, organizationID, id string) (*workflow.Workflow, error)
	Update(ctx context.Context, organizationID, id string, input workflow.UpdateWorkflowInput) (*workflow.Workflow, error)
	CreateDebugSession(ctx context.Context, session *workflow.DebugSession) error
	UpdateDebugSession(ctx context.Context, session *workflow.DebugSession) error
	GetDebugSession(ctx context.Context, organizationID, id string) (*workflow.DebugSession, error)
}

// Stepper is the slice of *executor.Executor the controller drives.
type Stepper interface {
	EntryNodeForDebug(wf *workflow.Workflow) (*workflow.Definition, workflow.Node, error)
	ScopeCredentials() (executor.CredentialResolver, func())
	NextReadyNode(rs *executor.RunState) (nodeID string, ok bool)
	RunNode(ctx context.Context, rs *executor.RunState, nodeID string) error
}

// Service implements the debug controller's seven operations.
type Service struct {
	repo Repository
	executor Stepper
	logger *slog.Logger
}

// NewService creates a new debug service.
func NewService(repo Repository, stepper Stepper, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, executor: stepper, logger: logger}
}

// Create starts a new active debug session against a workflow's debug
// entry node.
func (s *Service) Create(ctx context.Context, organizationID, workflowID string, breakpoints []string, triggerData json.RawMessage) (*workflow.DebugSession, error) {
	wf, err := s.repo.GetByID(ctx, organizationID, workflowID)
	if err != nil {
		return nil, err
	}
	_, entry, err := s.executor.EntryNodeForDebug(wf)
	if err != nil {
		return nil, &apperrors.ValidationError{Message: err.Error()}
	}

	now := time.Now()
	session := &workflow.DebugSession{
		ID: newSessionID(),
		OrganizationID: organizationID,
		WorkflowID: workflowID,
		Status: workflow.DebugSessionActive,
		Breakpoints: workflow.StringList(breakpoints),
		NextNodeIDs: workflow.StringList{entry.ID},
		NodeResults: workflow.NodeResultMap{},
		NodeOutputs: workflow.NodeOutputMap{},
		TriggerData: triggerData,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateDebugSession(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("debug session created", "session_id", session.ID, "workflow_id", workflowID, "organization_id", organizationID)
	return session, nil
}

// Start runs a freshly created session, yielding at the first breakpoint,
// completion, or failure.
func (s *Service) Start(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error) {
	session, err := s.load(ctx, organizationID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != workflow.DebugSessionActive {
		return nil, &apperrors.ValidationError{Field: "sessionId", Message: "session already started; use continue"}
	}
	return s.resume(ctx, session, false)
}

// Continue resumes a paused (or not-yet-started) session. Breakpoints are
// not re-checked against the node the session is already sitting on —
// only a fresh pause later in the run can stop it again.
func (s *Service) Continue(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error) {
	session, err := s.load(ctx, organizationID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRunnable(session); err != nil {
		return nil, err
	}
	skipFirstCheck := session.Status == workflow.DebugSessionPaused
	return s.resume(ctx, session, skipFirstCheck)
}

// StepOver executes exactly one node from the frontier, then pauses
// regardless of breakpoints.
func (s *Service) StepOver(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error) {
	session, err := s.load(ctx, organizationID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRunnable(session); err != nil {
		return nil, err
	}

	wf, err := s.repo.GetByID(ctx, organizationID, session.WorkflowID)
	if err != nil {
		return nil, err
	}
	def, _, err := s.executor.EntryNodeForDebug(wf)
	if err != nil {
		return nil, &apperrors.ValidationError{Message: err.Error()}
	}

	rs := toRunState(def, session)
	var release func()
	rs.Credentials, release = s.executor.ScopeCredentials()
	defer release()

	nodeID, ok := s.executor.NextReadyNode(rs)
	if !ok {
		applyRunState(session, rs)
		session.Status = workflow.DebugSessionCompleted
		session.CurrentNodeID = nil
	} else if runErr := s.executor.RunNode(ctx, rs, nodeID); runErr != nil {
		applyRunState(session, rs)
		fail(session)
	} else {
		applyRunState(session, rs)
		pause(session)
	}

	session.UpdatedAt = time.Now()
	if err := s.repo.UpdateDebugSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Terminate ends a session; no further operations are accepted on it.
func (s *Service) Terminate(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error) {
	session, err := s.load(ctx, organizationID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRunnable(session); err != nil {
		return nil, err
	}
	session.Status = workflow.DebugSessionTerminated
	session.CurrentNodeID = nil
	session.UpdatedAt = time.Now()
	if err := s.repo.UpdateDebugSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetState reads a session's persisted row. Unlike the stepping
// operations, this is allowed on a completed/terminated session — it is
// the only way a caller observes that terminal state.
func (s *Service) GetState(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error) {
	return s.load(ctx, organizationID, sessionID)
}

// ToggleBreakpoint idempotently adds or removes a node id from a
// workflow's persisted breakpoint set (stored on its metadata, not any
// one debug session).
func (s *Service) ToggleBreakpoint(ctx context.Context, organizationID, workflowID, nodeID string, enabled bool) ([]string, error) {
	wf, err := s.repo.GetByID(ctx, organizationID, workflowID)
	if err != nil {
		return nil, err
	}

	var meta workflow.WorkflowMetadata
	if len(wf.Metadata) > 0 {
		if err := json.Unmarshal(wf.Metadata, &meta); err != nil {
			return nil, &apperrors.ValidationError{Field: "metadata", Message: "workflow metadata is not valid JSON"}
		}
	}

	meta.Breakpoints = toggleSet(meta.Breakpoints, nodeID, enabled)

	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Update(ctx, organizationID, workflowID, workflow.UpdateWorkflowInput{Metadata: encoded}); err != nil {
		return nil, err
	}
	return meta.Breakpoints, nil
}

// resume drives a session forward with breakpoints enforced until the
// next breakpoint, completion, or failure (start/continue).
func (s *Service) resume(ctx context.Context, session *workflow.DebugSession, skipFirstCheck bool) (*workflow.DebugSession, error) {
	wf, err := s.repo.GetByID(ctx, session.OrganizationID, session.WorkflowID)
	if err != nil {
		return nil, err
	}
	def, _, err := s.executor.EntryNodeForDebug(wf)
	if err != nil {
		return nil, &apperrors.ValidationError{Message: err.Error()}
	}

	rs := toRunState(def, session)
	var release func()
	rs.Credentials, release = s.executor.ScopeCredentials()
	defer release()

	breakpoints := map[string]bool{}
	for _, id := range session.Breakpoints {
		breakpoints[id] = true
	}

	first := true
	for {
		nodeID, ok := s.executor.NextReadyNode(rs)
		if !ok {
			applyRunState(session, rs)
			session.Status = workflow.DebugSessionCompleted
			session.CurrentNodeID = nil
			break
		}
		if breakpoints[nodeID] && !(first && skipFirstCheck) {
			// Put the node back at the front of the frontier: it has been
			// popped by NextReadyNode but not executed.
			rs.Frontier = append([]string{nodeID}, rs.Frontier...)
			applyRunState(session, rs)
			pause(session)
			break
		}
		if runErr := s.executor.RunNode(ctx, rs, nodeID); runErr != nil {
			applyRunState(session, rs)
			fail(session)
			break
		}
		first = false
	}

	session.UpdatedAt = time.Now()
	if err := s.repo.UpdateDebugSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) load(ctx context.Context, organizationID, sessionID string) (*workflow.DebugSession, error) {
	return s.repo.GetDebugSession(ctx, organizationID, sessionID)
}

// requireRunnable rejects any mutating operation on a session that has
// already ended (failure model).
func (s *Service) requireRunnable(session *workflow.DebugSession) error {
	switch session.Status {
	case workflow.DebugSessionCompleted, workflow.DebugSessionTerminated:
		return &apperrors.SessionEndedError{SessionID: session.ID, Status: string(session.Status)}
	default:
		return nil
	}
}

func toggleSet(set []string, value string, enabled bool) []string {
	idx := -1
	for i, v := range set {
		if v == value {
			idx = i
			break
		}
	}
	if enabled {
		if idx >= 0 {
			return set
		}
		out := append(append([]string{}, set...), value)
		sort.Strings(out)
		return out
	}
	if idx < 0 {
		return set
	}
	out := append([]string{}, set[:idx]...)
	out = append(out, set[idx+1:]...)
	return out
}
