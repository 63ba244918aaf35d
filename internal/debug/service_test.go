package debug

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typeflow/typeflow/internal/apperrors"
	"github.com/typeflow/typeflow/internal/executor"
	"github.com/typeflow/typeflow/internal/workflow"
)

type fakeRepo struct {
	workflows map[string]*workflow.Workflow
	sessions  map[string]*workflow.DebugSession
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{workflows: map[string]*workflow.Workflow{}, sessions: map[string]*workflow.DebugSession{}}
}

func (f *fakeRepo) GetByID(ctx context.Context, organizationID, id string) (*workflow.Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok || wf.OrganizationID != organizationID {
		return nil, workflow.ErrNotFound
	}
	return wf, nil
}

func (f *fakeRepo) Update(ctx context.Context, organizationID, id string, input workflow.UpdateWorkflowInput) (*workflow.Workflow, error) {
	wf, err := f.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if input.Metadata != nil {
		wf.Metadata = input.Metadata
	}
	return wf, nil
}

func (f *fakeRepo) CreateDebugSession(ctx context.Context, session *workflow.DebugSession) error {
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeRepo) UpdateDebugSession(ctx context.Context, session *workflow.DebugSession) error {
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeRepo) GetDebugSession(ctx context.Context, organizationID, id string) (*workflow.DebugSession, error) {
	session, ok := f.sessions[id]
	if !ok || session.OrganizationID != organizationID {
		return nil, workflow.ErrNotFound
	}
	return session, nil
}

// linearWorkflow builds org/a-b-c trigger->generic->generic chain, each
// node an explicit id for breakpoint tests.
func linearWorkflow(id, orgID string) *workflow.Workflow {
	def := workflow.Definition{
		Nodes: []workflow.Node{
			{ID: "a", Kind: workflow.NodeKindTrigger, ExecutionOrder: 0},
			{ID: "b", Kind: workflow.NodeKindGeneric, ExecutionOrder: 1},
			{ID: "c", Kind: workflow.NodeKindGeneric, ExecutionOrder: 2},
		},
		Connections: []workflow.Connection{
			{ID: "e1", SourceNodeID: "a", TargetNodeID: "b"},
			{ID: "e2", SourceNodeID: "b", TargetNodeID: "c"},
		},
	}
	encoded, _ := json.Marshal(def)
	return &workflow.Workflow{ID: id, OrganizationID: orgID, Name: "linear", Version: 1, Definition: encoded}
}

// failingWorkflow builds trigger -> if(invalid config), which fails on
// its second node.
func failingWorkflow(id, orgID string) *workflow.Workflow {
	def := workflow.Definition{
		Nodes: []workflow.Node{
			{ID: "a", Kind: workflow.NodeKindTrigger, ExecutionOrder: 0},
			{ID: "bad", Kind: workflow.NodeKindIf, ExecutionOrder: 1, Config: json.RawMessage(`not-json`)},
		},
		Connections: []workflow.Connection{
			{ID: "e1", SourceNodeID: "a", TargetNodeID: "bad"},
		},
	}
	encoded, _ := json.Marshal(def)
	return &workflow.Workflow{ID: id, OrganizationID: orgID, Name: "failing", Version: 1, Definition: encoded}
}

func newTestService(repo Repository) *Service {
	ex := executor.New(nil, nil, nil, nil)
	return NewService(repo, ex, nil)
}

func TestService_CreateStartPauseContinue(t *testing.T) {
	repo := newFakeRepo()
	repo.workflows["wf1"] = linearWorkflow("wf1", "org1")
	svc := newTestService(repo)
	ctx := context.Background()

	session, err := svc.Create(ctx, "org1", "wf1", []string{"b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.DebugSessionActive, session.Status)
	assert.Equal(t, workflow.StringList{"a"}, session.NextNodeIDs)

	session, err = svc.Start(ctx, "org1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.DebugSessionPaused, session.Status)
	require.NotNil(t, session.CurrentNodeID)
	assert.Equal(t, "b", *session.CurrentNodeID)
	assert.Equal(t, workflow.StringList{"b"}, session.NextNodeIDs)
	assert.Equal(t, workflow.NodeStatusCompleted, session.NodeResults["a"].Status)
	_, stillQueued := session.NodeResults["b"]
	assert.False(t, stillQueued)

	session, err = svc.Continue(ctx, "org1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.DebugSessionCompleted, session.Status)
	assert.Nil(t, session.CurrentNodeID)
	assert.Equal(t, workflow.NodeStatusCompleted, session.NodeResults["b"].Status)
	assert.Equal(t, workflow.NodeStatusCompleted, session.NodeResults["c"].Status)
}

func TestService_StepOver(t *testing.T) {
	repo := newFakeRepo()
	repo.workflows["wf1"] = linearWorkflow("wf1", "org1")
	svc := newTestService(repo)
	ctx := context.Background()

	session, err := svc.Create(ctx, "org1", "wf1", nil, nil)
	require.NoError(t, err)

	session, err = svc.StepOver(ctx, "org1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.DebugSessionPaused, session.Status)
	assert.Equal(t, "b", *session.CurrentNodeID)
	assert.Equal(t, workflow.NodeStatusCompleted, session.NodeResults["a"].Status)

	session, err = svc.StepOver(ctx, "org1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", *session.CurrentNodeID)

	session, err = svc.StepOver(ctx, "org1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.DebugSessionCompleted, session.Status)
}

func TestService_FailureTerminatesSession(t *testing.T) {
	repo := newFakeRepo()
	repo.workflows["wf1"] = failingWorkflow("wf1", "org1")
	svc := newTestService(repo)
	ctx := context.Background()

	session, err := svc.Create(ctx, "org1", "wf1", nil, nil)
	require.NoError(t, err)

	session, err = svc.Start(ctx, "org1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.DebugSessionTerminated, session.Status)
	assert.Equal(t, workflow.NodeStatusFailed, session.NodeResults["bad"].Status)
	assert.NotEmpty(t, session.NodeResults["bad"].Error)
}

func TestService_TerminateRejectsFurtherOps(t *testing.T) {
	repo := newFakeRepo()
	repo.workflows["wf1"] = linearWorkflow("wf1", "org1")
	svc := newTestService(repo)
	ctx := context.Background()

	session, err := svc.Create(ctx, "org1", "wf1", nil, nil)
	require.NoError(t, err)

	session, err = svc.Terminate(ctx, "org1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.DebugSessionTerminated, session.Status)

	_, err = svc.Continue(ctx, "org1", session.ID)
	require.Error(t, err)
	var sessionEnded *apperrors.SessionEndedError
	assert.ErrorAs(t, err, &sessionEnded)

	_, err = svc.Terminate(ctx, "org1", session.ID)
	require.Error(t, err)
	assert.ErrorAs(t, err, &sessionEnded)

	// GetState remains readable after the session has ended.
	got, err := svc.GetState(ctx, "org1", session.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.DebugSessionTerminated, got.Status)
}

func TestService_ToggleBreakpoint(t *testing.T) {
	repo := newFakeRepo()
	repo.workflows["wf1"] = linearWorkflow("wf1", "org1")
	svc := newTestService(repo)
	ctx := context.Background()

	bps, err := svc.ToggleBreakpoint(ctx, "org1", "wf1", "b", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, bps)

	// Idempotent: enabling again doesn't duplicate.
	bps, err = svc.ToggleBreakpoint(ctx, "org1", "wf1", "b", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, bps)

	bps, err = svc.ToggleBreakpoint(ctx, "org1", "wf1", "b", false)
	require.NoError(t, err)
	assert.Empty(t, bps)
}
