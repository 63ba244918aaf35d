package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("not found")

// Repository persists workflows, executions and debug sessions.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new workflow repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateWorkflowInput is the input to Create.
type CreateWorkflowInput struct {
	Name string
	Description string
	Definition json.RawMessage
	Metadata json.RawMessage
}

// UpdateWorkflowInput is the input to Update. A non-nil Definition bumps
// the workflow's version Workflow invariant.
type UpdateWorkflowInput struct {
	Name *string
	Description *string
	Definition json.RawMessage
	Metadata json.RawMessage
	Active *bool
}

// Create inserts a new workflow at version 1.
func (r *Repository) Create(ctx context.Context, organizationID string, input CreateWorkflowInput) (*Workflow, error) {
	if err := validateGraph(input.Definition); err != nil {
		return nil, err
	}

	now := time.Now()
	wf := Workflow{
		ID: uuid.New().String(),
		OrganizationID: organizationID,
		Name: input.Name,
		Description: input.Description,
		Version: 1,
		Active: false,
		Metadata: input.Metadata,
		Definition: input.Definition,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const query = `
	INSERT INTO workflows (id, organization_id, name, description, version, active, metadata, definition, created_at, updated_at)
	VALUES (:id, :organization_id, :name, :description, :version, :active, :metadata, :definition, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, wf); err != nil {
		return nil, fmt.Errorf("creating workflow: %w", err)
	}
	return &wf, nil
}

// GetWorkflowByID retrieves a workflow by id, unscoped by organization —
// used by the executor's sub-workflow dispatch, which already trusts the
// calling workflow's own organization boundary.
func (r *Repository) GetWorkflowByID(ctx context.Context, id string) (*Workflow, error) {
	const query = `SELECT * FROM workflows WHERE id = $1`
	var wf Workflow
	if err := r.db.GetContext(ctx, &wf, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &wf, nil
}

// GetByID retrieves a workflow scoped to an organization.
func (r *Repository) GetByID(ctx context.Context, organizationID, id string) (*Workflow, error) {
	const query = `SELECT * FROM workflows WHERE id = $1 AND organization_id = $2`
	var wf Workflow
	if err := r.db.GetContext(ctx, &wf, query, id, organizationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &wf, nil
}

// Update applies a partial update, bumping the version when the definition
// changes.
func (r *Repository) Update(ctx context.Context, organizationID, id string, input UpdateWorkflowInput) (*Workflow, error) {
	current, err := r.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		current.Name = *input.Name
	}
	if input.Description != nil {
		current.Description = *input.Description
	}
	if input.Active != nil {
		current.Active = *input.Active
	}
	if input.Metadata != nil {
		current.Metadata = input.Metadata
	}
	if input.Definition != nil {
		if err := validateGraph(input.Definition); err != nil {
			return nil, err
		}
		current.Definition = input.Definition
		current.Version++
	}
	current.UpdatedAt = time.Now()

	const query = `
	UPDATE workflows
	SET name = $1, description = $2, active = $3, metadata = $4, definition = $5, version = $6, updated_at = $7
	WHERE id = $8 AND organization_id = $9
	`
	_, err = r.db.ExecContext(ctx, query,
		current.Name, current.Description, current.Active, current.Metadata,
		current.Definition, current.Version, current.UpdatedAt, id, organizationID)
	if err != nil {
		return nil, fmt.Errorf("updating workflow: %w", err)
	}
	return current, nil
}

// Delete removes a workflow.
func (r *Repository) Delete(ctx context.Context, organizationID, id string) error {
	const query = `DELETE FROM workflows WHERE id = $1 AND organization_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, organizationID)
	return err
}

// List returns an organization's workflows, newest first.
func (r *Repository) List(ctx context.Context, organizationID string, limit, offset int) ([]*Workflow, error) {
	const query = `
	SELECT * FROM workflows
	WHERE organization_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3
	`
	var out []*Workflow
	if err := r.db.SelectContext(ctx, &out, query, organizationID, limit, offset); err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	return out, nil
}

// CreateExecution inserts a new execution record.
func (r *Repository) CreateExecution(ctx context.Context, execution *Execution) error {
	const query = `
	INSERT INTO executions (id, organization_id, workflow_id, workflow_version, status, trigger_type, trigger_data, node_results, result, error, parent_execution_id, started_at, completed_at, created_at)
	VALUES (:id, :organization_id, :workflow_id, :workflow_version, :status, :trigger_type, :trigger_data, :node_results, :result, :error, :parent_execution_id, :started_at, :completed_at, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, execution)
	return err
}

// UpdateExecution persists an execution's final status/result/node results.
func (r *Repository) UpdateExecution(ctx context.Context, execution *Execution) error {
	const query = `
	UPDATE executions
	SET status = $1, node_results = $2, result = $3, error = $4, completed_at = $5
	WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		execution.Status, execution.NodeResults, execution.Result, execution.Error, execution.CompletedAt, execution.ID)
	return err
}

// GetExecutionByID retrieves an execution scoped to an organization.
func (r *Repository) GetExecutionByID(ctx context.Context, organizationID, id string) (*Execution, error) {
	const query = `SELECT * FROM executions WHERE id = $1 AND organization_id = $2`
	var exec Execution
	if err := r.db.GetContext(ctx, &exec, query, id, organizationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &exec, nil
}

// ListExecutions lists an organization's executions for a workflow.
func (r *Repository) ListExecutions(ctx context.Context, organizationID, workflowID string, limit, offset int) ([]*Execution, error) {
	const query = `
	SELECT * FROM executions
	WHERE organization_id = $1 AND workflow_id = $2
	ORDER BY created_at DESC
	LIMIT $3 OFFSET $4
	`
	var out []*Execution
	if err := r.db.SelectContext(ctx, &out, query, organizationID, workflowID, limit, offset); err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	return out, nil
}

// CreateDebugSession persists a new debug session row.
func (r *Repository) CreateDebugSession(ctx context.Context, session *DebugSession) error {
	const query = `
	INSERT INTO debug_sessions (id, organization_id, workflow_id, status, breakpoints, current_node_id, next_node_ids, node_results, node_outputs, call_stack, trigger_data, created_at, updated_at)
	VALUES (:id, :organization_id, :workflow_id, :status, :breakpoints, :current_node_id, :next_node_ids, :node_results, :node_outputs, :call_stack, :trigger_data, :created_at, :updated_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, session)
	return err
}

// UpdateDebugSession persists a debug session's mutable state.
func (r *Repository) UpdateDebugSession(ctx context.Context, session *DebugSession) error {
	const query = `
	UPDATE debug_sessions
	SET status = $1, breakpoints = $2, current_node_id = $3, next_node_ids = $4,
	node_results = $5, node_outputs = $6, call_stack = $7, updated_at = $8
	WHERE id = $9 AND organization_id = $10
	`
	_, err := r.db.ExecContext(ctx, query,
		session.Status, session.Breakpoints, session.CurrentNodeID, session.NextNodeIDs,
		session.NodeResults, session.NodeOutputs, session.CallStack, session.UpdatedAt,
		session.ID, session.OrganizationID)
	return err
}

// GetDebugSession retrieves a debug session scoped to an organization.
func (r *Repository) GetDebugSession(ctx context.Context, organizationID, id string) (*DebugSession, error) {
	const query = `SELECT * FROM debug_sessions WHERE id = $1 AND organization_id = $2`
	var session DebugSession
	if err := r.db.GetContext(ctx, &session, query, id, organizationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// GetPackage retrieves an organization's installed package by name, for the
// sandbox's require() resolver. ErrNotFound means the module doesn't
// exist in the organization's install root.
func (r *Repository) GetPackage(ctx context.Context, organizationID, name string) (*Package, error) {
	const query = `SELECT * FROM packages WHERE organization_id = $1 AND name = $2`
	var pkg Package
	if err := r.db.GetContext(ctx, &pkg, query, organizationID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

func validateGraph(definition json.RawMessage) error {
	var def Definition
	if err := json.Unmarshal(definition, &def); err != nil {
		return fmt.Errorf("invalid workflow definition: %w", err)
	}
	return def.Validate()
}
