// Package store persists connection and workflow definitions and the
// execution records written by the orchestrator.
//
// Two implementations share the Store interface: MemoryStore for the CLI
// and tests, GormStore for a PostgreSQL-backed deployment.
package store

import (
	"context"
	"errors"

	"maskflow/internal/domain"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("store: not found")

// Connections is connection definition CRUD. Deletion is soft: callers set
// Active=false and update.
type Connections interface {
	CreateConnection(ctx context.Context, c *domain.Connection) error
	UpdateConnection(ctx context.Context, c *domain.Connection) error
	GetConnection(ctx context.Context, id string) (*domain.Connection, error)
	// ListConnections returns the owner's connections; ownerID "" lists all.
	ListConnections(ctx context.Context, ownerID string) ([]*domain.Connection, error)
}

// Workflows is workflow definition CRUD.
type Workflows interface {
	CreateWorkflow(ctx context.Context, w *domain.Workflow) error
	UpdateWorkflow(ctx context.Context, w *domain.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context, ownerID string) ([]*domain.Workflow, error)
	SetWorkflowStatus(ctx context.Context, id string, status domain.WorkflowStatus) error
}

// Executions is the orchestrator's durable side channel. SaveExecution
// replaces the whole record; one goroutine owns each execution.
type Executions interface {
	CreateExecution(ctx context.Context, e *domain.Execution) error
	SaveExecution(ctx context.Context, e *domain.Execution) error
	GetExecution(ctx context.Context, id string) (*domain.Execution, error)
	// ListExecutions returns a workflow's executions newest first.
	ListExecutions(ctx context.Context, workflowID string, offset, limit int) ([]*domain.Execution, error)
}

// Store is everything the services and the orchestrator persist.
type Store interface {
	Connections
	Workflows
	Executions
	Close() error
}

// page clamps offset/limit against n items; limit <= 0 means no limit.
func page(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
