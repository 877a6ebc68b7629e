package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"maskflow/internal/domain"
	"maskflow/internal/logger"
	"maskflow/internal/store"
)

// ErrWorkflowRunning rejects edits to a workflow while it runs.
var ErrWorkflowRunning = errors.New("workflow is running")

// WorkflowInput is the writable part of a workflow.
type WorkflowInput struct {
	ID                      string
	Name                    string
	Description             string
	SourceConnectionID      string
	DestinationConnectionID string
	TableMappings           []domain.TableMapping
}

// WorkflowService manages workflow definitions.
type WorkflowService struct {
	logger      *logger.Logger
	workflows   store.Workflows
	connections store.Connections
	validator   *domain.ValidationService
}

// NewWorkflowService creates a workflow service.
func NewWorkflowService(log *logger.Logger, workflows store.Workflows, connections store.Connections) *WorkflowService {
	if log == nil {
		log = logger.Discard()
	}
	return &WorkflowService{
		logger:      log,
		workflows:   workflows,
		connections: connections,
		validator:   domain.NewValidationService(),
	}
}

// Create validates and stores a workflow. It is READY when it can run as
// defined, DRAFT otherwise.
func (s *WorkflowService) Create(ctx context.Context, ownerID string, in WorkflowInput) (*domain.Workflow, error) {
	w := &domain.Workflow{
		ID:                      in.ID,
		Name:                    strings.TrimSpace(in.Name),
		Description:             in.Description,
		SourceConnectionID:      in.SourceConnectionID,
		DestinationConnectionID: in.DestinationConnectionID,
		TableMappings:           assignMappingIDs(in.TableMappings),
		OwnerID:                 ownerID,
		Active:                  true,
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	s.logger.WithField("workflow_id", w.ID).WithField("owner_id", ownerID).Info("Creating workflow")

	if err := s.check(ctx, w); err != nil {
		return nil, err
	}
	if err := s.workflows.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Update replaces the definition. A running workflow cannot be edited.
func (s *WorkflowService) Update(ctx context.Context, userID, id string, in WorkflowInput) (*domain.Workflow, error) {
	w, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if w.Status == domain.WorkflowRunning {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrWorkflowRunning)
	}
	s.logger.WithField("workflow_id", id).Info("Updating workflow")

	w.Name = strings.TrimSpace(in.Name)
	w.Description = in.Description
	w.SourceConnectionID = in.SourceConnectionID
	w.DestinationConnectionID = in.DestinationConnectionID
	w.TableMappings = assignMappingIDs(in.TableMappings)
	if err := s.check(ctx, w); err != nil {
		return nil, err
	}
	if err := s.workflows.UpdateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Delete soft-deletes the workflow.
func (s *WorkflowService) Delete(ctx context.Context, userID, id string) error {
	w, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if w.Status == domain.WorkflowRunning {
		return fmt.Errorf("workflow %s: %w", id, ErrWorkflowRunning)
	}
	s.logger.WithField("workflow_id", id).Info("Deleting workflow")
	w.Active = false
	return s.workflows.UpdateWorkflow(ctx, w)
}

// Get returns a workflow owned by userID.
func (s *WorkflowService) Get(ctx context.Context, userID, id string) (*domain.Workflow, error) {
	return s.owned(ctx, userID, id)
}

// List returns the user's active workflows.
func (s *WorkflowService) List(ctx context.Context, userID string) ([]*domain.Workflow, error) {
	all, err := s.workflows.ListWorkflows(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, w := range all {
		if w.Active {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *WorkflowService) owned(ctx context.Context, userID, id string) (*domain.Workflow, error) {
	w, err := s.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.Active {
		return nil, fmt.Errorf("workflow %s: %w", id, store.ErrNotFound)
	}
	if w.OwnerID != userID {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrForbidden)
	}
	return w, nil
}

// check validates the definition, both connections, and sets the status.
func (s *WorkflowService) check(ctx context.Context, w *domain.Workflow) error {
	if err := s.validator.ValidateStruct(w); err != nil {
		return err
	}
	for _, id := range []string{w.SourceConnectionID, w.DestinationConnectionID} {
		c, err := s.connections.GetConnection(ctx, id)
		if err != nil {
			return fmt.Errorf("workflow %s: %w", w.ID, err)
		}
		if !c.Active {
			return fmt.Errorf("workflow %s: connection %s: %w", w.ID, id, store.ErrNotFound)
		}
		if c.OwnerID != w.OwnerID {
			return fmt.Errorf("workflow %s: connection %s: %w", w.ID, id, ErrForbidden)
		}
	}
	if s.validator.ValidateForExecution(w) == nil {
		w.Status = domain.WorkflowReady
	} else {
		w.Status = domain.WorkflowDraft
	}
	return nil
}

func assignMappingIDs(in []domain.TableMapping) []domain.TableMapping {
	out := make([]domain.TableMapping, len(in))
	for i, tm := range in {
		if tm.ID == "" {
			tm.ID = uuid.NewString()
		}
		tm.Columns = append([]domain.ColumnMapping(nil), tm.Columns...)
		out[i] = tm
	}
	return out
}
