package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"maskflow/internal/domain"
)

// MemoryStore keeps everything in maps guarded by one mutex. Values are
// copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	connections map[string]*domain.Connection
	workflows   map[string]*domain.Workflow
	executions  map[string]*domain.Execution
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		connections: map[string]*domain.Connection{},
		workflows:   map[string]*domain.Workflow{},
		executions:  map[string]*domain.Execution{},
	}
}

func (s *MemoryStore) Close() error { return nil }

func cloneConnection(c *domain.Connection) *domain.Connection {
	out := *c
	if c.Params != nil {
		out.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	return &out
}

func cloneWorkflow(w *domain.Workflow) *domain.Workflow {
	out := *w
	out.TableMappings = make([]domain.TableMapping, len(w.TableMappings))
	for i, tm := range w.TableMappings {
		tm.Columns = append([]domain.ColumnMapping(nil), tm.Columns...)
		out.TableMappings[i] = tm
	}
	return &out
}

func cloneExecution(e *domain.Execution) *domain.Execution {
	out := *e
	out.Logs = append([]string(nil), e.Logs...)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func (s *MemoryStore) CreateConnection(_ context.Context, c *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[c.ID]; ok {
		return fmt.Errorf("store: connection %s already exists", c.ID)
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.connections[c.ID] = cloneConnection(c)
	return nil
}

func (s *MemoryStore) UpdateConnection(_ context.Context, c *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.connections[c.ID]
	if !ok {
		return fmt.Errorf("connection %s: %w", c.ID, ErrNotFound)
	}
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	s.connections[c.ID] = cloneConnection(c)
	return nil
}

func (s *MemoryStore) GetConnection(_ context.Context, id string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return cloneConnection(c), nil
}

func (s *MemoryStore) ListConnections(_ context.Context, ownerID string) ([]*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Connection
	for _, c := range s.connections {
		if ownerID == "" || c.OwnerID == ownerID {
			out = append(out, cloneConnection(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, w *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[w.ID]; ok {
		return fmt.Errorf("store: workflow %s already exists", w.ID)
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	s.workflows[w.ID] = cloneWorkflow(w)
	return nil
}

func (s *MemoryStore) UpdateWorkflow(_ context.Context, w *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.workflows[w.ID]
	if !ok {
		return fmt.Errorf("workflow %s: %w", w.ID, ErrNotFound)
	}
	w.CreatedAt = prev.CreatedAt
	w.UpdatedAt = time.Now().UTC()
	s.workflows[w.ID] = cloneWorkflow(w)
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return cloneWorkflow(w), nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context, ownerID string) ([]*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Workflow
	for _, w := range s.workflows {
		if ownerID == "" || w.OwnerID == ownerID {
			out = append(out, cloneWorkflow(w))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SetWorkflowStatus(_ context.Context, id string, status domain.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	w.Status = status
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateExecution(_ context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[e.ID]; ok {
		return fmt.Errorf("store: execution %s already exists", e.ID)
	}
	s.executions[e.ID] = cloneExecution(e)
	return nil
}

func (s *MemoryStore) SaveExecution(_ context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[e.ID]; !ok {
		return fmt.Errorf("execution %s: %w", e.ID, ErrNotFound)
	}
	s.executions[e.ID] = cloneExecution(e)
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, id string) (*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	return cloneExecution(e), nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, workflowID string, offset, limit int) ([]*domain.Execution, error) {
	s.mu.RLock()
	var all []*domain.Execution
	for _, e := range s.executions {
		if e.WorkflowID == workflowID {
			all = append(all, cloneExecution(e))
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID > all[j].ID
	})
	lo, hi := page(len(all), offset, limit)
	return all[lo:hi], nil
}
