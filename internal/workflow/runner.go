package workflow

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"maskflow/internal/domain"
	"maskflow/internal/store"
)

// Runner is the job invocation boundary: Submit records a RUNNING
// execution, returns its id at once and runs it in the background; Status
// polls it. At most maxConcurrent executions run at a time and a workflow
// never has two in flight.
type Runner struct {
	exec  *Executor
	store store.Store
	sem   *semaphore.Weighted
	ctx   context.Context

	mu       sync.Mutex
	inflight map[string]string // workflow id -> execution id
	wg       sync.WaitGroup
}

// NewRunner runs executions on exec. ctx bounds every background run.
func NewRunner(ctx context.Context, exec *Executor, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{
		exec:     exec,
		store:    exec.store,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		ctx:      ctx,
		inflight: map[string]string{},
	}
}

// Submit starts workflowID as userID and returns the execution id.
func (r *Runner) Submit(ctx context.Context, workflowID, userID string) (string, error) {
	if _, err := r.store.GetWorkflow(ctx, workflowID); err != nil {
		return "", fmt.Errorf("submit %s: %w", workflowID, err)
	}

	r.mu.Lock()
	if id, ok := r.inflight[workflowID]; ok {
		r.mu.Unlock()
		return "", fmt.Errorf("submit %s: %w (execution %s)", workflowID, ErrAlreadyRunning, id)
	}
	r.inflight[workflowID] = ""
	r.mu.Unlock()

	rec, err := r.exec.StartExecution(ctx, workflowID, userID)
	if err != nil {
		r.release(workflowID)
		return "", err
	}
	r.mu.Lock()
	r.inflight[workflowID] = rec.ID
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(workflowID)
		r.run(workflowID, userID, rec.ID)
	}()
	return rec.ID, nil
}

func (r *Runner) run(workflowID, userID, execID string) {
	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		// Never started: the record still has to end terminal.
		r.abandon(execID, err)
		return
	}
	defer r.sem.Release(1)

	if _, err := r.exec.ExecuteWorkflow(r.ctx, workflowID, userID, &execID); err != nil {
		r.exec.opts.Log.WithExecution(execID, workflowID).WithError(err).Warn("execution failed")
	}
}

// abandon fails an execution that never got a worker.
func (r *Runner) abandon(execID string, cause error) {
	ctx := context.WithoutCancel(r.ctx)
	rec, err := r.store.GetExecution(ctx, execID)
	if err != nil {
		return
	}
	done := r.exec.now()
	rec.Status = domain.ExecutionFailed
	rec.CompletedAt = &done
	rec.ErrorMessage = newError(ClassConfiguration, "execution not started", cause).Error()
	rec.Logs = append(rec.Logs, "Workflow failed: "+rec.ErrorMessage)
	_ = r.store.SaveExecution(ctx, rec)
}

func (r *Runner) release(workflowID string) {
	r.mu.Lock()
	delete(r.inflight, workflowID)
	r.mu.Unlock()
}

// Status returns the current execution record.
func (r *Runner) Status(ctx context.Context, executionID string) (*domain.Execution, error) {
	return r.store.GetExecution(ctx, executionID)
}

// Running reports the execution in flight for workflowID, if any.
func (r *Runner) Running(workflowID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.inflight[workflowID]
	return id, ok
}

// Wait blocks until every submitted execution has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
