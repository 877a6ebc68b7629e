// Package workflow runs workflow executions: it resolves both connections,
// copies every table mapping in declared order and keeps the durable
// execution record current.
//
// The table copy runs on a worker goroutine. Its log lines and progress
// counters travel over a channel to the goroutine that owns the execution
// record, which is the only writer of that record. The worker waits a
// bounded time for each update to be persisted and carries on if it is not.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"maskflow/internal/copier"
	"maskflow/internal/db"
	"maskflow/internal/domain"
	"maskflow/internal/logger"
	"maskflow/internal/masking"
	"maskflow/internal/metrics"
	"maskflow/internal/skiplog"
	"maskflow/internal/store"
)

const (
	DefaultProgressTimeout = 10 * time.Second
	DefaultOpenTimeout     = 60 * time.Second
)

// Decrypter opens sealed password references. *secrets.Box satisfies it.
type Decrypter interface {
	Decrypt(ref string) (string, error)
}

// Options configure an Executor. Zero values take the defaults.
type Options struct {
	PageSize        int
	ProgressTimeout time.Duration
	OpenTimeout     time.Duration
	MaskCacheSize   int
	// AuditDir receives one CSV of unmasked cells per execution; "" disables it.
	AuditDir string
	// Admins may run any workflow regardless of owner.
	Admins []string
	Log    *logger.Logger
}

// Result is the terminal state of one execution.
type Result struct {
	ExecutionID      string
	Status           domain.ExecutionStatus
	RecordsProcessed int64
	ErrorMessage     string
}

// Executor runs workflows. It is safe for concurrent use; every execution
// gets its own adapters, masker and audit file.
type Executor struct {
	store     store.Store
	secrets   Decrypter
	registry  *db.Registry
	validator *domain.ValidationService
	opts      Options
	now       func() time.Time
}

// NewExecutor wires an Executor.
func NewExecutor(st store.Store, sec Decrypter, reg *db.Registry, opts Options) *Executor {
	if opts.ProgressTimeout <= 0 {
		opts.ProgressTimeout = DefaultProgressTimeout
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	return &Executor{
		store:     st,
		secrets:   sec,
		registry:  reg,
		validator: domain.NewValidationService(),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartExecution creates the RUNNING record for a new execution so a caller
// can hand its id out before the run begins.
func (x *Executor) StartExecution(ctx context.Context, workflowID, userID string) (*domain.Execution, error) {
	e := &domain.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		UserID:     userID,
		Status:     domain.ExecutionRunning,
		StartedAt:  x.now(),
		Logs:       []string{},
	}
	if err := x.store.CreateExecution(ctx, e); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	return e, nil
}

// ExecuteWorkflow runs workflowID as userID. When existingExecutionID is
// set the run continues that RUNNING record instead of creating one.
//
// Every call that gets as far as an execution record leaves it terminal:
// COMPLETED, or FAILED with a classified error message. Once the caller is
// authorized the workflow itself goes RUNNING and ends COMPLETED or FAILED
// with the execution. The returned error is the run failure (a *Error) or a
// persistence failure.
func (x *Executor) ExecuteWorkflow(ctx context.Context, workflowID, userID string, existingExecutionID *string) (*Result, error) {
	rec, err := x.execution(ctx, workflowID, userID, existingExecutionID)
	if err != nil {
		return nil, err
	}
	log := x.opts.Log.WithExecution(rec.ID, workflowID)
	start := time.Now()

	events := make(chan update)
	var (
		total  int64
		runErr error
	)
	w := &worker{x: x, execID: rec.ID, workflowID: workflowID, userID: userID, events: events, log: log}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		total, runErr = w.run(gctx)
		return nil
	})
	g.Go(func() error {
		for u := range events {
			rec.Logs = append(rec.Logs, u.line)
			if u.progress {
				rec.RecordsProcessed = u.records
			}
			u.done <- x.persist(ctx, rec)
		}
		return nil
	})
	_ = g.Wait()

	done := x.now()
	rec.CompletedAt = &done
	if runErr == nil {
		rec.Status = domain.ExecutionCompleted
		rec.RecordsProcessed = total
		rec.Logs = append(rec.Logs, fmt.Sprintf("Workflow completed successfully. Total records: %d", total))
		log.WithField("records", total).Info("workflow completed")
	} else {
		rec.Status = domain.ExecutionFailed
		rec.ErrorMessage = runErr.Error()
		rec.Logs = append(rec.Logs, "Workflow failed: "+rec.ErrorMessage)
		log.WithError(runErr).Error("workflow failed")
	}
	metrics.RecordStep(workflowID, "execution", runErr, time.Since(start))

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.opts.ProgressTimeout)
	defer cancel()
	saveErr := x.store.SaveExecution(saveCtx, rec)
	if w.claimed {
		status := domain.WorkflowCompleted
		if runErr != nil {
			status = domain.WorkflowFailed
		}
		x.markWorkflow(saveCtx, workflowID, status, log)
	}
	if saveErr != nil {
		log.WithError(saveErr).Error("failed to persist terminal execution state")
		return x.result(rec), errors.Join(runErr, fmt.Errorf("save execution %s: %w", rec.ID, saveErr))
	}
	return x.result(rec), runErr
}

// markWorkflow moves the workflow itself to status. Failures are logged.
func (x *Executor) markWorkflow(ctx context.Context, workflowID string, status domain.WorkflowStatus, log *logrus.Entry) {
	if err := x.store.SetWorkflowStatus(ctx, workflowID, status); err != nil {
		log.WithError(err).WithField("status", status).Warn("failed to update workflow status")
	}
}

func (x *Executor) result(rec *domain.Execution) *Result {
	return &Result{
		ExecutionID:      rec.ID,
		Status:           rec.Status,
		RecordsProcessed: rec.RecordsProcessed,
		ErrorMessage:     rec.ErrorMessage,
	}
}

// execution loads the existing RUNNING record or creates a new one.
func (x *Executor) execution(ctx context.Context, workflowID, userID string, existingID *string) (*domain.Execution, error) {
	if existingID == nil || *existingID == "" {
		return x.StartExecution(ctx, workflowID, userID)
	}
	rec, err := x.store.GetExecution(ctx, *existingID)
	if errors.Is(err, store.ErrNotFound) {
		rec = &domain.Execution{
			ID: *existingID, WorkflowID: workflowID, UserID: userID,
			Status: domain.ExecutionRunning, StartedAt: x.now(), Logs: []string{},
		}
		if err := x.store.CreateExecution(ctx, rec); err != nil {
			return nil, fmt.Errorf("create execution: %w", err)
		}
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", *existingID, err)
	}
	if rec.Terminal() {
		return nil, fmt.Errorf("execution %s already finished with status %s", rec.ID, rec.Status)
	}
	if rec.WorkflowID != workflowID {
		return nil, fmt.Errorf("execution %s belongs to workflow %s, not %s", rec.ID, rec.WorkflowID, workflowID)
	}
	return rec, nil
}

// persist saves the record within the progress timeout.
func (x *Executor) persist(ctx context.Context, rec *domain.Execution) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.opts.ProgressTimeout)
	defer cancel()
	return x.store.SaveExecution(ctx, rec)
}

// update is one execution-log line sent from the worker to the record owner.
type update struct {
	line     string
	progress bool
	records  int64 // cumulative for the execution when progress is set
	done     chan error
}

// worker runs the copy for one execution. It never touches the record.
type worker struct {
	x          *Executor
	execID     string
	workflowID string
	userID     string
	events     chan<- update
	log        *logrus.Entry

	claimed   bool  // workflow moved to RUNNING by this run
	completed int64 // records of the tables already finished
}

// send hands a line to the record owner and waits, at most ProgressTimeout
// in total, for it to be persisted.
func (w *worker) send(line string, progress bool, records int64) {
	u := update{line: line, progress: progress, records: records, done: make(chan error, 1)}
	timeout := w.x.opts.ProgressTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case w.events <- u:
	case <-timer.C:
		w.log.Warnf("Failed to update progress: owner did not accept the update within %s", timeout)
		return
	}
	select {
	case err := <-u.done:
		if err != nil {
			w.log.WithError(err).Warn("Failed to update progress")
		}
	case <-timer.C:
		w.log.Warnf("Failed to update progress: not persisted within %s", timeout)
	}
}

func (w *worker) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.log.Info(msg)
	w.send(msg, false, 0)
}

func (w *worker) run(ctx context.Context) (int64, error) {
	x := w.x
	wf, err := x.store.GetWorkflow(ctx, w.workflowID)
	if err != nil {
		w.logf("Workflow execution started for '%s'", w.workflowID)
		return 0, newError(ClassConfiguration, "load workflow", err)
	}
	w.logf("Workflow execution started for '%s'", wf.Name)

	if !wf.Active {
		return 0, newError(ClassConfiguration, "workflow "+wf.ID, ErrInactive)
	}
	if wf.OwnerID != w.userID && !slices.Contains(x.opts.Admins, w.userID) {
		return 0, newError(ClassConfiguration, "user "+w.userID, ErrNotOwner)
	}
	x.markWorkflow(ctx, wf.ID, domain.WorkflowRunning, w.log)
	w.claimed = true

	if err := x.validator.ValidateForExecution(wf); err != nil {
		return 0, newError(ClassConfiguration, "workflow "+wf.ID, err)
	}

	src, err := w.open(ctx, "source", wf.SourceConnectionID)
	if err != nil {
		return 0, err
	}
	defer w.close(src, "source")
	dst, err := w.open(ctx, "destination", wf.DestinationConnectionID)
	if err != nil {
		return 0, err
	}
	defer w.close(dst, "destination")
	w.logf("Database connections established successfully")

	audit, err := skiplog.ForExecution(x.opts.AuditDir, w.execID)
	if err != nil {
		w.log.WithError(err).Warn("unmasked-cell audit disabled")
		audit = nil
	}
	defer func() {
		if err := audit.Close(); err != nil {
			w.log.WithError(err).Warn("close unmasked-cell audit")
		}
	}()

	proc := copier.New(masking.NewMasker(x.opts.MaskCacheSize), copier.Options{
		PageSize: x.opts.PageSize,
		Workflow: wf.ID,
		Audit:    audit,
		Log:      w.log,
	})

	w.logf("Starting data masking for %d table(s)", len(wf.TableMappings))
	for _, tm := range wf.TableMappings {
		w.logf("Processing table %s...", tm.SourceTable)
		n, err := proc.CopyTable(ctx, src, dst, tm, w.emit)
		if err != nil {
			return w.completed + n, classifyCopy(tm.SourceTable, err)
		}
		w.completed += n
	}
	if p := audit.Path(); p != "" {
		for _, r := range audit.Totals() {
			w.log.WithFields(logrus.Fields{"reason": r.Reason, "count": r.Count, "file": p}).Warn("cells left unmasked")
		}
	}
	return w.completed, nil
}

// emit forwards copier events as execution-log lines.
func (w *worker) emit(ev copier.Event) {
	w.send(ev.Message, ev.Progress, w.completed+ev.Records)
}

// open resolves, decrypts and connects one side of the workflow.
func (w *worker) open(ctx context.Context, role, connectionID string) (db.Adapter, error) {
	x := w.x
	c, err := x.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, newError(ClassConfiguration, fmt.Sprintf("load %s connection %s", role, connectionID), err)
	}
	if !c.Active {
		return nil, newError(ClassConfiguration, fmt.Sprintf("%s connection %s", role, c.ID), ErrInactive)
	}
	if !x.registry.Supports(c.Kind) {
		return nil, newError(ClassConfiguration, fmt.Sprintf("%s connection %s", role, c.ID),
			fmt.Errorf("unsupported backend kind %q", c.Kind))
	}
	password, err := x.secrets.Decrypt(c.PasswordRef)
	if err != nil {
		return nil, classifySecret(role, err)
	}
	a, err := x.registry.New(db.ParamsFromConnection(*c, password))
	if err != nil {
		return nil, newError(ClassConfiguration, fmt.Sprintf("%s connection %s", role, c.ID), err)
	}

	log := x.opts.Log.WithConnection(c.ID, string(c.Kind)).WithField("execution_id", w.execID)
	log.Debugf("connecting to %s", db.ParamsFromConnection(*c, ""))
	octx, cancel := context.WithTimeout(ctx, x.opts.OpenTimeout)
	defer cancel()
	if err := a.Connect(octx); err != nil {
		_ = a.Close(context.WithoutCancel(ctx))
		return nil, classifyConnect(role, err)
	}
	return a, nil
}

func (w *worker) close(a db.Adapter, role string) {
	if err := a.Close(context.Background()); err != nil {
		w.log.WithError(err).Warnf("close %s adapter", role)
	}
}
