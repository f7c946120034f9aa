package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bitbucket.org/mmdatafocus/lims_backend/config"
	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

const bulkRunLockTTL = 10 * time.Minute

// BulkItem is one order selected for a bulk run.
type BulkItem struct {
	PatientID string            `json:"patient_id" binding:"required"`
	OrderID   string            `json:"order_id" binding:"required"`
	Results   map[string]string `json:"results,omitempty"`
}

// RunLogEntry is the stable per-order record of a bulk run.
type RunLogEntry struct {
	Index   int    `json:"index"`
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// BulkRun is the live state of one batch. It holds a mutex and must only be
// handled by pointer; Snapshot() produces the copyable view.
type BulkRun struct {
	ID         string
	Operation  models.BulkOperation
	BranchCode string
	State      models.RunState
	Processed  int
	Succeeded  int
	Failed     int
	Remaining  int
	Logs       []RunLogEntry
	Labels     []models.BarcodeLabel
	StartedAt  time.Time
	FinishedAt *time.Time

	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
}

// RunSnapshot is a consistent, lock-free copy of a run for API responses.
type RunSnapshot struct {
	ID         string                `json:"id"`
	Operation  models.BulkOperation  `json:"operation"`
	BranchCode string                `json:"branchCode,omitempty"`
	State      models.RunState       `json:"state"`
	Processed  int                   `json:"processed"`
	Succeeded  int                   `json:"succeeded"`
	Failed     int                   `json:"failed"`
	Remaining  int                   `json:"remaining"`
	Logs       []RunLogEntry         `json:"logs"`
	Labels     []models.BarcodeLabel `json:"labels,omitempty"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

// Cancel requests a cooperative stop. Orders already processed stay
// processed; the run stops before the next order.
func (r *BulkRun) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

func (r *BulkRun) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// Wait blocks until the run loop has finished.
func (r *BulkRun) Wait() {
	<-r.done
}

// Snapshot returns a consistent copy for API responses.
func (r *BulkRun) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := RunSnapshot{
		ID:         r.ID,
		Operation:  r.Operation,
		BranchCode: r.BranchCode,
		State:      r.State,
		Processed:  r.Processed,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Remaining:  r.Remaining,
		Logs:       append([]RunLogEntry(nil), r.Logs...),
		Labels:     append([]models.BarcodeLabel(nil), r.Labels...),
		StartedAt:  r.StartedAt,
	}
	if r.FinishedAt != nil {
		ts := *r.FinishedAt
		cp.FinishedAt = &ts
	}
	return cp
}

// BulkRunner executes batches sequentially with per-order failure isolation:
// one bad order is logged and skipped, never rolled into its neighbours.
type BulkRunner struct {
	Engine *Engine
	Logger *logrus.Logger

	mu   sync.RWMutex
	runs map[string]*BulkRun
}

func NewBulkRunner(engine *Engine, logger *logrus.Logger) *BulkRunner {
	return &BulkRunner{
		Engine: engine,
		Logger: logger,
		runs:   make(map[string]*BulkRun),
	}
}

// Get returns a registered run by id.
func (b *BulkRunner) Get(id string) (*BulkRun, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	run, ok := b.runs[id]
	return run, ok
}

// Start validates the batch, registers a run and launches the loop in the
// background. A per-branch redis lock prevents overlapping runs from two
// terminals; when redis is unavailable the run proceeds unlocked.
func (b *BulkRunner) Start(ctx context.Context, op models.BulkOperation, items []BulkItem, reason string) (*BulkRun, error) {
	if !op.Valid() {
		return nil, &utils.ValidationError{Field: "operation", Reason: "unknown bulk operation " + string(op)}
	}
	if len(items) == 0 {
		return nil, &utils.ValidationError{Field: "orders", Reason: "empty selection"}
	}
	if op == models.BulkOperationRecollect && reason == "" {
		return nil, &utils.ValidationError{Field: "reason", Reason: "required for recollect"}
	}

	branch, _ := utils.GetBranchCodeFromContext(ctx)
	lock := b.obtainBranchLock(ctx, branch)

	run := &BulkRun{
		ID:         uuid.NewString(),
		Operation:  op,
		BranchCode: branch,
		State:      models.RunStateRunning,
		Remaining:  len(items),
		StartedAt:  time.Now().UTC(),
		done:       make(chan struct{}),
	}
	b.mu.Lock()
	b.runs[run.ID] = run
	b.mu.Unlock()

	// The run outlives the HTTP request; keep the caller's identity but not
	// its deadline.
	runCtx := detachIdentity(ctx)
	go b.run(runCtx, run, items, reason, lock)
	return run, nil
}

func (b *BulkRunner) run(ctx context.Context, run *BulkRun, items []BulkItem, reason string, lock *redislock.Lock) {
	defer close(run.done)
	if lock != nil {
		defer func() { _ = lock.Release(ctx) }()
	}

	tracer := otel.Tracer("workflow")
	ctx, span := tracer.Start(ctx, "bulk_run", trace.WithAttributes(
		attribute.String("run_id", run.ID),
		attribute.String("operation", string(run.Operation)),
		attribute.Int("orders", len(items)),
	))
	defer span.End()

	for i, item := range items {
		if run.isCancelled() {
			b.finish(run, models.RunStateCancelled)
			return
		}
		err := b.processOne(ctx, run.Operation, item, reason, run)
		run.mu.Lock()
		run.Processed++
		run.Remaining--
		entry := RunLogEntry{Index: i, OrderID: item.OrderID, Outcome: "succeeded"}
		if err != nil {
			run.Failed++
			entry.Outcome = "failed"
			entry.Error = err.Error()
		} else {
			run.Succeeded++
		}
		run.Logs = append(run.Logs, entry)
		run.mu.Unlock()

		if err != nil && b.Logger != nil {
			config.LogError(b.Logger, "workflow", "BulkRunner.run", run.ID+"/"+item.OrderID, item, err)
		}
	}
	b.finish(run, models.RunStateCompleted)
}

func (b *BulkRunner) processOne(ctx context.Context, op models.BulkOperation, item BulkItem, reason string, run *BulkRun) error {
	ref, err := b.Engine.Repo.Resolve(ctx, item.PatientID, item.OrderID)
	if err != nil {
		return err
	}
	switch op {
	case models.BulkOperationBarcodes:
		plan, err := b.Engine.GenerateBarcodes(ctx, ref)
		if err != nil {
			return err
		}
		run.mu.Lock()
		run.Labels = append(run.Labels, plan.Labels...)
		run.mu.Unlock()
		return nil
	case models.BulkOperationCollect:
		_, err := b.Engine.MarkCollected(ctx, ref)
		return err
	case models.BulkOperationResults:
		_, err := b.Engine.RecordResults(ctx, ref, item.Results)
		return err
	case models.BulkOperationAuthenticate:
		_, err := b.Engine.Authenticate(ctx, ref)
		return err
	case models.BulkOperationRecollect:
		_, err := b.Engine.Recollect(ctx, ref, reason)
		return err
	}
	return &utils.ValidationError{Field: "operation", Reason: "unknown bulk operation " + string(op)}
}

func (b *BulkRunner) finish(run *BulkRun, state models.RunState) {
	now := time.Now().UTC()
	run.mu.Lock()
	run.State = state
	run.FinishedAt = &now
	run.mu.Unlock()
}

func (b *BulkRunner) obtainBranchLock(ctx context.Context, branch string) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil || branch == "" {
		return nil
	}
	lock, err := locker.Obtain(ctx, "bulk_run:"+branch, bulkRunLockTTL, nil)
	if err != nil {
		// Best-effort: a lost lock degrades to unguarded, it never blocks
		// the run.
		if b.Logger != nil && err != redislock.ErrNotObtained {
			config.LogError(b.Logger, "workflow", "obtainBranchLock", branch, nil, err)
		}
		return nil
	}
	return lock
}

// detachIdentity copies the request identity onto a fresh context so the
// background loop survives the HTTP request's cancellation.
func detachIdentity(ctx context.Context) context.Context {
	out := context.Background()
	if v, ok := utils.GetActorEmailFromContext(ctx); ok {
		out = utils.SetActorEmailInContext(out, v)
	}
	if v, ok := utils.GetActorNameFromContext(ctx); ok {
		out = utils.SetActorNameInContext(out, v)
	}
	if v, ok := utils.GetBranchCodeFromContext(ctx); ok {
		out = utils.SetBranchCodeInContext(out, v)
	}
	if v, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		out = utils.SetCorrelationIdInContext(out, v)
	}
	return out
}
