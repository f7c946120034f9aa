package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/lims_backend/config"
	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/store"
	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

// Engine drives order lifecycle operations: collect, record results,
// authenticate, recollect, and barcode generation. Every order mutation runs
// inside one store transaction; sample identifiers are allocated before the
// transaction so an aborted write can at worst leave a gap in the sequence,
// never a duplicate.
type Engine struct {
	Repo   *Repository
	Seq    *SampleSequence
	Store  store.DocumentStore
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewEngine(st store.DocumentStore, logger *logrus.Logger) *Engine {
	return &Engine{
		Repo:   NewRepository(st, logger),
		Seq:    NewSampleSequence(st, logger),
		Store:  st,
		Logger: logger,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

type collectedTest struct {
	testID     string
	testName   string
	sampleType string
}

// MarkCollected collects every test of the order that is still awaiting a
// specimen, allocating one sample identifier per test. Tests already
// collected or further along are left untouched.
func (e *Engine) MarkCollected(ctx context.Context, ref OrderRef) (*models.Order, error) {
	_, snapshot, err := e.Repo.GetOrder(ctx, ref)
	if err != nil {
		return nil, err
	}

	branch := e.branchFor(ctx, snapshot)
	assigned := make(map[string]string)
	for i := range snapshot.Tests {
		t := &snapshot.Tests[i]
		if !t.Status.AwaitingCollection() {
			continue
		}
		sampleID, err := e.Seq.NextSampleID(ctx, branch)
		if err != nil {
			return nil, err
		}
		assigned[t.TestID] = sampleID
	}
	if len(assigned) == 0 {
		return snapshot, nil
	}

	actor := utils.ActorDisplayName(ctx)
	now := e.Now()
	var collected []collectedTest

	updated, err := e.Repo.UpdateOrder(ctx, ref, func(p *models.Patient, o *models.Order) error {
		collected = collected[:0]
		var flags models.TransitionFlags
		for testID, sampleID := range assigned {
			t := o.FindTest(testID)
			if t == nil || !t.Status.AwaitingCollection() {
				continue
			}
			if err := t.Collect(o.OrderID, sampleID, actor, now); err != nil {
				return err
			}
			flags.Collected = true
			collected = append(collected, collectedTest{t.TestID, t.TestName, t.SampleType})
		}
		o.ApplyAggregation(flags, actor, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.bumpCollectionCounters(ctx, branch, collected)
	return updated, nil
}

// RecordResults completes the given tests with their result values. Every
// entry must name a test of the order; an unknown test id fails the whole
// order without persisting anything.
func (e *Engine) RecordResults(ctx context.Context, ref OrderRef, results map[string]string) (*models.Order, error) {
	if len(results) == 0 {
		return nil, &utils.ValidationError{Field: "results", Reason: "at least one test result required"}
	}
	actorEmail := utils.ActorEmail(ctx)
	actorName := utils.ActorDisplayName(ctx)
	now := e.Now()

	return e.Repo.UpdateOrder(ctx, ref, func(p *models.Patient, o *models.Order) error {
		var flags models.TransitionFlags
		for testID, result := range results {
			t := o.FindTest(testID)
			if t == nil {
				return &utils.NotFoundError{Collection: "tests", ID: ref.OrderID + "/" + testID}
			}
			if err := t.Complete(o.OrderID, result, actorEmail, actorName, now); err != nil {
				return err
			}
			flags.Completed = true
		}
		o.ApplyAggregation(flags, actorName, now)
		return nil
	})
}

// Authenticate verifies every completed test of the order. When the order
// reaches authenticated, a result-ready notification is enqueued for the
// dispatcher; enqueue failures are logged, never surfaced.
func (e *Engine) Authenticate(ctx context.Context, ref OrderRef) (*models.Order, error) {
	actorName := e.Repo.EmployeeFullName(ctx, utils.ActorEmail(ctx))
	now := e.Now()

	var patient models.Patient
	updated, err := e.Repo.UpdateOrder(ctx, ref, func(p *models.Patient, o *models.Order) error {
		var flags models.TransitionFlags
		for i := range o.Tests {
			t := &o.Tests[i]
			if t.Status != models.TestStatusCompleted {
				continue
			}
			if err := t.Authenticate(o.OrderID, actorName, now); err != nil {
				return err
			}
			flags.Authenticated = true
		}
		if !flags.Authenticated {
			return &utils.ValidationError{Field: "tests", Reason: "no completed tests to authenticate"}
		}
		o.ApplyAggregation(flags, actorName, now)
		patient = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status == models.OrderStatusAuthenticated {
		e.enqueueResultNotification(ctx, &patient, updated)
	}
	return updated, nil
}

// Recollect sends the whole order back for fresh specimens. Authenticated
// orders cannot be recollected.
func (e *Engine) Recollect(ctx context.Context, ref OrderRef, reason string) (*models.Order, error) {
	if reason == "" {
		return nil, &utils.ValidationError{Field: "reason", Reason: "required for recollect"}
	}
	actor := utils.ActorDisplayName(ctx)
	now := e.Now()

	return e.Repo.UpdateOrder(ctx, ref, func(p *models.Patient, o *models.Order) error {
		return o.RecollectAll(reason, actor, now)
	})
}

// enqueueResultNotification writes a pending WhatsApp request keyed by order
// id into the outbox document. The mobile number is normalized to E.164
// first; orders whose patient has no deliverable number are skipped rather
// than published as garbage. Best-effort: the lifecycle result stands even
// when the enqueue fails.
func (e *Engine) enqueueResultNotification(ctx context.Context, p *models.Patient, o *models.Order) {
	mobile, ok := utils.NormalizeMobile(p.Mobile)
	if !ok {
		if p.Mobile != "" && e.Logger != nil {
			config.LogError(e.Logger, "workflow", "enqueueResultNotification", o.OrderID,
				nil, fmt.Errorf("undeliverable mobile number %q for patient %s", p.Mobile, p.PatientID))
		}
		return
	}
	req := models.WhatsAppRequest{
		OrderID:        o.OrderID,
		Mobile:         mobile,
		PatientID:      p.PatientID,
		AutoPassword:   p.AutoPassword,
		WhatsAppStatus: models.WhatsAppStatusPending,
	}
	encoded, err := store.Encode(req)
	if err == nil {
		err = e.Store.SetMerge(ctx, store.CollectionWhatsAppRequests, store.DocWhatsAppOrders, store.Document{
			o.OrderID: encoded,
		})
	}
	if err != nil && e.Logger != nil {
		config.LogError(e.Logger, "workflow", "enqueueResultNotification", o.OrderID, nil, err)
	}
}

func (e *Engine) bumpCollectionCounters(ctx context.Context, branch string, collected []collectedTest) {
	for _, c := range collected {
		e.Seq.BumpSampleTypeCounter(ctx, branch, c.sampleType)
		e.Seq.BumpTestCounter(ctx, c.testID, c.testName)
	}
}

// branchFor picks the allocation branch: the order's own branch code wins,
// then the request context, then "MAIN".
func (e *Engine) branchFor(ctx context.Context, o *models.Order) string {
	if o.BranchCode != "" {
		return o.BranchCode
	}
	if branch, ok := utils.GetBranchCodeFromContext(ctx); ok && branch != "" {
		return branch
	}
	return "MAIN"
}
