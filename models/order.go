package models

import (
	"time"

	"bitbucket.org/mmdatafocus/lims_backend/utils"
	"github.com/shopspring/decimal"
)

// Order is one lab order owned by a patient. Financial totals are written by
// registration/billing and are read-only for the lifecycle engine.
type Order struct {
	OrderID     string      `json:"order_id"`
	Status      OrderStatus `json:"status"`
	BranchCode  string      `json:"branchCode,omitempty"`
	PatientType string      `json:"patient_type,omitempty"`
	ContractID  string      `json:"contract_id,omitempty"`
	OrderDate   time.Time   `json:"order_date"`

	Amount   decimal.Decimal `json:"amount"`
	Paid     decimal.Decimal `json:"paid"`
	Discount decimal.Decimal `json:"discount"`

	CollectedAt     *time.Time `json:"collected_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CompletedBy     string     `json:"completed_by,omitempty"`
	AuthenticatedAt *time.Time `json:"authenticated_at,omitempty"`
	AuthenticatedBy string     `json:"authenticated_by,omitempty"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`

	Tests []Test `json:"tests"`
}

// FindTest returns a pointer into Tests for in-place mutation.
func (o *Order) FindTest(testID string) *Test {
	for i := range o.Tests {
		if o.Tests[i].TestID == testID {
			return &o.Tests[i]
		}
	}
	return nil
}

// TransitionFlags records which test transitions happened during one
// operation on an order; the aggregation rule consumes it afterwards.
type TransitionFlags struct {
	Collected     bool
	Completed     bool
	Authenticated bool
}

func (f *TransitionFlags) Merge(other TransitionFlags) {
	f.Collected = f.Collected || other.Collected
	f.Completed = f.Completed || other.Completed
	f.Authenticated = f.Authenticated || other.Authenticated
}

func (f TransitionFlags) Any() bool {
	return f.Collected || f.Completed || f.Authenticated
}

// ApplyAggregation derives the order status from the transitions that
// occurred in this operation. Order status is sticky and forward-only:
// completion on first occurrence, never downgraded by a later collect.
// Returns true when the order document changed.
func (o *Order) ApplyAggregation(flags TransitionFlags, actorName string, now time.Time) bool {
	changed := false
	ts := now

	if flags.Collected && o.Status.rank() < OrderStatusCollected.rank() {
		o.Status = OrderStatusCollected
		o.CollectedAt = &ts
		changed = true
	}
	if flags.Completed && o.Status.rank() < OrderStatusCompleted.rank() {
		o.Status = OrderStatusCompleted
		o.CompletedAt = &ts
		o.CompletedBy = actorName
		changed = true
	}
	if flags.Authenticated && o.Status.rank() < OrderStatusAuthenticated.rank() {
		o.Status = OrderStatusAuthenticated
		o.AuthenticatedAt = &ts
		o.AuthenticatedBy = actorName
		changed = true
	}
	if changed {
		o.LastUpdated = &ts
	}
	return changed
}

// RecollectAll forces the order and every contained test back to
// recollected in one mutation; the caller persists the whole document.
// This is the only path that moves an order status backward.
func (o *Order) RecollectAll(reason, actor string, now time.Time) error {
	if o.Status == OrderStatusAuthenticated {
		return &utils.IllegalTransitionError{
			OrderID: o.OrderID,
			From:    string(o.Status),
			To:      string(OrderStatusRecollected),
		}
	}
	for i := range o.Tests {
		if o.Tests[i].Status.IsTerminal() {
			continue
		}
		if err := o.Tests[i].Recollect(o.OrderID, reason, actor, now); err != nil {
			return err
		}
	}
	ts := now
	o.Status = OrderStatusRecollected
	o.LastUpdated = &ts
	return nil
}

// Stats summarizes an order's tests for search results and label estimates.
type OrderStats struct {
	TotalTests        int      `json:"totalTests"`
	RegisteredTests   int      `json:"registeredTests"`
	CollectedTests    int      `json:"collectedTests"`
	CompletedTests    int      `json:"completedTests"`
	Departments       []string `json:"departments"`
	EstimatedBarcodes int      `json:"estimatedBarcodes"`
}

// ComputeStats counts tests per status and estimates label volume the same
// way the registration screens do: one label per single test, plus
// ceil(rest/testsPerBarcode) grouped labels.
func (o *Order) ComputeStats(catalog TestCatalog, singleTestIDs map[string]bool, testsPerBarcode int) OrderStats {
	if testsPerBarcode <= 0 {
		testsPerBarcode = DefaultTestsPerBarcode
	}
	stats := OrderStats{TotalTests: len(o.Tests)}
	seenDepts := map[string]bool{}
	singles := 0
	for i := range o.Tests {
		t := &o.Tests[i]
		switch t.Status {
		case TestStatusRegistered:
			stats.RegisteredTests++
		case TestStatusCollected:
			stats.CollectedTests++
		case TestStatusCompleted:
			stats.CompletedTests++
		}
		if def, ok := catalog[t.TestID]; ok && def.Department != "" && !seenDepts[def.Department] {
			seenDepts[def.Department] = true
			stats.Departments = append(stats.Departments, def.Department)
		}
		if singleTestIDs[t.TestID] {
			singles++
		}
	}
	grouped := stats.TotalTests - singles
	stats.EstimatedBarcodes = singles + (grouped+testsPerBarcode-1)/testsPerBarcode
	return stats
}
