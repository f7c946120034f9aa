package models

import (
	"time"

	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

// BarcodeEntry is one line of a test's append-only lifecycle audit log.
type BarcodeEntry struct {
	Action    BarcodeAction `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user"`
	Reason    string        `json:"reason,omitempty"`
}

// Test is one ordered lab test nested inside its Order document.
type Test struct {
	TestID     string     `json:"test_id"`
	TestName   string     `json:"test_name"`
	SampleType string     `json:"sample_type"`
	Status     TestStatus `json:"status"`
	SampleID   string     `json:"sample_id,omitempty"`
	Result     string     `json:"result,omitempty"`
	Unit       string     `json:"unit,omitempty"`

	CollectedTimestamp   *time.Time `json:"collectedTimestamp,omitempty"`
	CompletedTimestamp   *time.Time `json:"completedTimestamp,omitempty"`
	RecollectedTimestamp *time.Time `json:"recollectedTimestamp,omitempty"`
	AuthenticatedAt      *time.Time `json:"authenticated_at,omitempty"`
	AuthenticatedBy      string     `json:"authenticated_by,omitempty"`
	LastUpdated          *time.Time `json:"last_updated,omitempty"`
	UpdatedBy            string     `json:"updated_by,omitempty"`

	Barcoding []BarcodeEntry `json:"barcoding,omitempty"`
}

// HasSampleID reports whether a specimen identifier is already assigned.
func (t *Test) HasSampleID() bool { return t.SampleID != "" }

func (t *Test) appendAudit(action BarcodeAction, user, reason string, now time.Time) {
	t.Barcoding = append(t.Barcoding, BarcodeEntry{
		Action:    action,
		Timestamp: now,
		User:      user,
		Reason:    reason,
	})
}

// Collect moves a registered/recollected test to collected under the given
// sample identifier. The sampleID must already be allocated by the caller.
func (t *Test) Collect(orderID, sampleID, actor string, now time.Time) error {
	if sampleID == "" {
		return &utils.ValidationError{Field: "sample_id", Reason: "required for collect"}
	}
	if !t.Status.AwaitingCollection() {
		return &utils.IllegalTransitionError{
			OrderID: orderID,
			TestID:  t.TestID,
			From:    string(t.Status),
			To:      string(TestStatusCollected),
		}
	}
	ts := now
	t.Status = TestStatusCollected
	t.SampleID = sampleID
	t.CollectedTimestamp = &ts
	t.appendAudit(BarcodeActionCollect, actor, "", now)
	return nil
}

// Complete records a result value. A test that was never collected may still
// be completed directly (walk-in results), matching the lab's workflow.
func (t *Test) Complete(orderID, result, actorEmail, actorName string, now time.Time) error {
	if result == "" {
		return &utils.ValidationError{Field: "result", Reason: "required for complete"}
	}
	switch t.Status {
	case TestStatusCollected, TestStatusRegistered, TestStatusRecollected, TestStatusCompleted:
	default:
		return &utils.IllegalTransitionError{
			OrderID: orderID,
			TestID:  t.TestID,
			From:    string(t.Status),
			To:      string(TestStatusCompleted),
		}
	}
	ts := now
	t.Result = result
	t.Status = TestStatusCompleted
	t.CompletedTimestamp = &ts
	t.LastUpdated = &ts
	t.UpdatedBy = actorEmail
	t.appendAudit(BarcodeActionComplete, actorName, "", now)
	return nil
}

// Authenticate verifies a completed result. Only completed tests carrying a
// result may be authenticated; authenticated is terminal.
func (t *Test) Authenticate(orderID, actorName string, now time.Time) error {
	if t.Status != TestStatusCompleted {
		return &utils.IllegalTransitionError{
			OrderID: orderID,
			TestID:  t.TestID,
			From:    string(t.Status),
			To:      string(TestStatusAuthenticated),
		}
	}
	if t.Result == "" {
		return &utils.ValidationError{Field: "result", Reason: "authenticate requires an existing result"}
	}
	ts := now
	t.Status = TestStatusAuthenticated
	t.AuthenticatedAt = &ts
	t.AuthenticatedBy = actorName
	t.LastUpdated = &ts
	t.appendAudit(BarcodeActionAuthenticate, actorName, "", now)
	return nil
}

// Recollect sends the test back for a fresh specimen. The sample identifier
// is cleared so the next collect allocates a new one.
func (t *Test) Recollect(orderID, reason, actor string, now time.Time) error {
	if t.Status.IsTerminal() {
		return &utils.IllegalTransitionError{
			OrderID: orderID,
			TestID:  t.TestID,
			From:    string(t.Status),
			To:      string(TestStatusRecollected),
		}
	}
	ts := now
	t.Status = TestStatusRecollected
	t.SampleID = ""
	t.RecollectedTimestamp = &ts
	t.appendAudit(BarcodeActionRecollect, actor, reason, now)
	return nil
}
