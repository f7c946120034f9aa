package models

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

var now = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func TestCollectFromRegistered(t *testing.T) {
	tst := Test{TestID: "cbc", Status: TestStatusRegistered}
	if err := tst.Collect("ORD-1", "MAIN2025001", "tech", now); err != nil {
		t.Fatal(err)
	}
	if tst.Status != TestStatusCollected || tst.SampleID != "MAIN2025001" {
		t.Fatalf("%+v", tst)
	}
	if tst.CollectedTimestamp == nil || !tst.CollectedTimestamp.Equal(now) {
		t.Fatalf("timestamp %v", tst.CollectedTimestamp)
	}
	if len(tst.Barcoding) != 1 || tst.Barcoding[0].Action != BarcodeActionCollect {
		t.Fatalf("audit %+v", tst.Barcoding)
	}
}

func TestCollectRequiresSampleID(t *testing.T) {
	tst := Test{TestID: "cbc", Status: TestStatusRegistered}
	var ve *utils.ValidationError
	if err := tst.Collect("ORD-1", "", "tech", now); !errors.As(err, &ve) {
		t.Fatalf("got %v", err)
	}
	if tst.Status != TestStatusRegistered {
		t.Fatalf("failed collect mutated test: %+v", tst)
	}
}

func TestCollectIllegalFromCollected(t *testing.T) {
	tst := Test{TestID: "cbc", Status: TestStatusCollected, SampleID: "MAIN2025001"}
	var ite *utils.IllegalTransitionError
	err := tst.Collect("ORD-1", "MAIN2025002", "tech", now)
	if !errors.As(err, &ite) {
		t.Fatalf("got %v", err)
	}
	if ite.OrderID != "ORD-1" || ite.TestID != "cbc" {
		t.Fatalf("error ids %+v", ite)
	}
	if tst.SampleID != "MAIN2025001" {
		t.Fatalf("sample id replaced: %+v", tst)
	}
}

func TestCompleteFromAnyNonTerminal(t *testing.T) {
	for _, from := range []TestStatus{TestStatusRegistered, TestStatusCollected, TestStatusRecollected, TestStatusCompleted} {
		tst := Test{TestID: "cbc", Status: from}
		if err := tst.Complete("ORD-1", "11.2", "tech@lab", "Ko Aung", now); err != nil {
			t.Fatalf("from %s: %v", from, err)
		}
		if tst.Status != TestStatusCompleted || tst.Result != "11.2" {
			t.Fatalf("from %s: %+v", from, tst)
		}
	}

	tst := Test{TestID: "cbc", Status: TestStatusAuthenticated, Result: "11.2"}
	var ite *utils.IllegalTransitionError
	if err := tst.Complete("ORD-1", "12.0", "tech@lab", "Ko Aung", now); !errors.As(err, &ite) {
		t.Fatalf("got %v", err)
	}
	if tst.Result != "11.2" {
		t.Fatalf("authenticated result overwritten: %+v", tst)
	}
}

func TestCompleteRequiresResult(t *testing.T) {
	tst := Test{TestID: "cbc", Status: TestStatusCollected}
	var ve *utils.ValidationError
	if err := tst.Complete("ORD-1", "", "tech@lab", "Ko Aung", now); !errors.As(err, &ve) {
		t.Fatalf("got %v", err)
	}
}

func TestAuthenticateOnlyFromCompleted(t *testing.T) {
	tst := Test{TestID: "cbc", Status: TestStatusCompleted, Result: "11.2"}
	if err := tst.Authenticate("ORD-1", "Dr. Mya", now); err != nil {
		t.Fatal(err)
	}
	if tst.Status != TestStatusAuthenticated || tst.AuthenticatedBy != "Dr. Mya" {
		t.Fatalf("%+v", tst)
	}

	for _, from := range []TestStatus{TestStatusRegistered, TestStatusCollected, TestStatusRecollected, TestStatusAuthenticated} {
		tst := Test{TestID: "cbc", Status: from, Result: "x"}
		var ite *utils.IllegalTransitionError
		if err := tst.Authenticate("ORD-1", "Dr. Mya", now); !errors.As(err, &ite) {
			t.Fatalf("from %s: %v", from, err)
		}
	}
}

func TestAuthenticateRequiresResult(t *testing.T) {
	tst := Test{TestID: "cbc", Status: TestStatusCompleted}
	var ve *utils.ValidationError
	if err := tst.Authenticate("ORD-1", "Dr. Mya", now); !errors.As(err, &ve) {
		t.Fatalf("got %v", err)
	}
}

func TestRecollectClearsSampleID(t *testing.T) {
	tst := Test{TestID: "cbc", Status: TestStatusCollected, SampleID: "MAIN2025001"}
	if err := tst.Recollect("ORD-1", "clotted", "tech", now); err != nil {
		t.Fatal(err)
	}
	if tst.Status != TestStatusRecollected || tst.SampleID != "" {
		t.Fatalf("%+v", tst)
	}
	if tst.Barcoding[0].Reason != "clotted" {
		t.Fatalf("audit %+v", tst.Barcoding)
	}

	// Recollected tests can be collected again under a fresh id.
	if err := tst.Collect("ORD-1", "MAIN2025002", "tech", now); err != nil {
		t.Fatal(err)
	}
	if tst.SampleID != "MAIN2025002" {
		t.Fatalf("%+v", tst)
	}
}

func TestRecollectTerminalRejected(t *testing.T) {
	tst := Test{TestID: "cbc", Status: TestStatusAuthenticated, Result: "11.2"}
	var ite *utils.IllegalTransitionError
	if err := tst.Recollect("ORD-1", "late", "tech", now); !errors.As(err, &ite) {
		t.Fatalf("got %v", err)
	}
}

func TestAuditTrailAccumulates(t *testing.T) {
	tst := Test{TestID: "cbc", Status: TestStatusRegistered}
	_ = tst.Collect("ORD-1", "MAIN2025001", "tech", now)
	_ = tst.Recollect("ORD-1", "clotted", "tech", now.Add(time.Minute))
	_ = tst.Collect("ORD-1", "MAIN2025002", "tech", now.Add(2*time.Minute))
	_ = tst.Complete("ORD-1", "11.2", "tech@lab", "Ko Aung", now.Add(3*time.Minute))

	if len(tst.Barcoding) != 4 {
		t.Fatalf("audit %+v", tst.Barcoding)
	}
	wantActions := []BarcodeAction{BarcodeActionCollect, BarcodeActionRecollect, BarcodeActionCollect, BarcodeActionComplete}
	for i, entry := range tst.Barcoding {
		if entry.Action != wantActions[i] {
			t.Fatalf("entry %d: %+v", i, entry)
		}
	}
}
