package workflow

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/store"
	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

func TestResolveRebuildsIndexOnMiss(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()

	// The order is seeded after the repository exists; the first Resolve must
	// find it through a rebuild.
	seedShard(t, mem, "shard_1", map[string]models.PatientRecord{
		"pk_p1": {Details: testPatient("p1"), Orders: []models.Order{testOrder("ORD-001", registeredTest("cbc", "CBC", "Whole Blood"))}},
	})

	ref, err := engine.Repo.Resolve(ctx, "p1", "ORD-001")
	if err != nil {
		t.Fatal(err)
	}
	if ref.ShardID != "shard_1" || ref.PatientKey != "pk_p1" {
		t.Fatalf("resolved %+v", ref)
	}

	if _, err := engine.Repo.Resolve(ctx, "p1", "ORD-999"); !utils.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateOrderPersistsMutation(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	ref := seedSingleOrder(t, engine, mem, "p1", testOrder("ORD-001", registeredTest("cbc", "CBC", "Whole Blood")))

	updated, err := engine.Repo.UpdateOrder(ctx, ref, func(p *models.Patient, o *models.Order) error {
		return o.Tests[0].Collect(o.OrderID, "MAIN2025001", "tech", testNow)
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Tests[0].SampleID != "MAIN2025001" {
		t.Fatalf("returned order not updated: %+v", updated.Tests[0])
	}

	persisted := mustGetOrder(t, engine, ref)
	if persisted.Tests[0].Status != models.TestStatusCollected {
		t.Fatalf("mutation not persisted: %+v", persisted.Tests[0])
	}
	if len(persisted.Tests[0].Barcoding) != 1 {
		t.Fatalf("audit entry missing: %+v", persisted.Tests[0].Barcoding)
	}
}

func TestUpdateOrderRollsBackOnError(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()
	ref := seedSingleOrder(t, engine, mem, "p1", testOrder("ORD-001", registeredTest("cbc", "CBC", "Whole Blood")))

	boom := errors.New("boom")
	_, err := engine.Repo.UpdateOrder(ctx, ref, func(p *models.Patient, o *models.Order) error {
		o.Tests[0].Status = models.TestStatusCompleted
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}

	persisted := mustGetOrder(t, engine, ref)
	if persisted.Tests[0].Status != models.TestStatusRegistered {
		t.Fatalf("failed mutation leaked: %+v", persisted.Tests[0])
	}
}

func TestUpdateOrderDoesNotClobberSiblingPatients(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()

	seedShard(t, mem, "shard_1", map[string]models.PatientRecord{
		"pk_p1": {Details: testPatient("p1"), Orders: []models.Order{testOrder("ORD-001", registeredTest("cbc", "CBC", "Whole Blood"))}},
		"pk_p2": {Details: testPatient("p2"), Orders: []models.Order{testOrder("ORD-002", registeredTest("rbs", "RBS", "Serum"))}},
	})
	ref, err := engine.Repo.Resolve(ctx, "p1", "ORD-001")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Repo.UpdateOrder(ctx, ref, func(p *models.Patient, o *models.Order) error {
		return o.Tests[0].Collect(o.OrderID, "MAIN2025001", "tech", testNow)
	}); err != nil {
		t.Fatal(err)
	}

	other, err := engine.Repo.Resolve(ctx, "p2", "ORD-002")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := engine.Repo.GetOrder(ctx, other); err != nil {
		t.Fatalf("sibling patient lost: %v", err)
	}
}

func TestSearchFilters(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()

	seedCatalog(t, mem, models.TestCatalog{
		"cbc": {TestName: "Complete Blood Count", Department: "Hematology", SampleType: "Whole Blood"},
		"rbs": {TestName: "Random Blood Sugar", Department: "Chemistry", SampleType: "Serum"},
	})

	collected := registeredTest("cbc", "CBC", "Whole Blood")
	collected.Status = models.TestStatusCollected
	collected.SampleID = "MAIN2025001"

	orderA := testOrder("ORD-001", registeredTest("cbc", "CBC", "Whole Blood"))
	orderB := testOrder("ORD-002", collected, registeredTest("rbs", "RBS", "Serum"))
	orderB.Status = models.OrderStatusCollected

	seedShard(t, mem, "shard_1", map[string]models.PatientRecord{
		"pk_p1": {Details: testPatient("p1"), Orders: []models.Order{orderA}},
		"pk_p2": {Details: testPatient("p2"), Orders: []models.Order{orderB}},
	})

	results, err := engine.Repo.Search(ctx, models.OrderFilter{OrderStatus: models.OrderStatusCollected})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Order.OrderID != "ORD-002" {
		t.Fatalf("status filter returned %+v", results)
	}

	results, err = engine.Repo.Search(ctx, models.OrderFilter{TestStatus: models.TestStatusNotCollected})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("not_collected should match both orders, got %d", len(results))
	}

	results, err = engine.Repo.Search(ctx, models.OrderFilter{Department: "Chemistry"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Order.OrderID != "ORD-002" {
		t.Fatalf("department filter returned %+v", results)
	}

	results, err = engine.Repo.Search(ctx, models.OrderFilter{Search: "ord-001"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Order.OrderID != "ORD-001" {
		t.Fatalf("search filter returned %+v", results)
	}
}

func TestSearchProjectsStats(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()

	seedCatalog(t, mem, models.TestCatalog{
		"cbc": {TestName: "Complete Blood Count", Department: "Hematology", SampleType: "Whole Blood"},
	})
	seedBarcodeSettings(t, mem, models.BarcodeSettings{TestsPerBarcode: 2})

	order := testOrder("ORD-001",
		registeredTest("cbc", "CBC", "Whole Blood"),
		registeredTest("t2", "T2", "Whole Blood"),
		registeredTest("t3", "T3", "Whole Blood"),
	)
	seedShard(t, mem, "shard_1", map[string]models.PatientRecord{
		"pk_p1": {Details: testPatient("p1"), Orders: []models.Order{order}},
	})

	results, err := engine.Repo.Search(ctx, models.OrderFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	stats := results[0].Stats
	if stats.TotalTests != 3 || stats.RegisteredTests != 3 {
		t.Fatalf("stats %+v", stats)
	}
	if stats.EstimatedBarcodes != 2 { // ceil(3/2)
		t.Fatalf("estimated barcodes %d", stats.EstimatedBarcodes)
	}
}

func TestBarcodeSettingsDefaults(t *testing.T) {
	engine, _ := newTestEngine(t)

	settings, err := engine.Repo.BarcodeSettings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if settings.ChunkSize() != models.DefaultTestsPerBarcode {
		t.Fatalf("chunk size %d", settings.ChunkSize())
	}
}

func TestEmployeeFullNameFallsBackToEmail(t *testing.T) {
	engine, mem := newTestEngine(t)
	ctx := context.Background()

	if got := engine.Repo.EmployeeFullName(ctx, "tech@lab.example"); got != "tech@lab.example" {
		t.Fatalf("got %s", got)
	}

	if err := mem.SetMerge(ctx, store.CollectionEmployees, "tech@lab.example", store.Document{
		"fullName": "Daw Khin Khin",
	}); err != nil {
		t.Fatal(err)
	}
	if got := engine.Repo.EmployeeFullName(ctx, "tech@lab.example"); got != "Daw Khin Khin" {
		t.Fatalf("got %s", got)
	}
}
