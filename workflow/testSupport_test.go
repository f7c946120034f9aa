package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/store"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	engine := NewEngine(mem, logger)
	engine.Now = func() time.Time { return testNow }
	engine.Seq.Now = engine.Now
	return engine, mem
}

func seedShard(t *testing.T, mem *store.Memory, shardID string, recs map[string]models.PatientRecord) {
	t.Helper()
	patients := map[string]any{}
	for key, rec := range recs {
		enc, err := store.Encode(rec)
		if err != nil {
			t.Fatal(err)
		}
		patients[key] = enc
	}
	if err := mem.SetMerge(context.Background(), store.CollectionRecords, shardID, store.Document{
		"patients": patients,
	}); err != nil {
		t.Fatal(err)
	}
}

func seedCatalog(t *testing.T, mem *store.Memory, catalog models.TestCatalog) {
	t.Helper()
	enc, err := store.Encode(catalog)
	if err != nil {
		t.Fatal(err)
	}
	if err := mem.SetMerge(context.Background(), store.CollectionTestsList, "catalog", enc); err != nil {
		t.Fatal(err)
	}
}

func seedBarcodeSettings(t *testing.T, mem *store.Memory, settings models.BarcodeSettings) {
	t.Helper()
	enc, err := store.Encode(settings)
	if err != nil {
		t.Fatal(err)
	}
	if err := mem.SetMerge(context.Background(), store.CollectionSettings, store.DocBarcodeSettings, enc); err != nil {
		t.Fatal(err)
	}
}

func testPatient(patientID string) models.Patient {
	return models.Patient{
		PatientID: patientID,
		FirstName: "Aye",
		ThirdName: "Myint",
		Gender:    "Female",
		AgeYears:  34,
		Mobile:    "09789000111",
	}
}

func registeredTest(testID, name, sampleType string) models.Test {
	return models.Test{
		TestID:     testID,
		TestName:   name,
		SampleType: sampleType,
		Status:     models.TestStatusRegistered,
	}
}

func testOrder(orderID string, tests ...models.Test) models.Order {
	return models.Order{
		OrderID:   orderID,
		Status:    models.OrderStatusRegistered,
		OrderDate: testNow.Add(-time.Hour),
		Tests:     tests,
	}
}

// seedSingleOrder seeds one patient with one order and resolves its ref.
func seedSingleOrder(t *testing.T, engine *Engine, mem *store.Memory, patientID string, order models.Order) OrderRef {
	t.Helper()
	seedShard(t, mem, "shard_1", map[string]models.PatientRecord{
		"pk_" + patientID: {Details: testPatient(patientID), Orders: []models.Order{order}},
	})
	ref, err := engine.Repo.Resolve(context.Background(), patientID, order.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

func mustGetOrder(t *testing.T, engine *Engine, ref OrderRef) *models.Order {
	t.Helper()
	_, order, err := engine.Repo.GetOrder(context.Background(), ref)
	if err != nil {
		t.Fatal(err)
	}
	return order
}
