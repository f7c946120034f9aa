package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/workflow"
)

func sampleResults() []workflow.SearchResult {
	completedAt := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	return []workflow.SearchResult{
		{
			Patient: models.Patient{PatientID: "p1", FirstName: "Aye", ThirdName: "Myint", Gender: "Female", AgeYears: 34, Mobile: "0971"},
			Order: models.Order{
				OrderID:   "ORD-001",
				Status:    models.OrderStatusCompleted,
				OrderDate: completedAt.Add(-2 * time.Hour),
				Amount:    decimal.NewFromInt(25000),
				Paid:      decimal.NewFromInt(25000),
				Tests: []models.Test{
					{TestID: "cbc", TestName: "CBC", SampleID: "MAIN2025001", Status: models.TestStatusCompleted, Result: "11.2", Unit: "g/dL", CompletedTimestamp: &completedAt},
					{TestID: "rbs", TestName: "RBS", Status: models.TestStatusRegistered},
				},
			},
			Stats: models.OrderStats{TotalTests: 2, CompletedTests: 1, RegisteredTests: 1},
		},
	}
}

func TestOrdersDataExport(t *testing.T) {
	f, err := OrdersDataExport(sampleResults())
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.GetCellValue("Orders", "A2")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ORD-001" {
		t.Fatalf("A2 = %q", got)
	}
	name, err := f.GetCellValue("Orders", "F2")
	if err != nil {
		t.Fatal(err)
	}
	if name != "Aye Myint" {
		t.Fatalf("F2 = %q", name)
	}
}

func TestOrdersResultsExport(t *testing.T) {
	catalog := models.TestCatalog{
		"cbc": {
			TestName: "CBC",
			ReferenceRanges: []models.ReferenceRange{
				{Gender: "Female", AgeFrom: 12, AgeTo: 0, Unit: "years", Range: "12-15"},
			},
		},
	}
	f, err := OrdersResultsExport(sampleResults(), catalog)
	if err != nil {
		t.Fatal(err)
	}

	// One row per test.
	result, err := f.GetCellValue("Results", "E2")
	if err != nil {
		t.Fatal(err)
	}
	if result != "11.2" {
		t.Fatalf("E2 = %q", result)
	}
	refRange, err := f.GetCellValue("Results", "G2")
	if err != nil {
		t.Fatal(err)
	}
	if refRange != "12-15" {
		t.Fatalf("G2 = %q", refRange)
	}
	secondTest, err := f.GetCellValue("Results", "D3")
	if err != nil {
		t.Fatal(err)
	}
	if secondTest != "RBS" {
		t.Fatalf("D3 = %q", secondTest)
	}
}

func TestExportBytesNonEmpty(t *testing.T) {
	f, err := OrdersDataExport(nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := ExportBytes(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("empty workbook bytes")
	}
}
