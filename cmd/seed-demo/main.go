// seed-demo loads a small demo dataset (catalog, settings, two patients with
// open orders) into the configured Firestore project so the bulk screens have
// something to work against.
//
// Usage:
//
//	FIRESTORE_PROJECT_ID=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/lims_backend/config"
	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/store"
)

func demoCatalog() models.TestCatalog {
	return models.TestCatalog{
		"cbc": {
			TestName: "Complete Blood Count", Abbreviation: "CBC",
			Department: "Hematology", SampleType: "Whole Blood", Unit: "g/dL",
			ReferenceRanges: []models.ReferenceRange{
				{Gender: "Male", AgeFrom: 0, AgeTo: 0, Unit: "years", Range: "13-17"},
				{Gender: "Female", AgeFrom: 0, AgeTo: 0, Unit: "years", Range: "12-15"},
			},
		},
		"esr": {
			TestName: "Erythrocyte Sedimentation Rate", Abbreviation: "ESR",
			Department: "Hematology", SampleType: "Whole Blood", Unit: "mm/hr",
		},
		"rbs": {
			TestName: "Random Blood Sugar", Abbreviation: "RBS",
			Department: "Chemistry", SampleType: "Serum", Unit: "mg/dL",
			ReferenceRanges: []models.ReferenceRange{
				{Gender: "Male", AgeFrom: 0, AgeTo: 0, Unit: "years", Range: "70-140"},
				{Gender: "Female", AgeFrom: 0, AgeTo: 0, Unit: "years", Range: "70-140"},
			},
		},
		"hba1c": {
			TestName: "HbA1c", Abbreviation: "HbA1c",
			Department: "Chemistry", SampleType: "Whole Blood", Unit: "%",
			SingleSpecimen: true,
		},
		"urine-re": {
			TestName: "Urine Routine Examination", Abbreviation: "URE",
			Department: "Microbiology", SampleType: "Urine",
		},
	}
}

func demoShard(now time.Time) models.RecordShard {
	order := func(id string, testIDs ...string) models.Order {
		catalog := demoCatalog()
		tests := make([]models.Test, 0, len(testIDs))
		for _, testID := range testIDs {
			def := catalog[testID]
			tests = append(tests, models.Test{
				TestID:     testID,
				TestName:   def.TestName,
				SampleType: def.SampleType,
				Unit:       def.Unit,
				Status:     models.TestStatusRegistered,
			})
		}
		return models.Order{
			OrderID:    id,
			Status:     models.OrderStatusRegistered,
			BranchCode: "MAIN",
			OrderDate:  now,
			Amount:     decimal.NewFromInt(45000),
			Paid:       decimal.NewFromInt(45000),
			Tests:      tests,
		}
	}

	return models.RecordShard{
		Patients: map[string]models.PatientRecord{
			"demo_p1": {
				Details: models.Patient{
					PatientID: "P-1001", FirstName: "Aye", SecondName: "Aye", ThirdName: "Myint",
					Gender: "Female", AgeYears: 34, Mobile: "09789000111",
				},
				Orders: []models.Order{order("ORD-1001", "cbc", "esr", "rbs", "hba1c")},
			},
			"demo_p2": {
				Details: models.Patient{
					PatientID: "P-1002", FirstName: "Kyaw", ThirdName: "Thu",
					Gender: "Male", AgeYears: 52, Mobile: "09789000222",
				},
				Orders: []models.Order{order("ORD-1002", "cbc", "urine-re")},
			},
		},
	}
}

func main() {
	ctx := context.Background()

	client, err := config.GetFirestoreClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "firestore not initialized: %v\n", err)
		os.Exit(1)
	}
	st := store.NewFirestore(client)

	catalog, err := store.Encode(demoCatalog())
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode catalog: %v\n", err)
		os.Exit(1)
	}
	if err := st.SetMerge(ctx, store.CollectionTestsList, "catalog", catalog); err != nil {
		fmt.Fprintf(os.Stderr, "seed catalog: %v\n", err)
		os.Exit(1)
	}

	settings, err := store.Encode(models.BarcodeSettings{TestsPerBarcode: 5, WrapAbbreviations: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode settings: %v\n", err)
		os.Exit(1)
	}
	if err := st.SetMerge(ctx, store.CollectionSettings, store.DocBarcodeSettings, settings); err != nil {
		fmt.Fprintf(os.Stderr, "seed settings: %v\n", err)
		os.Exit(1)
	}

	singles, err := store.Encode(models.SingleBarcodeTests{TestIDs: []string{"hba1c"}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode single tests: %v\n", err)
		os.Exit(1)
	}
	if err := st.SetMerge(ctx, store.CollectionSettings, store.DocSingleBarcodeTests, singles); err != nil {
		fmt.Fprintf(os.Stderr, "seed single tests: %v\n", err)
		os.Exit(1)
	}

	shard, err := store.Encode(demoShard(time.Now().UTC()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode records: %v\n", err)
		os.Exit(1)
	}
	if err := st.SetMerge(ctx, store.CollectionRecords, "demo_shard", shard); err != nil {
		fmt.Fprintf(os.Stderr, "seed records: %v\n", err)
		os.Exit(1)
	}

	if err := st.SetMerge(ctx, store.CollectionEmployees, "tech@lab.example", store.Document{
		"fullName": "Demo Technician",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "seed employee: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("demo data seeded: catalog, barcode settings, 2 patients, 2 orders")
}
