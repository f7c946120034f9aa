package models

// SampleCounter is the allocation counter for one scope key
// (branch + year). last_number only ever moves forward, via the store's
// atomic transaction.
type SampleCounter struct {
	LastNumber int64 `json:"last_number"`
}

// SampleTypeCounter tracks collection volume per sample type per branch.
// Observational only: losing an increment never fails a collect.
type SampleTypeCounter struct {
	Count      int64  `json:"count"`
	SampleType string `json:"sample_type"`
	BranchCode string `json:"branch_code"`
}

// TestSampleCounter tracks collection volume per test definition.
type TestSampleCounter struct {
	Count    int64  `json:"count"`
	TestID   string `json:"test_id"`
	TestName string `json:"test_name"`
}
