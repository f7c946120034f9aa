package models

const DefaultTestsPerBarcode = 5

// BarcodeSettings is the engine-relevant slice of settings/barcode_settings.
// Font/size fields also live in that document but only matter to rendering.
type BarcodeSettings struct {
	TestsPerBarcode   int  `json:"testsPerBarcode"`
	GroupByDepartment bool `json:"groupByDept"`
	WrapAbbreviations bool `json:"wrapAbbr"`
}

func (s BarcodeSettings) ChunkSize() int {
	if s.TestsPerBarcode <= 0 {
		return DefaultTestsPerBarcode
	}
	return s.TestsPerBarcode
}

// SingleBarcodeTests is settings/single_barcode_tests: catalog test ids that
// always get an individually identified specimen.
type SingleBarcodeTests struct {
	TestIDs []string `json:"testIds"`
}

func (s SingleBarcodeTests) Set() map[string]bool {
	out := make(map[string]bool, len(s.TestIDs))
	for _, id := range s.TestIDs {
		out[id] = true
	}
	return out
}

// Employee is the identity lookup record used for audit display names.
type Employee struct {
	FullName string `json:"fullName"`
}
