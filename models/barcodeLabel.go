package models

import (
	"strings"

	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

// BarcodeLabel describes one printable label. Rendering (glyphs, fonts,
// layout) happens client-side; the engine only decides what goes on each
// label and in what order.
type BarcodeLabel struct {
	SampleID    string   `json:"sampleId"`
	Single      bool     `json:"single"`
	SampleType  string   `json:"sampleType,omitempty"`
	Department  string   `json:"department,omitempty"`
	TestIDs     []string `json:"testIds"`
	Abbrevs     []string `json:"abbrevs"`
	AbbrevLines []string `json:"abbrevLines"`

	PatientName string `json:"patientName"`
	PatientID   string `json:"patient_id"`
	AgeText     string `json:"ageText"`
	OrderNumber string `json:"orderNumber"`
}

// WrapAbbrevs joins abbreviations into at most two display lines. With four
// or more entries the list splits at the midpoint so narrow labels stay
// legible; three or fewer fit on one line.
func WrapAbbrevs(abbrevs []string, wrap bool) []string {
	if len(abbrevs) == 0 {
		return nil
	}
	if !wrap || len(abbrevs) <= 3 {
		return []string{strings.Join(abbrevs, ", ")}
	}
	mid := (len(abbrevs) + 1) / 2
	return []string{
		strings.Join(abbrevs[:mid], ", "),
		strings.Join(abbrevs[mid:], ", "),
	}
}

// NewBarcodeLabel fills the patient/order context shared by every label of
// one order.
func NewBarcodeLabel(p *Patient, o *Order, sampleID string) BarcodeLabel {
	return BarcodeLabel{
		SampleID:    sampleID,
		PatientName: p.FullName(),
		PatientID:   p.PatientID,
		AgeText:     p.AgeText(),
		OrderNumber: utils.DigitalOrderNumber(o.OrderID),
	}
}
