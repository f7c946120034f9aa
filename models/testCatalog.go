package models

import (
	"sort"
	"strings"
)

// ReferenceRange is one demographic band of a test definition.
type ReferenceRange struct {
	Gender   string  `json:"gender"`
	AgeFrom  float64 `json:"age_from"`
	AgeTo    float64 `json:"age_to"` // 0 means open-ended
	Unit     string  `json:"unit"`   // "days", "months", "years"
	Pregnant bool    `json:"pregnant,omitempty"`
	Range    string  `json:"range"`
}

func (r ReferenceRange) ageBoundsInDays() (float64, float64) {
	factor := 1.0
	switch r.Unit {
	case "months":
		factor = 30
	case "years":
		factor = 365
	}
	return r.AgeFrom * factor, r.AgeTo * factor
}

func (r ReferenceRange) matchesAge(ageInDays int) bool {
	from, to := r.ageBoundsInDays()
	age := float64(ageInDays)
	return age >= from && (to == 0 || age <= to)
}

// TestDefinition is a catalog entry from the tests_list document.
type TestDefinition struct {
	TestName        string           `json:"test_name"`
	Abbreviation    string           `json:"abbreviation,omitempty"`
	Department      string           `json:"department,omitempty"`
	SampleType      string           `json:"sample_type,omitempty"`
	Unit            string           `json:"unit,omitempty"`
	SingleSpecimen  bool             `json:"single_specimen,omitempty"`
	ReferenceRanges []ReferenceRange `json:"reference_ranges,omitempty"`
}

// Abbrev falls back to the first three letters of the test name when the
// catalog entry has no abbreviation.
func (d TestDefinition) Abbrev() string {
	if d.Abbreviation != "" {
		return d.Abbreviation
	}
	name := []rune(d.TestName)
	if len(name) > 3 {
		name = name[:3]
	}
	return strings.ToUpper(string(name))
}

// ResolveReferenceRange picks the reference range matching the patient's
// gender, pregnancy status and age. Pregnant ranges are preferred for
// pregnant patients; otherwise the first age-matching non-pregnant range of
// the patient's gender wins, then any gender match, then the first range.
func (d TestDefinition) ResolveReferenceRange(p *Patient) string {
	if len(d.ReferenceRanges) == 0 {
		return ""
	}
	age := p.AgeInDays()

	var genderRanges []ReferenceRange
	for _, r := range d.ReferenceRanges {
		if r.Gender == p.Gender {
			genderRanges = append(genderRanges, r)
		}
	}

	if p.IsPregnant() {
		for _, r := range genderRanges {
			if r.Pregnant && r.matchesAge(age) {
				return r.Range
			}
		}
	}
	for _, r := range genderRanges {
		if !r.Pregnant && r.matchesAge(age) {
			return r.Range
		}
	}
	if len(genderRanges) > 0 {
		return genderRanges[0].Range
	}
	return d.ReferenceRanges[0].Range
}

// TestCatalog maps test id to its definition.
type TestCatalog map[string]TestDefinition

// Departments returns the sorted distinct departments in the catalog.
func (c TestCatalog) Departments() []string {
	seen := map[string]bool{}
	var out []string
	for _, def := range c {
		if def.Department != "" && !seen[def.Department] {
			seen[def.Department] = true
			out = append(out, def.Department)
		}
	}
	sort.Strings(out)
	return out
}
