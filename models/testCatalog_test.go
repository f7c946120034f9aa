package models

import (
	"testing"
	"unicode/utf8"
)

func TestAbbrevFallback(t *testing.T) {
	if got := (TestDefinition{TestName: "Complete Blood Count", Abbreviation: "CBC"}).Abbrev(); got != "CBC" {
		t.Fatalf("got %s", got)
	}
	if got := (TestDefinition{TestName: "creatinine"}).Abbrev(); got != "CRE" {
		t.Fatalf("got %s", got)
	}
	if got := (TestDefinition{TestName: "pH"}).Abbrev(); got != "PH" {
		t.Fatalf("got %s", got)
	}
	// Non-ASCII names must truncate on rune boundaries.
	got := (TestDefinition{TestName: "Натрий"}).Abbrev()
	if got != "НАТ" {
		t.Fatalf("got %s", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("invalid utf-8 abbreviation %q", got)
	}
}

func TestResolveReferenceRange(t *testing.T) {
	def := TestDefinition{
		TestName: "Hemoglobin",
		ReferenceRanges: []ReferenceRange{
			{Gender: "Male", AgeFrom: 0, AgeTo: 0, Unit: "years", Range: "13-17"},
			{Gender: "Female", AgeFrom: 0, AgeTo: 12, Unit: "years", Range: "11-14"},
			{Gender: "Female", AgeFrom: 12, AgeTo: 0, Unit: "years", Range: "12-15"},
			{Gender: "Female", AgeFrom: 12, AgeTo: 0, Unit: "years", Pregnant: true, Range: "11-14 (preg)"},
		},
	}

	adultF := &Patient{Gender: "Female", AgeYears: 30}
	if got := def.ResolveReferenceRange(adultF); got != "12-15" {
		t.Fatalf("adult female: %s", got)
	}

	girl := &Patient{Gender: "Female", AgeYears: 8}
	if got := def.ResolveReferenceRange(girl); got != "11-14" {
		t.Fatalf("girl: %s", got)
	}

	pregnant := &Patient{Gender: "Female", AgeYears: 28, PregnancyStatus: "Pregnant"}
	if got := def.ResolveReferenceRange(pregnant); got != "11-14 (preg)" {
		t.Fatalf("pregnant: %s", got)
	}

	man := &Patient{Gender: "Male", AgeYears: 40}
	if got := def.ResolveReferenceRange(man); got != "13-17" {
		t.Fatalf("man: %s", got)
	}

	// No gender match falls back to the first range.
	unknown := &Patient{Gender: "Other", AgeYears: 40}
	if got := def.ResolveReferenceRange(unknown); got != "13-17" {
		t.Fatalf("fallback: %s", got)
	}
}

func TestResolveReferenceRangeAgeUnits(t *testing.T) {
	def := TestDefinition{
		TestName: "Bilirubin",
		ReferenceRanges: []ReferenceRange{
			{Gender: "Male", AgeFrom: 0, AgeTo: 28, Unit: "days", Range: "neonate"},
			{Gender: "Male", AgeFrom: 1, AgeTo: 12, Unit: "months", Range: "infant"},
			{Gender: "Male", AgeFrom: 1, AgeTo: 0, Unit: "years", Range: "child-adult"},
		},
	}

	neonate := &Patient{Gender: "Male", AgeDays: 10}
	if got := def.ResolveReferenceRange(neonate); got != "neonate" {
		t.Fatalf("neonate: %s", got)
	}

	infant := &Patient{Gender: "Male", AgeMonths: 6}
	if got := def.ResolveReferenceRange(infant); got != "infant" {
		t.Fatalf("infant: %s", got)
	}

	adult := &Patient{Gender: "Male", AgeYears: 30}
	if got := def.ResolveReferenceRange(adult); got != "child-adult" {
		t.Fatalf("adult: %s", got)
	}
}

func TestPatientAge(t *testing.T) {
	if got := (&Patient{AgeYears: 3}).AgeText(); got != "3y" {
		t.Fatalf("got %s", got)
	}
	if got := (&Patient{AgeMonths: 7}).AgeText(); got != "7m" {
		t.Fatalf("got %s", got)
	}
	if got := (&Patient{AgeDays: 12}).AgeText(); got != "12d" {
		t.Fatalf("got %s", got)
	}
	if got := (&Patient{}).AgeText(); got != "N/A" {
		t.Fatalf("got %s", got)
	}
	if got := (&Patient{AgeYears: 2}).AgeInDays(); got != 730 {
		t.Fatalf("got %d", got)
	}
}

func TestPatientFullName(t *testing.T) {
	p := Patient{FirstName: "Aye", ThirdName: "Myint"}
	if got := p.FullName(); got != "Aye Myint" {
		t.Fatalf("got %q", got)
	}
}

func TestIsPregnant(t *testing.T) {
	if !(&Patient{Gender: "Female", PregnancyStatus: "Pregnant"}).IsPregnant() {
		t.Fatal("pregnant not detected")
	}
	if (&Patient{Gender: "Male", PregnancyStatus: "Pregnant"}).IsPregnant() {
		t.Fatal("male flagged pregnant")
	}
	if (&Patient{Gender: "Female", PregnancyStatus: "None"}).IsPregnant() {
		t.Fatal("non-pregnant flagged")
	}
}

func TestCatalogDepartments(t *testing.T) {
	c := TestCatalog{
		"a": {Department: "Hematology"},
		"b": {Department: "Chemistry"},
		"c": {Department: "Hematology"},
		"d": {},
	}
	got := c.Departments()
	if len(got) != 2 || got[0] != "Chemistry" || got[1] != "Hematology" {
		t.Fatalf("got %v", got)
	}
}
