package models

import (
	"strings"
	"time"
)

// TestStatusNotCollected is a search-only pseudo-status: the order still has
// at least one test awaiting a specimen.
const TestStatusNotCollected = "not_collected"

const (
	PatientTypeNormal   = "normal"
	PatientTypePackages = "packages"
)

// OrderFilter is the shared selection for search, bulk entry points and
// exports. Zero values mean "no constraint".
type OrderFilter struct {
	DateFrom time.Time `json:"dateFrom,omitempty"`
	DateTo   time.Time `json:"dateTo,omitempty"`

	BranchCode  string      `json:"branchCode,omitempty"`
	Department  string      `json:"department,omitempty"`
	OrderStatus OrderStatus `json:"orderStatus,omitempty"`

	// PatientType is "normal", "packages" or a contract id.
	PatientType string `json:"patientType,omitempty"`

	// TestStatus narrows to orders containing a test in this status;
	// TestStatusNotCollected matches orders with any uncollected test.
	TestStatus string `json:"testStatus,omitempty"`

	// Search matches patient name, patient id, mobile or order id,
	// case-insensitive substring.
	Search string `json:"search,omitempty"`
}

// Matches reports whether the (patient, order) pair passes the filter.
// Department checks consult the catalog; an order matches when any of its
// tests belongs to the department.
func (f OrderFilter) Matches(p *Patient, o *Order, catalog TestCatalog) bool {
	if !f.DateFrom.IsZero() && o.OrderDate.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && o.OrderDate.After(f.DateTo) {
		return false
	}
	if f.BranchCode != "" && o.BranchCode != f.BranchCode {
		return false
	}
	if f.OrderStatus != "" && o.Status != f.OrderStatus {
		return false
	}
	if !f.matchesPatientType(o) {
		return false
	}
	if f.Department != "" && !f.matchesDepartment(o, catalog) {
		return false
	}
	if f.TestStatus != "" && !f.matchesTestStatus(o) {
		return false
	}
	if f.Search != "" && !f.matchesSearch(p, o) {
		return false
	}
	return true
}

func (f OrderFilter) matchesPatientType(o *Order) bool {
	switch f.PatientType {
	case "":
		return true
	case PatientTypeNormal, PatientTypePackages:
		return o.PatientType == f.PatientType
	default:
		// A concrete contract id.
		return o.ContractID == f.PatientType
	}
}

func (f OrderFilter) matchesDepartment(o *Order, catalog TestCatalog) bool {
	for i := range o.Tests {
		if def, ok := catalog[o.Tests[i].TestID]; ok && def.Department == f.Department {
			return true
		}
	}
	return false
}

func (f OrderFilter) matchesTestStatus(o *Order) bool {
	for i := range o.Tests {
		t := &o.Tests[i]
		if f.TestStatus == TestStatusNotCollected {
			if t.Status.AwaitingCollection() {
				return true
			}
			continue
		}
		if string(t.Status) == f.TestStatus {
			return true
		}
	}
	return false
}

func (f OrderFilter) matchesSearch(p *Patient, o *Order) bool {
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	if needle == "" {
		return true
	}
	for _, hay := range []string{p.FullName(), p.PatientID, p.Mobile, o.OrderID} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}
