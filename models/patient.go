package models

import (
	"fmt"
	"strings"
)

// Patient holds the demographic details nested under a record shard.
type Patient struct {
	PatientID       string `json:"patient_id"`
	Title           string `json:"title,omitempty"`
	FirstName       string `json:"firstName,omitempty"`
	SecondName      string `json:"secondName,omitempty"`
	ThirdName       string `json:"thirdName,omitempty"`
	Gender          string `json:"gender,omitempty"`
	AgeYears        int    `json:"age_years,omitempty"`
	AgeMonths       int    `json:"age_months,omitempty"`
	AgeDays         int    `json:"age_days,omitempty"`
	Mobile          string `json:"mobile,omitempty"`
	PregnancyStatus string `json:"pregnancyStatus,omitempty"`
	AutoPassword    string `json:"auto_password,omitempty"`
}

func (p *Patient) FullName() string {
	parts := []string{p.FirstName, p.SecondName, p.ThirdName}
	nonEmpty := parts[:0]
	for _, s := range parts {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// AgeText renders the most significant age component for labels.
func (p *Patient) AgeText() string {
	switch {
	case p.AgeYears > 0:
		return fmt.Sprintf("%dy", p.AgeYears)
	case p.AgeMonths > 0:
		return fmt.Sprintf("%dm", p.AgeMonths)
	case p.AgeDays > 0:
		return fmt.Sprintf("%dd", p.AgeDays)
	default:
		return "N/A"
	}
}

// AgeInDays normalizes the patient age for reference-range matching.
func (p *Patient) AgeInDays() int {
	switch {
	case p.AgeYears > 0:
		return p.AgeYears * 365
	case p.AgeMonths > 0:
		return p.AgeMonths * 30
	default:
		return p.AgeDays
	}
}

// IsPregnant matches the loose convention used by registration: any
// pregnancy status containing "preg" counts.
func (p *Patient) IsPregnant() bool {
	return p.Gender == "Female" && strings.Contains(strings.ToLower(p.PregnancyStatus), "preg")
}
