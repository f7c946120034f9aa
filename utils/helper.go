package utils

import (
	"regexp"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// CountryCode is the default region for parsing patient mobile numbers.
var CountryCode = "MM"

var trailingDigits = regexp.MustCompile(`\d+$`)

// DigitalOrderNumber extracts the trailing digits of an order id for
// display on labels ("ORD-2025-0042" -> "0042"). Falls back to the full id.
func DigitalOrderNumber(orderID string) string {
	if m := trailingDigits.FindString(orderID); m != "" {
		return m
	}
	return orderID
}

// CounterScopeSuffix normalizes a sample type into a counter document id
// segment ("Whole Blood" -> "whole_blood").
func CounterScopeSuffix(sampleType string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(sampleType)), " ", "_")
}

func DereferencePtr[T any](ptr *T, fallback T) T {
	if ptr == nil {
		return fallback
	}
	return *ptr
}

// NormalizeMobile parses a patient mobile number against the default region
// and returns its E.164 form ("09789000111" -> "+959789000111"). The number
// is checked for a plausible length only; carrier prefix patterns churn too
// often to gate message delivery on them.
func NormalizeMobile(mobile string) (string, bool) {
	trimmed := strings.TrimSpace(mobile)
	if trimmed == "" {
		return "", false
	}
	p, err := libphonenumber.Parse(trimmed, CountryCode)
	if err != nil || !libphonenumber.IsPossibleNumber(p) {
		return "", false
	}
	return libphonenumber.Format(p, libphonenumber.E164), true
}
