package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// NotFoundError reports a missing order/patient/document. The referenced
// record was likely mutated or deleted by a concurrent writer.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	if e.Collection == "" {
		return "record not found: " + e.ID
	}
	return fmt.Sprintf("%s/%s not found", e.Collection, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrorRecordNotFound }

// TransientStoreError wraps a retryable store failure (transaction
// contention, timeout). Callers may retry; the sequence allocator does so
// with a bounded attempt count.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error in %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IllegalTransitionError reports a lifecycle transition that is not
// permitted from the test's current status.
type IllegalTransitionError struct {
	OrderID string
	TestID  string
	From    string
	To      string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s for test %s (order %s)", e.From, e.To, e.TestID, e.OrderID)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrorRecordNotFound)
}

func IsTransient(err error) bool {
	var te *TransientStoreError
	return errors.As(err, &te)
}
