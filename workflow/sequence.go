package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/lims_backend/config"
	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/store"
	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

const defaultAllocateAttempts = 5

// SampleSequence hands out sample identifiers from per-scope counter
// documents. Each allocation is one store transaction; two concurrent
// allocations can never observe the same last_number.
type SampleSequence struct {
	Store       store.DocumentStore
	Logger      *logrus.Logger
	MaxAttempts int
	Now         func() time.Time
}

func NewSampleSequence(st store.DocumentStore, logger *logrus.Logger) *SampleSequence {
	return &SampleSequence{
		Store:       st,
		Logger:      logger,
		MaxAttempts: defaultAllocateAttempts,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// CounterScopeKey builds the allocation scope for a branch and year,
// e.g. "MAIN_2025".
func CounterScopeKey(branch string, year int) string {
	return fmt.Sprintf("%s_%d", branch, year)
}

// FormatSampleID renders a sequence number into the printed sample
// identifier: branch code, four-digit year, zero-padded sequence.
func FormatSampleID(branch string, year int, seq int64) string {
	return fmt.Sprintf("%s%d%03d", branch, year, seq)
}

// Allocate increments the scope's counter inside a transaction and returns
// the new value. A missing counter document starts at zero. Transient commit
// conflicts are retried up to MaxAttempts before surfacing.
func (s *SampleSequence) Allocate(ctx context.Context, scopeKey string) (int64, error) {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAllocateAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var allocated int64
		err := s.Store.RunTransaction(ctx, func(tx store.Tx) error {
			var counter models.SampleCounter
			doc, err := tx.Get(store.CollectionSampleCounters, scopeKey)
			if err != nil && !utils.IsNotFound(err) {
				return err
			}
			if err == nil {
				if err := store.Decode(doc, &counter); err != nil {
					return err
				}
			}
			allocated = counter.LastNumber + 1
			fields, err := store.Encode(models.SampleCounter{LastNumber: allocated})
			if err != nil {
				return err
			}
			return tx.SetMerge(store.CollectionSampleCounters, scopeKey, fields)
		})
		if err == nil {
			return allocated, nil
		}
		if !utils.IsTransient(err) {
			return 0, err
		}
		lastErr = err
	}
	return 0, &utils.TransientStoreError{Op: "allocate " + scopeKey, Err: lastErr}
}

// NextSampleID allocates the branch's next identifier for the current year.
func (s *SampleSequence) NextSampleID(ctx context.Context, branch string) (string, error) {
	year := s.Now().Year()
	seq, err := s.Allocate(ctx, CounterScopeKey(branch, year))
	if err != nil {
		return "", err
	}
	return FormatSampleID(branch, year, seq), nil
}

// BumpSampleTypeCounter increments the observational per-sample-type counter.
// Best-effort: failures are logged and never propagate to the caller, a lost
// increment must not fail a collect.
func (s *SampleSequence) BumpSampleTypeCounter(ctx context.Context, branch, sampleType string) {
	if sampleType == "" {
		return
	}
	key := branch + "_" + utils.CounterScopeSuffix(sampleType)
	err := s.Store.RunTransaction(ctx, func(tx store.Tx) error {
		var counter models.SampleTypeCounter
		doc, err := tx.Get(store.CollectionSampleCounters, key)
		if err != nil && !utils.IsNotFound(err) {
			return err
		}
		if err == nil {
			if err := store.Decode(doc, &counter); err != nil {
				return err
			}
		}
		counter.Count++
		counter.SampleType = sampleType
		counter.BranchCode = branch
		fields, err := store.Encode(counter)
		if err != nil {
			return err
		}
		return tx.SetMerge(store.CollectionSampleCounters, key, fields)
	})
	if err != nil && s.Logger != nil {
		config.LogError(s.Logger, "workflow", "BumpSampleTypeCounter", key, nil, err)
	}
}

// BumpTestCounter increments the observational per-test counter. Best-effort,
// same contract as BumpSampleTypeCounter.
func (s *SampleSequence) BumpTestCounter(ctx context.Context, testID, testName string) {
	if testID == "" {
		return
	}
	err := s.Store.RunTransaction(ctx, func(tx store.Tx) error {
		var counter models.TestSampleCounter
		doc, err := tx.Get(store.CollectionTestCounters, testID)
		if err != nil && !utils.IsNotFound(err) {
			return err
		}
		if err == nil {
			if err := store.Decode(doc, &counter); err != nil {
				return err
			}
		}
		counter.Count++
		counter.TestID = testID
		counter.TestName = testName
		fields, err := store.Encode(counter)
		if err != nil {
			return err
		}
		return tx.SetMerge(store.CollectionTestCounters, testID, fields)
	})
	if err != nil && s.Logger != nil {
		config.LogError(s.Logger, "workflow", "BumpTestCounter", testID, nil, err)
	}
}
