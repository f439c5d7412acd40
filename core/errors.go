package core

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable marks a failure of the recency cache or the
	// similarity index. Read paths recover from it locally.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmbeddingUnavailable marks a failure to load or call the embedding
	// provider. Callers fall back to recency order.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrNotFound is returned when an operation targets an unknown exchange.
	ErrNotFound = errors.New("exchange not found")
)

// PartialClearError reports a history clear where one tier was wiped and the
// other was not. Both fields set means nothing was cleared.
type PartialClearError struct {
	UserID   string
	CacheErr error
	IndexErr error
}

func (e *PartialClearError) Error() string {
	switch {
	case e.CacheErr != nil && e.IndexErr != nil:
		return fmt.Sprintf("clear history for %s failed: cache: %v; index: %v", e.UserID, e.CacheErr, e.IndexErr)
	case e.CacheErr != nil:
		return fmt.Sprintf("partial clear for %s: index cleared, cache failed: %v", e.UserID, e.CacheErr)
	default:
		return fmt.Sprintf("partial clear for %s: cache cleared, index failed: %v", e.UserID, e.IndexErr)
	}
}

// Unwrap exposes the underlying tier errors to errors.Is and errors.As.
func (e *PartialClearError) Unwrap() []error {
	var errs []error
	if e.CacheErr != nil {
		errs = append(errs, e.CacheErr)
	}
	if e.IndexErr != nil {
		errs = append(errs, e.IndexErr)
	}
	return errs
}

// Total reports whether both tiers failed.
func (e *PartialClearError) Total() bool {
	return e.CacheErr != nil && e.IndexErr != nil
}
