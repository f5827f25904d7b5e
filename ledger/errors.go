/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and the HTTP layer classify errors with errors.Is against the
  sentinels below; structured errors carry the details a caller needs to
  act (what is available, which step failed).

ERROR CATEGORIES:
  1. Client errors - ValidationError, NotFound, InsufficientStock, InUse
  2. Concurrency - Conflict (retried by the service before surfacing)
  3. Partial failure - a usage committed but a downstream step did not

USAGE:
  result, err := svc.RecordUsage(ctx, owner, input)
  var pf *ledger.PartialFailureError
  if errors.As(err, &pf) {
      // result.Usage is persisted; retry pf.Failures[i].Step only
  }

SEE ALSO:
  - service.go: Produces PartialFailureError
  - retry.go: Retries ErrConflict
  - api/errors.go: Maps these errors to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input. Nothing is persisted.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist or is
	// not owned by the caller. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when consumption exceeds on-hand stock
	// of a tracked item and negative stock is disallowed.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrPartialFailure is returned when the primary write committed but a
	// dependent step (diary link, cost recompute) failed.
	ErrPartialFailure = errors.New("partial failure")

	// ErrConflict is returned by stores when a transaction lost a race with a
	// concurrent writer (serialization failure, busy database).
	ErrConflict = errors.New("concurrent modification detected")

	// ErrPersistentItem is returned for lot operations on a persistent item.
	ErrPersistentItem = errors.New("persistent items do not track lots")

	// ErrInUse is returned when deleting a record other records still reference.
	ErrInUse = errors.New("record is still referenced")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ItemID    ItemID
	Available decimal.Decimal
	Requested decimal.Decimal
	Unit      string
}

func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %s %s, requested %s %s",
		e.Available, e.Unit, e.Requested, e.Unit)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Step names a downstream step of a ledger operation.
type Step string

const (
	StepLinkDiary     Step = "link_diary"
	StepRecomputeCost Step = "recompute_cost"
)

// StepFailure is one failed downstream step.
type StepFailure struct {
	Step    Step
	BatchID BatchID
	Err     error
}

// PartialFailureError reports that Operation committed its primary write but
// one or more downstream steps failed. Each failed step is safe to retry on
// its own (RetryDiaryLink, RecomputeCost).
type PartialFailureError struct {
	Operation string
	UsageID   UsageID
	Failures  []StepFailure
}

func (e *PartialFailureError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Step, f.Err)
	}
	return fmt.Sprintf("%s committed with failed steps: %s", e.Operation, strings.Join(parts, "; "))
}

func (e *PartialFailureError) Unwrap() []error {
	errs := []error{ErrPartialFailure}
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Failed reports whether step is among the failures.
func (e *PartialFailureError) Failed(step Step) bool {
	for _, f := range e.Failures {
		if f.Step == step {
			return true
		}
	}
	return false
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrPersistentItem) ||
		errors.Is(err, ErrInUse)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
