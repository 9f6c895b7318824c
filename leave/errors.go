/*
errors.go - Error taxonomy for the leave engine

PURPOSE:
  One place for every error the engine can hand back. Callers branch on
  sentinel values with errors.Is, or pull details out of the structured
  types with errors.As:

    var ibe *leave.InsufficientBalanceError
    if errors.As(err, &ibe) {
        fmt.Println(ibe.Available, ibe.Requested)
    }

DESIGN:
  Structured error types all Unwrap() to a sentinel, so both styles work
  against the same error value. HTTP status mapping lives in api/, keyed
  off the classification helpers at the bottom.
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNotFound: the referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition: the requested event is not legal from the
	// request's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInsufficientBalance: the request asks for more days than the
	// employee has available.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrDuplicateCode: an active leave type with this code already exists
	// for the company.
	ErrDuplicateCode = errors.New("duplicate leave type code")

	// ErrConcurrentModification: a conflicting write won; the caller saw
	// stale state. Safe to retry with a fresh read.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrValidation: the request is malformed or breaks a catalog rule.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError identifies which record was missing.
type NotFoundError struct {
	Kind string // "leave type", "leave request", "leave balance", "employee"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidTransitionError reports an event fired against the wrong status.
type InvalidTransitionError struct {
	RequestID string
	From      RequestStatus
	Event     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s request %s in status %s", e.Event, e.RequestID, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// InsufficientBalanceError carries the numbers HR screens show the employee.
type InsufficientBalanceError struct {
	EmployeeID  string
	LeaveTypeID string
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient leave balance: available %s days, requested %s", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// DuplicateCodeError reports a code collision among a company's active types.
type DuplicateCodeError struct {
	CompanyID string
	Code      string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("duplicate leave type code: %q already active for company %s", e.Code, e.CompanyID)
}

func (e *DuplicateCodeError) Unwrap() error { return ErrDuplicateCode }

// ConcurrentModificationError is surfaced when retries against conflicting
// writers are exhausted.
type ConcurrentModificationError struct {
	Kind string
	ID   string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification: %s %s was updated by another writer", e.Kind, e.ID)
}

func (e *ConcurrentModificationError) Unwrap() error { return ErrConcurrentModification }

// ValidationError reports a malformed request or a broken catalog rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsRetryable reports whether the operation may succeed on a clean re-read.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError reports whether the caller (not the system) got it wrong.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err means a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
