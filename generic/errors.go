/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure carries a stable Kind so callers (HTTP handlers, CLI) can
  branch on the kind of failure without matching message text.

ERROR CATEGORIES:
  1. InvalidRequestError      - malformed or missing input (client error)
  2. AccountNotFoundError     - no ledger history / not registered
  3. InsufficientBalanceError - return exceeds true outstanding balance
  4. PersistenceError         - backing store unreachable or write conflict

USAGE:
  if errors.Is(err, generic.ErrInsufficientBalance) { ... }

  var balErr *generic.InsufficientBalanceError
  if errors.As(err, &balErr) {
      fmt.Println(balErr.Requested, balErr.Available)
  }

  switch generic.KindOf(err) { ... }

SEE ALSO:
  - ledger.go: Wraps store failures in PersistenceError
  - pfand/processor.go: Produces the balance errors
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRequest is returned for malformed or missing input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAccountNotFound is returned when an account has no ledger history
	// (or is not registered, when an AccountDirectory is configured).
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientBalance is returned when a return exceeds the outstanding balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPersistence is returned when the backing store fails.
	ErrPersistence = errors.New("persistence failure")

	// ErrConcurrentModification is returned when the store detects a write conflict.
	// It is always wrapped in a PersistenceError.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateEntry is returned when an entry id is reused.
	ErrDuplicateEntry = errors.New("duplicate entry id")

	// ErrUnitOverflow is returned when an account's unit sum does not fit in int64.
	ErrUnitOverflow = errors.New("unit sum overflows")
)

// Kind is a stable, machine-readable error code.
type Kind string

const (
	KindNone                Kind = ""
	KindInvalidRequest      Kind = "invalid_request"
	KindAccountNotFound     Kind = "account_not_found"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindPersistence         Kind = "persistence_error"
	KindUnknown             Kind = "internal_error"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRequestError names the offending field.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func NewInvalidRequestError(field, reason string) *InvalidRequestError {
	return &InvalidRequestError{Field: field, Reason: reason}
}

func (e *InvalidRequestError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }
func (e *InvalidRequestError) Kind() Kind    { return KindInvalidRequest }

// AccountNotFoundError identifies the unknown account.
type AccountNotFoundError struct {
	AccountID AccountID
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account not found: %s", e.AccountID)
}

func (e *AccountNotFoundError) Unwrap() error { return ErrAccountNotFound }
func (e *AccountNotFoundError) Kind() Kind    { return KindAccountNotFound }

// InsufficientBalanceError provides details about a balance shortage.
// Available is the true (unclamped) outstanding balance at validation time.
type InsufficientBalanceError struct {
	AccountID AccountID
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: cannot return %d units, account %s has %d outstanding",
		e.Requested, e.AccountID, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
func (e *InsufficientBalanceError) Kind() Kind    { return KindInsufficientBalance }

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string // e.g. "append", "entries_for"
	Err error
}

func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *PersistenceError
	if errors.As(err, &existing) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying store error.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
func (e *PersistenceError) Kind() Kind      { return KindPersistence }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the stable kind of err, KindNone for nil and KindUnknown
// for errors outside the taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var kinded interface{ Kind() Kind }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrAccountNotFound):
		return KindAccountNotFound
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	}
	return KindUnknown
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is an expected business outcome.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsNotFound returns true if the error indicates a missing account.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
