/*
errors.go - Centralized error types for the contract engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Product packages (savings, credit) return these, wrapped with context.

ERROR CATEGORIES:
  1. Terms errors - bad contract terms, never retryable
  2. Business-rule rejections - overpayment, wrong state for the operation
  3. Concurrency errors - optimistic-lock conflicts, retry the whole recompute
  4. Configuration errors - rates missing, fatal until an administrator acts
  5. Store errors - missing documents, duplicate idempotency keys

USAGE:
  var over *generic.OverpaymentRejectedError
  if errors.As(err, &over) {
      // tell the cashier which obligation refused the money
  }
  if generic.IsRetryable(err) {
      // reload and recompute
  }

SEE ALSO:
  - store.go: returns ConcurrentModificationError on version mismatch
  - rates.go: returns ConfigurationMissingError
  - api/handlers.go: maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidTerms = errors.New("invalid contract terms")

	// ErrOverpaymentRejected is returned when a contribution would push an
	// obligation past its due amount on a plan that forbids overpayment.
	ErrOverpaymentRejected = errors.New("overpayment rejected")

	ErrContractNotEligible = errors.New("contract not eligible for operation")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrConfigurationMissing is returned when no rate schedule is in force.
	// No penalty or default transition can be computed without it.
	ErrConfigurationMissing = errors.New("rate configuration missing")

	// ErrDuplicateIdempotencyKey is returned when a money movement with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	ErrContractNotFound = errors.New("contract not found")

	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrScheduleLocked is returned when a schedule mutation is attempted after a
	// payment or a refund case exists.
	ErrScheduleLocked = errors.New("schedule is locked")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTermsError names the offending term.
type InvalidTermsError struct {
	Field  string
	Reason string
}

func (e *InvalidTermsError) Error() string {
	return fmt.Sprintf("invalid terms: %s %s", e.Field, e.Reason)
}

func (e *InvalidTermsError) Unwrap() error { return ErrInvalidTerms }

// OverpaymentRejectedError names the obligation or installment that refused the money.
type OverpaymentRejectedError struct {
	ContractID    ContractID
	ObligationRef string
	AmountDue     decimal.Decimal
	AlreadyPaid   decimal.Decimal
	Attempted     decimal.Decimal
}

func (e *OverpaymentRejectedError) Error() string {
	return fmt.Sprintf("overpayment rejected on %s: due %s, already paid %s, attempted %s",
		e.ObligationRef, e.AmountDue, e.AlreadyPaid, e.Attempted)
}

func (e *OverpaymentRejectedError) Unwrap() error { return ErrOverpaymentRejected }

// ContractNotEligibleError is returned for operations attempted in the wrong state.
type ContractNotEligibleError struct {
	ContractID ContractID
	Operation  string
	Status     string
	Reason     string
}

func (e *ContractNotEligibleError) Error() string {
	msg := fmt.Sprintf("contract %s not eligible for %s in status %s", e.ContractID, e.Operation, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ContractNotEligibleError) Unwrap() error { return ErrContractNotEligible }

type ConcurrentModificationError struct {
	ContractID      ContractID
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("contract %s modified concurrently: expected version %d, found %d",
		e.ContractID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConcurrentModificationError) Unwrap() error { return ErrConcurrentModification }

type ConfigurationMissingError struct {
	PlanKind string
	At       TimePoint
	Detail   string
}

func (e *ConfigurationMissingError) Error() string {
	msg := fmt.Sprintf("no rate schedule in force for plan %q at %s", e.PlanKind, e.At)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConfigurationMissingError) Unwrap() error { return ErrConfigurationMissing }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTerms) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrOverpaymentRejected) ||
		errors.Is(err, ErrContractNotEligible) ||
		errors.Is(err, ErrScheduleLocked) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing contract.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound)
}
