package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPageIndex is returned when a negative page index is requested
	ErrInvalidPageIndex = errors.New("page index must not be negative")

	// ErrInvalidConfig is wrapped by every configuration validation failure
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationReason identifies which ledger invariant was violated
type ValidationReason string

const (
	ReasonMissingCategoryForExpense ValidationReason = "MISSING_CATEGORY_FOR_EXPENSE"
	ReasonCategoryOnIncome          ValidationReason = "CATEGORY_ON_INCOME"
	ReasonUnknownCategory           ValidationReason = "UNKNOWN_CATEGORY"
	ReasonAmountTooPrecise          ValidationReason = "AMOUNT_TOO_PRECISE"
)

// ValidationError reports a transaction that breaks the category rule
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: %s", e.Message)
}

// Is matches any ValidationError carrying the same reason
func (e *ValidationError) Is(target error) bool {
	var other *ValidationError
	if !errors.As(target, &other) {
		return false
	}
	return e.Reason == other.Reason
}

var (
	ErrMissingCategoryForExpense = &ValidationError{
		Reason:  ReasonMissingCategoryForExpense,
		Message: "an expense transaction must have a category",
	}
	ErrCategoryOnIncome = &ValidationError{
		Reason:  ReasonCategoryOnIncome,
		Message: "an income transaction cannot have a category",
	}
)

// FetchErrorKind distinguishes transport failures from payload failures
type FetchErrorKind string

const (
	FetchNetwork FetchErrorKind = "NETWORK"
	FetchDecode  FetchErrorKind = "DECODE"
)

// FetchError is returned by a RateFetcher
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchNetwork:
		return fmt.Sprintf("rate fetch failed: network: %v", e.Err)
	case FetchDecode:
		return fmt.Sprintf("rate fetch failed: decode: %v", e.Err)
	default:
		return fmt.Sprintf("rate fetch failed: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// CacheOp is the rate cache operation that failed
type CacheOp string

const (
	CacheRead  CacheOp = "read"
	CacheWrite CacheOp = "write"
)

// CacheError is returned by a RateCache
type CacheError struct {
	Op  CacheOp
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("rate cache %s failed: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// PersistenceOp is the ledger storage operation that failed
type PersistenceOp string

const (
	PersistenceRead  PersistenceOp = "read"
	PersistenceWrite PersistenceOp = "write"
)

// PersistenceError wraps failures of the underlying transaction repository
type PersistenceError struct {
	Op  PersistenceOp
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
