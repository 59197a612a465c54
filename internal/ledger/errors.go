/*
errors.go - Closed error taxonomy for the transaction engine

PURPOSE:
  All domain error kinds in one place, as a closed tagged error taxonomy
  rather than ad-hoc wrapped strings.

CATEGORIES:
  1. Domain errors   - raised by the double-entry writer, the coordinator
                       and the executor; a non-retryable failure of the write
                       is cached by the idempotency store (1h TTL).
  2. Infra errors    - network/database failures; never cached, since caching
                       them would poison retries of an otherwise healthy
                       operation.

USAGE:
  errors.Is(err, ledger.ErrInsufficientBalance)
*/
package ledger

import (
	"errors"
	"fmt"
)

// Kind is the closed set of domain error kinds this engine can surface.
type Kind string

const (
	KindInsufficientBalance       Kind = "INSUFFICIENT_BALANCE"
	KindSourceWalletNotFound      Kind = "SOURCE_WALLET_NOT_FOUND"
	KindDestinationWalletNotFound Kind = "DESTINATION_WALLET_NOT_FOUND"
	KindConcurrentModSource       Kind = "CONCURRENT_MODIFICATION_SOURCE"
	KindConcurrentModDestination  Kind = "CONCURRENT_MODIFICATION_DESTINATION"
	KindLockUnavailable           Kind = "LOCK_UNAVAILABLE"
	KindRequestAlreadyProcessing  Kind = "REQUEST_ALREADY_PROCESSING"
	KindIdempotencyKeyRequired    Kind = "IDEMPOTENCY_KEY_REQUIRED"
	KindInvalidAmount             Kind = "INVALID_AMOUNT"
)

// DomainError is a tagged error carrying a Kind, suitable for caching in the
// idempotency store and for mapping to an HTTP status by an external
// collaborator.
type DomainError struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *DomainError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, ledger.NewDomainError(kind, "")) match by Kind alone.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if errors.As(target, &de) {
		return de.Kind == e.Kind
	}
	return false
}

// NewDomainError builds a DomainError of the given kind.
func NewDomainError(kind Kind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

// WrapDomainError builds a DomainError of the given kind, retaining cause
// for errors.Unwrap/errors.As chains (e.g. unwrapping to a driver error).
func WrapDomainError(kind Kind, message string, cause error) *DomainError {
	return &DomainError{Kind: kind, Message: message, cause: cause}
}

// Sentinel errors for errors.Is() against a bare Kind, mirroring the
// teacher's sentinel-error style (generic/errors.go).
var (
	ErrInsufficientBalance       = NewDomainError(KindInsufficientBalance, "")
	ErrSourceWalletNotFound      = NewDomainError(KindSourceWalletNotFound, "")
	ErrDestinationWalletNotFound = NewDomainError(KindDestinationWalletNotFound, "")
	ErrConcurrentModSource       = NewDomainError(KindConcurrentModSource, "")
	ErrConcurrentModDestination  = NewDomainError(KindConcurrentModDestination, "")
	ErrLockUnavailable           = NewDomainError(KindLockUnavailable, "")
	ErrRequestAlreadyProcessing  = NewDomainError(KindRequestAlreadyProcessing, "")
	ErrIdempotencyKeyRequired    = NewDomainError(KindIdempotencyKeyRequired, "")
	ErrInvalidAmount             = NewDomainError(KindInvalidAmount, "")
)

// IsDomainError reports whether err is a *DomainError — i.e. a failure this
// engine understands well enough to cache and return to a retried caller,
// as opposed to a transient infrastructure failure.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// KindOf extracts the Kind from a domain error, or "" if err is not one.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsRetryable reports whether a caller might reasonably retry with the same
// idempotency key and succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindLockUnavailable, KindConcurrentModSource, KindConcurrentModDestination:
		return true
	default:
		return false
	}
}
