// Package domain holds the error taxonomy shared by every RCM component.
package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the machine-readable error kind surfaced to callers.
type Kind string

const (
	KindMissingToken         Kind = "MissingToken"
	KindInvalidToken         Kind = "InvalidToken"
	KindInsufficientScope    Kind = "InsufficientScope"
	KindTenantMismatch       Kind = "TenantMismatch"
	KindGatewayNotConfigured Kind = "GatewayNotConfigured"
	KindUnsupportedOperation Kind = "UnsupportedOperation"
	KindGatewayUnavailable   Kind = "GatewayUnavailable"
	KindGatewayDeclined      Kind = "GatewayDeclined"
	KindInvalidTimeframe     Kind = "InvalidTimeframe"
	KindInvalidPayload       Kind = "InvalidPayload"
	KindInvalidTransition    Kind = "InvalidTransition"
	KindConflict             Kind = "Conflict"
	KindIdempotencyConflict  Kind = "IdempotencyConflict"
	KindNotFound             Kind = "NotFound"
	KindInternal             Kind = "Internal"
)

// Category groups kinds into the families callers reason about.
type Category string

const (
	CategoryAuth        Category = "AuthError"
	CategoryGateway     Category = "GatewayError"
	CategoryValidation  Category = "ValidationError"
	CategoryConsistency Category = "ConsistencyError"
	CategoryNotFound    Category = "NotFound"
	CategoryInternal    Category = "Internal"
)

// Category returns the family a kind belongs to.
func (k Kind) Category() Category {
	switch k {
	case KindMissingToken, KindInvalidToken, KindInsufficientScope, KindTenantMismatch:
		return CategoryAuth
	case KindGatewayNotConfigured, KindUnsupportedOperation, KindGatewayUnavailable, KindGatewayDeclined:
		return CategoryGateway
	case KindInvalidTimeframe, KindInvalidPayload:
		return CategoryValidation
	case KindInvalidTransition, KindConflict, KindIdempotencyConflict:
		return CategoryConsistency
	case KindNotFound:
		return CategoryNotFound
	default:
		return CategoryInternal
	}
}

// DomainError is the single error type crossing component boundaries.
// Message is safe to show to callers; Cause is internal detail and is never
// rendered in responses.
type DomainError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Is matches any DomainError of the same kind, so the sentinels below work
// with errors.Is regardless of message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrMissingToken         = &DomainError{Kind: KindMissingToken}
	ErrInvalidToken         = &DomainError{Kind: KindInvalidToken}
	ErrInsufficientScope    = &DomainError{Kind: KindInsufficientScope}
	ErrTenantMismatch       = &DomainError{Kind: KindTenantMismatch}
	ErrGatewayNotConfigured = &DomainError{Kind: KindGatewayNotConfigured}
	ErrUnsupportedOperation = &DomainError{Kind: KindUnsupportedOperation}
	ErrGatewayUnavailable   = &DomainError{Kind: KindGatewayUnavailable}
	ErrGatewayDeclined      = &DomainError{Kind: KindGatewayDeclined}
	ErrInvalidTimeframe     = &DomainError{Kind: KindInvalidTimeframe}
	ErrInvalidPayload       = &DomainError{Kind: KindInvalidPayload}
	ErrInvalidTransition    = &DomainError{Kind: KindInvalidTransition}
	ErrConflict             = &DomainError{Kind: KindConflict}
	ErrIdempotencyConflict  = &DomainError{Kind: KindIdempotencyConflict}
	ErrNotFound             = &DomainError{Kind: KindNotFound}
)

// NewError builds a DomainError of the given kind.
func NewError(kind Kind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

// Wrap builds a DomainError carrying an internal cause.
func Wrap(kind Kind, message string, cause error) *DomainError {
	return &DomainError{Kind: kind, Message: message, Cause: cause}
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *DomainError {
	return NewError(KindNotFound, fmt.Sprintf("%s %s not found", entity, id))
}

// NewInvalidStateError reports a state machine transition outside the table.
func NewInvalidStateError(from, to string) *DomainError {
	return NewError(KindInvalidTransition, fmt.Sprintf("cannot transition from %s to %s", from, to))
}

// NewConflictError reports a concurrent modification.
func NewConflictError(message string) *DomainError {
	return NewError(KindConflict, message)
}

// NewValidationError reports a malformed payload.
func NewValidationError(message string) *DomainError {
	return NewError(KindInvalidPayload, message)
}

// NewTransientGatewayError reports a network or timeout class failure that is
// safe to retry.
func NewTransientGatewayError(message string, cause error) *DomainError {
	return Wrap(KindGatewayUnavailable, message, cause)
}

// NewDeclinedError reports a permanent gateway rejection.
func NewDeclinedError(message string, cause error) *DomainError {
	return Wrap(KindGatewayDeclined, message, cause)
}

// KindOf extracts the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsTransient reports whether err should be retried against a gateway.
// Context deadline errors count as transient; cancellation does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return KindOf(err) == KindGatewayUnavailable
}
