package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed submissions. No state is mutated.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an order or account reference does not resolve.
	ErrNotFound = errors.New("reference not found")

	// ErrIllegalState is returned when an operation is not allowed in the current order state.
	ErrIllegalState = errors.New("illegal state")

	// ErrGatewayUnavailable is returned when market data cannot be fetched. It aborts a whole sweep.
	ErrGatewayUnavailable = errors.New("market data gateway unavailable")

	// ErrOrderNotPending is returned when a conditional fill finds the order already settled or removed.
	ErrOrderNotPending = errors.New("order is not pending")

	// ErrMarketClosed is returned by a sweep requested outside the trading window.
	ErrMarketClosed = errors.New("market closed")
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ValidationError describes a rejected field of an order, account or depth request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ReferenceError is returned for unknown or malformed identifiers.
type ReferenceError struct {
	Kind string // "order", "account"
	Ref  string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Ref)
}

func (e *ReferenceError) Unwrap() error {
	return ErrNotFound
}

// IllegalStateError is returned when an order is not in a state that permits the operation.
type IllegalStateError struct {
	Ref   string
	State string
	Op    string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("cannot %s order %q: order is %s", e.Op, e.Ref, e.State)
}

func (e *IllegalStateError) Unwrap() error {
	return ErrIllegalState
}

// GatewayError wraps a market data failure. The next scheduled sweep retries it wholesale.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return "gateway " + e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) IsRetriable() bool {
	return true
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayUnavailable
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
