package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a malformed billing configuration.
	ErrConfiguration = errors.New("invalid billing configuration")

	// ErrInvariantViolation marks an edit that contradicts payment history.
	ErrInvariantViolation = errors.New("billing invariant violation")

	// ErrConcurrencyConflict marks a lost race on a subscription write.
	ErrConcurrencyConflict = errors.New("concurrent billing update")

	// ErrNoBillingDue is returned when a subscription has no next billing date.
	ErrNoBillingDue = errors.New("no billing date due")

	// ErrNotFound is returned when a subscription or payment does not exist.
	ErrNotFound = errors.New("record not found")
)

// ConfigurationError describes which part of a configuration is invalid.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid billing configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErr(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvariantViolation is returned before any write when an edit would make the
// billing configuration inconsistent with recorded payments.
type InvariantViolation struct {
	Field  string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("billing invariant violation: %s: %s", e.Field, e.Reason)
}

func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariantViolation
}

// ConflictError is returned to the loser of a concurrent write. Callers may
// retry the request.
type ConflictError struct {
	SubscriptionID uint
	Reason         string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent billing update on subscription %d: %s", e.SubscriptionID, e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// Retryable reports that the operation can be attempted again.
func (e *ConflictError) Retryable() bool {
	return true
}
