package engine

import (
	"errors"
	"fmt"

	"github.com/louisbranch/cafe/internal/services/cafe/domain/command"
	"github.com/louisbranch/cafe/internal/services/cafe/storage"
)

var (
	// ErrNoHandlerRegistered indicates a command type with no aggregate route.
	ErrNoHandlerRegistered = errors.New("no handler registered for command type")
	// ErrNoFoldRegistered indicates an event type no routed aggregate applies.
	ErrNoFoldRegistered = errors.New("no fold registered for event type")
	// ErrStoreRequired indicates a missing event store.
	ErrStoreRequired = errors.New("event store is required")
	// ErrKindRequired indicates a missing aggregate kind at registration.
	ErrKindRequired = errors.New("aggregate kind is required")
)

// DomainRuleViolation reports that an aggregate declined a command. Code is
// the first rejection's rule identifier; Rejections keeps all of them.
type DomainRuleViolation struct {
	Code       string
	Message    string
	Rejections []command.Rejection
}

func (e *DomainRuleViolation) Error() string {
	return fmt.Sprintf("domain rule violated: %s: %s", e.Code, e.Message)
}

func newDomainRuleViolation(rejections []command.Rejection) *DomainRuleViolation {
	first := rejections[0]
	return &DomainRuleViolation{
		Code:       first.Code,
		Message:    first.Message,
		Rejections: append([]command.Rejection(nil), rejections...),
	}
}

// IsDomainRuleViolation reports whether err carries a DomainRuleViolation.
func IsDomainRuleViolation(err error) bool {
	var target *DomainRuleViolation
	return errors.As(err, &target)
}

// RejectionCode returns the rule identifier carried by err, if any.
func RejectionCode(err error) (string, bool) {
	var target *DomainRuleViolation
	if !errors.As(err, &target) {
		return "", false
	}
	return target.Code, true
}

// IsConcurrencyConflict reports whether err is an optimistic concurrency
// conflict. The caller may reload and resend the command.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, storage.ErrConcurrencyConflict)
}

// nonRetryableError wraps an error to signal that resending the same command
// cannot succeed, e.g. a routing or aggregate wiring defect.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable returns true from IsNonRetryable checks.
func (e *nonRetryableError) NonRetryable() bool { return true }

// wrapNonRetryable marks an error as non-retryable.
func wrapNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable returns true when the error (or any error in its chain)
// signals that the command must not be retried as is.
func IsNonRetryable(err error) bool {
	var target interface{ NonRetryable() bool }
	if errors.As(err, &target) {
		return target.NonRetryable()
	}
	return false
}
