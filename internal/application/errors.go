package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when an event id is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrLockConflict is returned when another actor holds the event lock.
	ErrLockConflict = errors.New("application: event locked by another user")
	// ErrRegenerationLimit is returned by strict expansion when a rule would
	// produce more occurrences than the configured ceiling.
	ErrRegenerationLimit = errors.New("application: recurrence exceeds max recurrent events")
	// ErrInvalidRule matches every malformed recurrence rule.
	ErrInvalidRule = recurrence.ErrInvalidRule
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// PartialUpdateError reports a propagation that stopped part way through a
// recurrence group. Updated siblings keep their changes.
type PartialUpdateError struct {
	Updated []string
	Pending []string
	Err     error
}

func (e *PartialUpdateError) Error() string {
	return fmt.Sprintf("application: update stopped after %d of %d events (pending: %s): %v",
		len(e.Updated), len(e.Updated)+len(e.Pending), strings.Join(e.Pending, ", "), e.Err)
}

func (e *PartialUpdateError) Unwrap() error {
	return e.Err
}
