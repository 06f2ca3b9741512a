package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a CHECK or NOT NULL constraint fails.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrInvalidRecurrence is returned when a recurrence rule row fails a schema check.
	ErrInvalidRecurrence = errors.New("persistence: invalid recurrence rule")
	// ErrLocked is returned when the database stayed busy past the retry budget.
	ErrLocked = errors.New("persistence: database locked")
)
