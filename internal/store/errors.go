package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the memory and Postgres stores.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrDuplicate     = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrExecutionNotFound is returned when no execution was recorded for a
	// task id. It matches ErrNotFound.
	ErrExecutionNotFound = fmt.Errorf("%w: execution", ErrNotFound)

	// ErrDomainNotFound is returned for an unknown scrape domain. It matches
	// ErrNotFound.
	ErrDomainNotFound = fmt.Errorf("%w: scrape domain", ErrNotFound)
)

// Entity names used in StoreError
const (
	EntityExecution    = "execution"
	EntityScrapeDomain = "scrape_domain"
)

// IsNotFoundError reports whether err matches ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError records which entity and operation failed. It unwraps to Err,
// so errors.Is(err, ErrInvalidEntity) and friends keep working.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Entity, e.Operation, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
