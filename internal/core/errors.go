package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidType   = errors.New("invalid transaction type, must be Income or Expense")
	ErrEmptyCategory = errors.New("empty category")
	ErrHeaderRow     = errors.New("row 1 is the header and cannot be addressed")
	ErrEmptyPatch    = errors.New("no fields to update")
	ErrNoCriteria    = errors.New("no search criteria given")

	ErrRowOutOfRange  = errors.New("row index out of range")
	ErrNotFound       = errors.New("no matching transaction found")
	ErrCategoryExists = errors.New("category already exists")
	ErrNotConnected   = errors.New("ledger not connected")
)

// ValidationError reports input rejected before any remote call.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, value string, err error) error {
	return &ValidationError{Field: field, Value: value, Err: err}
}

// Invalid builds a ValidationError for callers outside this package.
func Invalid(field, value string, err error) error {
	return invalid(field, value, err)
}

// AmbiguousError is returned when a criteria-based operation matched more
// than one transaction. Nothing was mutated.
type AmbiguousError struct {
	Candidates []Transaction
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d transactions match the criteria", len(e.Candidates))
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
