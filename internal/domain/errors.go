package domain

import "fmt"

// ValidationError reports a field value rejected at construction or update.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AlreadyReturnedError reports a second return of the same loan. Kept
// distinct from validation failures because it points at a coordination
// bug in the caller rather than bad input.
type AlreadyReturnedError struct {
	LoanID string
}

func (e *AlreadyReturnedError) Error() string {
	return fmt.Sprintf("loan %s has already been returned", e.LoanID)
}

// NotFoundError reports an unknown user/item/loan reference.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError reports an operation blocked by current state, such as
// registering a duplicate identifier or removing an item that is on loan.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
