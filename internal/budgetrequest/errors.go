package budgetrequest

import (
	"errors"
	"fmt"

	"budget-backend/internal/models"
)

var (
	ErrNotFound          = errors.New("budget request not found")
	ErrForbidden         = errors.New("not allowed to act on this budget request")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError reports the status a request was in and the one the
// operation needed.
type TransitionError struct {
	ID       uint
	Current  models.RequestStatus
	Required models.RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("budget request %d is %s, must be %s", e.ID, e.Current, e.Required)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
