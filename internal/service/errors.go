package service

import (
	"errors"
	"fmt"

	"clinic-web/internal/validation"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRequestFailed = errors.New("request failed")
)

// FieldError reports per-field validation messages. It never reaches the
// clinic API.
type FieldError struct {
	Fields validation.FieldErrors
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Fields.Error())
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// RequestError carries the static message shown to the user for a failed
// call to the clinic API. The cause is kept for logs only.
type RequestError struct {
	Message string
	Cause   error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() []error {
	return []error{ErrRequestFailed, e.Cause}
}

func validationError(message string) error {
	return fmt.Errorf("%w: %s", ErrValidation, message)
}

func fieldsError(fields validation.FieldErrors) error {
	if fields.Empty() {
		return nil
	}
	return &FieldError{Fields: fields}
}

func unauthorizedError(message string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, message)
}

func requestFailed(message string, cause error) error {
	return &RequestError{Message: message, Cause: cause}
}
