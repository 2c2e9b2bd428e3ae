package core

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrInvalidReport    = errors.New("invalid error report")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrStoreUnavailable = errors.New("error store unavailable")
)

// ValidationError is a client error in a submitted report
type ValidationError struct {
	Field   string
	Message string
	Code    int
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidReport
}

// NewMissingFieldsError builds a 400 error naming the missing fields
func NewMissingFieldsError(fields []string) *ValidationError {
	msg := "Missing required fields: " + strings.Join(fields, ", ")
	field := ""
	if len(fields) == 1 {
		field = fields[0]
	}
	return &ValidationError{Field: field, Message: msg, Code: http.StatusBadRequest}
}

// NewInvalidFieldError builds a 400 error for a value outside its allowed set
func NewInvalidFieldError(field string, allowed []string) *ValidationError {
	msg := "Invalid " + field + ". Must be one of: " + strings.Join(allowed, ", ")
	return &ValidationError{Field: field, Message: msg, Code: http.StatusBadRequest}
}
