package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotActivatable is returned when an activation is attempted against a
// licence that is not in the pending state.
var ErrNotActivatable = errors.New("licence is not in pending state")

// ValidationError carries all field-level violations of an operation at once;
// validation never fails fast on the first bad field.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, messages := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(messages, "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
