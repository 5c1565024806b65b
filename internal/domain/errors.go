// Package domain provides shared domain-level sentinel errors and
// structured error types used across the content store.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates a referenced entity, type, organization or version
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a slug collision within an organization/type scope.
var ErrConflict = errors.New("conflict: slug already in use")

// ErrForbidden indicates a capability check failed or a capability set was
// missing on a protected path.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidStatus indicates an edit was attempted on an entity that is not
// in draft status.
var ErrInvalidStatus = errors.New("invalid status: only draft entities can be edited")

// FieldError is a single per-field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Row     int    `json:"row,omitempty"` // 1-based row number for bulk imports, 0 otherwise
}

func (e FieldError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError carries the complete list of field-level rejections for a
// write or import. Bulk operations report every failure, not just the first.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Add appends a field failure. Convenient for accumulating during a scan.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// AddRow appends a field failure attributed to a bulk-import row.
func (e *ValidationError) AddRow(row int, field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message, Row: row})
}

// Empty reports whether no failures were recorded.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransitionError indicates an illegal publication state-machine action.
// Legal carries the actions valid from the current status so callers can
// render affordances.
type TransitionError struct {
	Status string
	Action string
	Legal  []string
}

func (e *TransitionError) Error() string {
	if len(e.Legal) == 0 {
		return fmt.Sprintf("invalid transition %q from status %q: no actions available", e.Action, e.Status)
	}
	return fmt.Sprintf("invalid transition %q from status %q: legal actions are %s",
		e.Action, e.Status, strings.Join(e.Legal, ", "))
}

// IsTransition reports whether err is (or wraps) a TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
