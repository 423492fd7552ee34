package timeslot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ===============================
// Error codes
// ===============================

type Code string

const (
	CodeMissingField      Code = "missing_field"
	CodeInvalidField      Code = "invalid_field"
	CodeInvalidRange      Code = "invalid_range"
	CodeInvalidDate       Code = "invalid_date"
	CodePastDate          Code = "past_date"
	CodeCapacityExceeded  Code = "capacity_exceeded"
	CodeOverlap           Code = "overlap"
	CodeEntityMismatch    Code = "entity_mismatch"
	CodeDuplicateTarget   Code = "duplicate_target"
	CodeNotFound          Code = "not_found"
	CodeAlreadyProcessed  Code = "already_processed"
	CodeForbidden         Code = "forbidden"
	CodeRepositoryFailure Code = "repository_failure"
)

// Sentinels returned by repository implementations.
var (
	ErrNotFound   = errors.New("timeslot: record not found")
	ErrStaleState = errors.New("timeslot: state changed concurrently")
)

// ===============================
// Collected validation errors
// ===============================

// FieldError is one problem found while validating a request. Index is the
// position of the offending item in the request, or -1.
type FieldError struct {
	Code    Code   `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Index   int    `json:"index"`

	ConflictIndex  *int       `json:"conflict_index,omitempty"`
	ConflictSlotID *uuid.UUID `json:"conflict_slot_id,omitempty"`
}

// ValidationErrors is returned whole so callers can show every problem at once.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Has(code Code) bool {
	for _, fe := range v {
		if fe.Code == code {
			return true
		}
	}
	return false
}

func (v ValidationErrors) Count(code Code) int {
	n := 0
	for _, fe := range v {
		if fe.Code == code {
			n++
		}
	}
	return n
}

// ===============================
// Single-item errors
// ===============================

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func AlreadyProcessed(format string, args ...any) *Error {
	return &Error{Code: CodeAlreadyProcessed, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// RepositoryFailure wraps a storage fault. Domain errors pass through
// untouched so a rollback keeps its original cause.
func RepositoryFailure(op string, err error) error {
	if err == nil {
		return nil
	}

	var ve ValidationErrors
	if errors.As(err, &ve) {
		return err
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}

	return &Error{Code: CodeRepositoryFailure, Message: op, Err: err}
}

// CodeOf reports the code carried by err, or "" when err is not a domain error.
func CodeOf(err error) Code {
	var ve ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return ve[0].Code
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func IsCode(err error, code Code) bool {
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve.Has(code)
	}
	return CodeOf(err) == code
}
