// Package ctxerr defines the failure taxonomy shared by the validator, the
// assembler and the determinism checker.
//
// Every failure surfaced to callers is an *Error carrying a Code. The CLI is
// the only place that turns codes into exit statuses; library callers use
// errors.As / errors.Is (or CodeOf) to branch on the taxonomy.
package ctxerr

import (
	"errors"
	"fmt"
)

// Code is the taxonomy tag of a failure.
type Code string

const (
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeBudget      Code = "BUDGET_ERROR"
	CodeAssembly    Code = "ASSEMBLY_ERROR"
	CodeDeterminism Code = "DETERMINISM_ERROR"
)

// Sentinels for errors.Is matching by code.
var (
	ErrValidation  = &Error{Code: CodeValidation}
	ErrBudget      = &Error{Code: CodeBudget}
	ErrAssembly    = &Error{Code: CodeAssembly}
	ErrDeterminism = &Error{Code: CodeDeterminism}
)

// Error is a structured failure. Field names the offending draft path for
// validation failures; ID and Ceiling name the item and the violated budget
// for budget failures.
type Error struct {
	Code    Code
	Message string
	Field   string
	ID      string
	Ceiling string
	Cause   error
}

// Error renders the CLI form "CODE:message".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s:%s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s:%s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error with the same code, so errors.Is(err, ErrBudget)
// works regardless of message or detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Validation reports a malformed or incomplete draft at field.
func Validation(field, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Budget reports a must-include item that no ceiling can admit.
func Budget(id, ceiling string, format string, args ...any) *Error {
	return &Error{Code: CodeBudget, ID: id, Ceiling: ceiling, Message: fmt.Sprintf(format, args...)}
}

// Assembly reports an internal fault.
func Assembly(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeAssembly, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Determinism reports a hash mismatch between two runs over the same draft.
func Determinism(hashA, hashB string) *Error {
	return &Error{
		Code:    CodeDeterminism,
		Message: fmt.Sprintf("hash mismatch %s != %s", hashA, hashB),
	}
}

// CodeOf classifies err. Errors outside the taxonomy are reported as
// ASSEMBLY_ERROR; nil yields the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeAssembly
}
