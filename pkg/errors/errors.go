// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Telos.
// Every failure that crosses a package boundary carries a stable code so the
// scheduler, the admin API, and the telemetry layer can classify it without
// string matching.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode classifies Telos errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeUnknownCapability indicates a capability name that is not registered
	// (or was dropped by the allow-list filter).
	CodeUnknownCapability ErrorCode = "UNKNOWN_CAPABILITY"

	// CodeInvalidArguments indicates arguments that failed schema validation.
	CodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"

	// CodeDuplicateCapability indicates a second registration of an existing name.
	CodeDuplicateCapability ErrorCode = "DUPLICATE_CAPABILITY"

	// CodeApprovalTimeout indicates an approval wait that expired before resolution.
	CodeApprovalTimeout ErrorCode = "APPROVAL_TIMEOUT"

	// CodeApprovalRejected indicates an approver rejected the gated step.
	CodeApprovalRejected ErrorCode = "APPROVAL_REJECTED"

	// CodePlanExhausted indicates a plan graph with no ready and no running
	// node that is not terminal. This is an invariant violation and fatal to
	// the run.
	CodePlanExhausted ErrorCode = "PLAN_EXHAUSTED"

	// CodeParseError indicates model output the strict decoder could not accept.
	CodeParseError ErrorCode = "PARSE_ERROR"

	// CodeCollaboratorUnavailable indicates an unavailable external
	// collaborator (language model, vector search, session store).
	CodeCollaboratorUnavailable ErrorCode = "COLLABORATOR_UNAVAILABLE"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeCancelled indicates the run context was cancelled.
	CodeCancelled ErrorCode = "CANCELLED"

	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL"
)

// TelosError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type TelosError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int // for HTTP responses from the admin API
}

// Error implements the error interface.
func (e *TelosError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *TelosError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *TelosError) MarshalJSON() ([]byte, error) {
	type Alias TelosError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new TelosError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *TelosError {
	return &TelosError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *TelosError) WithContext(key string, value interface{}) *TelosError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *TelosError) WithAttribute(key, value string) *TelosError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *TelosError) WithRecoverable(recoverable bool) *TelosError {
	e.Recoverable = recoverable
	return e
}

// AsTelosError attempts to convert an error to a TelosError.
// Returns the error as TelosError if it is one, or wraps it otherwise.
func AsTelosError(err error) *TelosError {
	if err == nil {
		return nil
	}
	var te *TelosError
	if errors.As(err, &te) {
		return te
	}
	// Wrap unknown error as internal
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the error code of err, or CodeInternal when err carries none.
// A nil err returns the empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var te *TelosError
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeInternal
}

// IsCode reports whether err (or any error it wraps) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *TelosError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes for the admin API.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound, CodeUnknownCapability:
		return 404
	case CodeInvalidArguments, CodeParseError:
		return 400
	case CodeDuplicateCapability, CodeApprovalRejected:
		return 409
	case CodeTimeout, CodeApprovalTimeout:
		return 408
	case CodeCollaboratorUnavailable:
		return 503
	default:
		return 500
	}
}
