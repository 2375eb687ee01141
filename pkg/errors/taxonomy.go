// SPDX-License-Identifier: Apache-2.0

package errors

import "fmt"

// NewUnknownCapability reports a resolve or execute call against a name that
// is not in the registry's resolvable set.
func NewUnknownCapability(name string) *TelosError {
	return New(CodeUnknownCapability, fmt.Sprintf("capability %q is not registered", name), nil).
		WithContext("capability", name).
		WithAttribute("capability", name)
}

// NewInvalidArguments reports a schema validation failure. details holds one
// entry per violation (missing field, wrong type, unexpected field).
func NewInvalidArguments(name string, details []string) *TelosError {
	return New(CodeInvalidArguments, fmt.Sprintf("invalid arguments for %q", name), nil).
		WithContext("capability", name).
		WithContext("details", details).
		WithAttribute("capability", name)
}

// NewDuplicateCapability reports a second registration of an existing name
// under the reject-duplicates policy.
func NewDuplicateCapability(name string) *TelosError {
	return New(CodeDuplicateCapability, fmt.Sprintf("capability %q is already registered", name), nil).
		WithContext("capability", name)
}

// NewApprovalTimeout reports an approval wait that expired unresolved.
func NewApprovalTimeout(id string) *TelosError {
	return New(CodeApprovalTimeout, fmt.Sprintf("approval %s timed out", id), nil).
		WithContext("approval_id", id).
		WithRecoverable(true)
}

// NewApprovalRejected reports an approver rejecting the gated step.
func NewApprovalRejected(id, reason string) *TelosError {
	e := New(CodeApprovalRejected, fmt.Sprintf("approval %s rejected", id), nil).
		WithContext("approval_id", id)
	if reason != "" {
		e = e.WithContext("reason", reason)
	}
	return e
}

// NewPlanExhausted reports a non-terminal graph with nothing ready and
// nothing running. Fatal to the run.
func NewPlanExhausted(runID string) *TelosError {
	return New(CodePlanExhausted, "plan graph has no ready node and is not terminal", nil).
		WithContext("run_id", runID)
}

// NewParseError reports model output the strict decoder rejected.
func NewParseError(what string, line int, cause error) *TelosError {
	return New(CodeParseError, fmt.Sprintf("cannot decode %s output", what), cause).
		WithContext("line", line).
		WithRecoverable(true)
}

// WrapCollaborator wraps a failure from an external collaborator
// (language model, vector search, session store). Always recoverable: the
// loop degrades rather than aborts.
func WrapCollaborator(service string, err error) *TelosError {
	return New(CodeCollaboratorUnavailable, fmt.Sprintf("%s unavailable", service), err).
		WithContext("service", service).
		WithAttribute("service", service).
		WithRecoverable(true)
}
