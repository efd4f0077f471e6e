// -----------------------------------------------------------------------
// Error taxonomy - every terminal failure an export can classify
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingJobID is returned when the submission payload is present but the
// platform reported no job identifier.
var ErrMissingJobID = errors.New("bulk operation submitted but no job id was returned")

// ValidationError reports a missing or invalid required input. It is raised
// before any network call is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid export request: field %q %s", e.Field, e.Reason)
}

// RemoteUserError carries platform-level user errors, either as top-level
// GraphQL errors or as the userErrors payload of the submission mutation.
type RemoteUserError struct {
	Messages []string
}

func (e *RemoteUserError) Error() string {
	if len(e.Messages) == 0 {
		return "remote user error"
	}
	// The first reported error carries the actionable message.
	return e.Messages[0]
}

// ProtocolError reports a response whose shape violates the expected
// contract. It indicates a platform or API version incompatibility rather
// than a user mistake.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected api response: %s", e.Reason)
}

// JobCreationError reports a job whose status was already a failure state
// when the submission mutation returned.
type JobCreationError struct {
	Status JobStatus
}

func (e *JobCreationError) Error() string {
	return fmt.Sprintf("bulk operation was created in state %s", e.Status)
}

// JobFailedError reports a terminal failure state or error code returned by
// the remote job itself.
type JobFailedError struct {
	Code   string
	Status JobStatus
}

func (e *JobFailedError) Error() string {
	var b strings.Builder
	b.WriteString("bulk operation failed")
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, " (status %s)", e.Status)
	}
	return b.String()
}

// StreamError reports a network or parse failure while downloading the
// result file. The caller never observes partial output.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("result stream %s failed: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
