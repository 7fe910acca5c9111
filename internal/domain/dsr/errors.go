package dsr

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrAwaitingProcessing is a control-flow signal, not a true failure: it means
// the task is suspended waiting on an external system and the scheduler should
// re-invoke it on a later tick. Callers must treat it as "reschedule me".
var ErrAwaitingProcessing = errors.New("awaiting async processing")

// ErrTaskNotFound is returned when a task does not exist in storage.
var ErrTaskNotFound = errors.New("task not found")

// ErrSubRequestNotFound is returned when a sub-request does not exist in storage.
var ErrSubRequestNotFound = errors.New("sub-request not found")

// ErrSubRequestTerminal is returned when a mutation is attempted on a
// sub-request that already reached a terminal status.
var ErrSubRequestTerminal = errors.New("sub-request status is terminal")

// ErrAttachmentNotFound is returned when an attachment does not exist in storage.
var ErrAttachmentNotFound = errors.New("attachment not found")

// AsyncTimeoutError indicates a task exceeded its maximum allowed suspension
// window. It is surfaced to the privacy request as a terminal failure for the
// task so the engine never waits forever on a system that may never respond.
type AsyncTimeoutError struct {
	TaskID  uuid.UUID
	Elapsed time.Duration
	Limit   time.Duration
}

// Error returns a string representation of the error.
func (e *AsyncTimeoutError) Error() string {
	return fmt.Sprintf("task %s exceeded async polling timeout: %s elapsed, limit %s",
		e.TaskID, e.Elapsed.Round(time.Second), e.Limit)
}

// ProtocolError indicates a response from an external system could not be
// interpreted per the configured path expressions. It carries the offending
// path and a response snippet for operator diagnosis, and is always fatal for
// the current tick.
type ProtocolError struct {
	Path    string
	Snippet string
	Err     error
}

const snippetLimit = 256

// NewProtocolError builds a ProtocolError, truncating the response body to a
// diagnosable snippet.
func NewProtocolError(path string, body []byte, cause error) *ProtocolError {
	snippet := string(body)
	if len(snippet) > snippetLimit {
		snippet = snippet[:snippetLimit]
	}
	return &ProtocolError{Path: path, Snippet: snippet, Err: cause}
}

// Error returns a string representation of the error.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error at path %q: %v (response: %q)", e.Path, e.Err, e.Snippet)
	}
	return fmt.Sprintf("protocol error at path %q (response: %q)", e.Path, e.Snippet)
}

// Unwrap returns the underlying cause, if any.
func (e *ProtocolError) Unwrap() error { return e.Err }

// PrivacyRequestError indicates a configuration or precondition violation
// (missing masking request, missing status path, failed attachment persistence).
// It marks a connector misconfiguration rather than a transient external
// failure, so it is never retried.
type PrivacyRequestError struct {
	Reason string
	Err    error
}

// NewPrivacyRequestError creates a PrivacyRequestError with an optional cause.
func NewPrivacyRequestError(reason string, cause error) *PrivacyRequestError {
	return &PrivacyRequestError{Reason: reason, Err: cause}
}

// Error returns a string representation of the error.
func (e *PrivacyRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("privacy request error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("privacy request error: %s", e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *PrivacyRequestError) Unwrap() error { return e.Err }
