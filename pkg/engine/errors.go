package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass classifies apply-time errors for retry and halt decisions.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: network timeouts, rate limiting, temporary API
	// unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable failure. Examples:
	// invalid credentials, a resource the backend refuses to create.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassUnsupported indicates an adapter cannot perform an in-place
	// update and the resource must be replaced instead. Not a user-visible
	// failure by itself.
	ErrorClassUnsupported ErrorClass = "unsupported"
)

// ApplyError is a classified error produced while applying a plan step.
type ApplyError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Resource is the identity of the resource that caused the error.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying cause, usually supplied by a provider adapter.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Class, e.Message)
	if e.Resource != "" {
		fmt.Fprintf(&sb, " (resource=%s", e.Resource)
		if e.Operation != "" {
			fmt.Fprintf(&sb, ", operation=%s", e.Operation)
		}
		sb.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %s", e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ApplyError) Unwrap() error {
	return e.Err
}

// WithResource adds resource identity to the error.
func (e *ApplyError) WithResource(id string) *ApplyError {
	e.Resource = id
	return e
}

// WithOperation adds operation context to the error.
func (e *ApplyError) WithOperation(op string) *ApplyError {
	e.Operation = op
	return e
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *ApplyError {
	return &ApplyError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *ApplyError {
	return &ApplyError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// NewUnsupportedError signals that an adapter does not support in-place
// update for the requested change.
func NewUnsupportedError(message string) *ApplyError {
	return &ApplyError{Class: ErrorClassUnsupported, Message: message}
}

// IsTransient reports whether the error is classified as transient.
func IsTransient(err error) bool {
	var e *ApplyError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent reports whether the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *ApplyError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsUnsupported reports whether the error signals replace-required.
func IsUnsupported(err error) bool {
	var e *ApplyError
	if errors.As(err, &e) {
		return e.Class == ErrorClassUnsupported
	}
	return false
}

// InvalidResourceError reports a configuration problem with a single
// resource declaration: a duplicate logical name or a reference to a
// resource that is not part of the graph. It is always detected before
// planning, so nothing has been applied when it surfaces.
type InvalidResourceError struct {
	// Type is the declared resource type.
	Type ResourceType

	// Name is the declared logical name.
	Name string

	// Reason explains what is wrong with the declaration.
	Reason string
}

// Error implements the error interface.
func (e *InvalidResourceError) Error() string {
	return fmt.Sprintf("invalid resource %s/%s: %s", e.Type, e.Name, e.Reason)
}

// CyclicDependencyError reports a reference cycle between resources. Path
// holds the full cycle, first node repeated last.
type CyclicDependencyError struct {
	Path []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Path, " -> "))
}

// ErrConcurrentApply is returned when a second apply is attempted against a
// stack whose advisory lock is already held.
var ErrConcurrentApply = errors.New("stack is locked by another apply")
