package propgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested node, edge or identifier
	// does not exist. Lookups on unknown PIDs report it instead of failing
	// with an integrity error.
	ErrNotFound = errors.New("propgraph: entity not found")

	// ErrInitialized is returned when a type registration is attempted
	// after the schema has been finalized.
	ErrInitialized = errors.New("propgraph: schema already initialized")
)

// NotFoundError reports a missing node or edge.
type NotFoundError struct {
	label string
	id    any // Optional: the identifier that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("propgraph: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("propgraph: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(err, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the identifier that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity kind.
func NewNotFoundError(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConfigError reports a schema or type registration conflict: a reserved
// column redeclared by a registered type, two types declaring the same field
// with incompatible semantic types, or registration after finalization.
// No partial schema is committed when a ConfigError is reported.
type ConfigError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("propgraph: config: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.wrap
}

// NewConfigError returns a new ConfigError with the given message.
func NewConfigError(msg string, wrap error) *ConfigError {
	return &ConfigError{msg: msg, wrap: wrap}
}

// NewConfigErrorf formats a new ConfigError.
func NewConfigErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e)
}

// IntegrityError reports an edge write that references one or more PIDs
// with no backing row. The write is rejected as a whole; nothing is stored.
type IntegrityError struct {
	Subject string   // Subject PID of the rejected edge
	Missing []string // PIDs that could not be resolved
}

// Error returns the error string.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("propgraph: edge from %q references unresolved pids: %s",
		e.Subject, strings.Join(e.Missing, ", "))
}

// NewIntegrityError returns a new IntegrityError for the given edge subject.
func NewIntegrityError(subject string, missing ...string) *IntegrityError {
	return &IntegrityError{Subject: subject, Missing: missing}
}

// IsIntegrityError returns true if the error is an IntegrityError.
func IsIntegrityError(err error) bool {
	if err == nil {
		return false
	}
	var e *IntegrityError
	return errors.As(err, &e)
}

// StructError reports an input object graph that defeats the decomposition
// engine, e.g. nesting deeper than the recursion guard allows.
type StructError struct {
	msg string
}

// Error returns the error string.
func (e *StructError) Error() string {
	return fmt.Sprintf("propgraph: structure: %s", e.msg)
}

// NewStructError returns a new StructError with the given message.
func NewStructError(msg string) *StructError {
	return &StructError{msg: msg}
}

// NewStructErrorf formats a new StructError.
func NewStructErrorf(format string, args ...any) *StructError {
	return &StructError{msg: fmt.Sprintf(format, args...)}
}

// IsStructError returns true if the error is a StructError.
func IsStructError(err error) bool {
	if err == nil {
		return false
	}
	var e *StructError
	return errors.As(err, &e)
}
