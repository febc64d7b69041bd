// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. The kind is rendered first in Error() so that
// message-based failure classification downstream can see it.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ValidationError indicates a payload that does not satisfy the command contract.
	ValidationError Kind = "VALIDATION_ERROR"
	// SourceRejected indicates a suite source path outside the allowed root.
	SourceRejected Kind = "SOURCE_REJECTED"
	// SourceLoadFailed indicates a suite source that could not be read or decoded.
	SourceLoadFailed Kind = "SOURCE_LOAD_FAILED"
	// UnsafeMutation indicates an update or delete without any filter.
	UnsafeMutation Kind = "UNSAFE_MUTATION"
	// UnknownTable indicates a table missing from the schema catalog.
	UnknownTable Kind = "UNKNOWN_TABLE"
	// UnknownColumn indicates a column missing from the schema catalog.
	UnknownColumn Kind = "UNKNOWN_COLUMN"
	// ExecutionError indicates a failure while running a command.
	ExecutionError Kind = "EXECUTION_ERROR"
	// ConfigError indicates invalid CLI configuration.
	ConfigError Kind = "CONFIG_ERROR"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
