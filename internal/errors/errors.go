// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. This enables better error categorization, logging,
// and user experience by providing context-aware error information.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Framing indicates a malformed or truncated protocol stream.
	// Always fatal to the connection; partial frames cannot be resynchronized.
	Framing Kind = "protocol_framing"
	// RequestRejected indicates the backend returned an error payload for one request.
	// The connection stays usable.
	RequestRejected Kind = "request_rejected"
	// BatchExecution indicates a statement-level failure inside one batch.
	// Sibling batches continue to execute.
	BatchExecution Kind = "batch_execution"
	// ConnectionClosed indicates the pipe closed or the backend process exited.
	// Fatal to all pending requests and sessions on that connection.
	ConnectionClosed Kind = "connection_closed"
	// Timeout indicates a request or cancel did not resolve within its bound.
	// The connection is presumed unhealthy and should be reset or discarded.
	Timeout Kind = "timeout"
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

// Unwrap exposes the underlying error to errors.Is/As chains.
func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsConnectionClosed reports whether err is a connection-closed failure.
func IsConnectionClosed(err error) bool { return IsKind(err, ConnectionClosed) }

// IsFraming reports whether err is a protocol framing failure.
func IsFraming(err error) bool { return IsKind(err, Framing) }

// IsTimeout reports whether err is a timeout failure.
func IsTimeout(err error) bool { return IsKind(err, Timeout) }
