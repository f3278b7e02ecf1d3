package common

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionError wraps a transport-level connect/send/receive failure. It is
// surfaced immediately and never retried by the client.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolViolationError reports a structural mismatch during the handshake,
// e.g. the reply to connection_init not being a connection_ack.
type ProtocolViolationError struct {
	Expected string
	Message  any
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: expected %q, got message %v", e.Expected, e.Message)
}

// UnexpectedTypeError reports a received message whose type does not match
// the caller's assertion. It carries the full message for diagnostics.
type UnexpectedTypeError struct {
	Expected string
	Actual   string
	Message  any
}

func (e *UnexpectedTypeError) Error() string {
	return fmt.Sprintf("type %q expected, but %q received: %v", e.Expected, e.Actual, e.Message)
}

// UnexpectedIDError reports a received message whose id does not match the
// caller's assertion.
type UnexpectedIDError struct {
	Expected string
	Actual   string
	Message  any
}

func (e *UnexpectedIDError) Error() string {
	return fmt.Sprintf("id %q expected, but %q received: %v", e.Expected, e.Actual, e.Message)
}

// GraphQLResponseError is a well-formed response whose payload carries a
// non-empty errors collection. This is the normal, recoverable way domain
// errors surface; it is not a protocol violation.
type GraphQLResponseError struct {
	Response any
}

func (e *GraphQLResponseError) Error() string {
	return fmt.Sprintf("error in GraphQL response: %v", e.Response)
}

// TimeoutError reports an exhausted wait budget, either a single transport
// receive deadline or the overall wall-clock budget of a waited operation.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("timed out after %s", e.After)
	}
	return "timed out"
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
