package reactor

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the connection lifecycle and controllers.
var (
	// ErrClosed names the closed-fd condition. AsyncFD operations issued
	// after close do not return it: reads settle with
	// ReadResult{Error: true} and writes with false.
	ErrClosed = errors.New("reactor: async fd closed")

	// ErrReload is returned when a reload (module swap) fails; the
	// caller is expected to treat this as fatal and terminate the
	// process, matching the original runtime's abort-on-reload-failure
	// behavior.
	ErrReload = errors.New("reactor: reload failed")

	// ErrStartup is returned by Server.Serve when the server is already
	// serving. Worker creation failures in New are returned wrapped around
	// their own cause instead.
	ErrStartup = errors.New("reactor: startup failed")

	// ErrBadConnectTarget is returned by ParseConnectTarget for a
	// malformed connect-target string.
	ErrBadConnectTarget = errors.New("reactor: invalid connect target")
)

// WrapError wraps cause with a contextual message, preserving the cause
// chain for errors.Is/errors.As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

// AggregateError collects multiple independent failures into one error
// value.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("reactor: %d errors occurred, first: %v", len(e.Errors), e.Errors[0])
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}
