package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Reason classifies why an extraction strategy failed.
type Reason string

const (
	// ReasonTimeout covers deadline and transport timeouts.
	ReasonTimeout Reason = "timeout"
	// ReasonNetwork covers transport failures and unexpected statuses.
	ReasonNetwork Reason = "network"
	// ReasonParse covers responses that could not be interpreted.
	ReasonParse Reason = "parse"
	// ReasonNotFound means no matching document exists for the date.
	ReasonNotFound Reason = "notfound"
)

// Error is a recoverable extraction failure. The pipeline logs it and moves
// on to the next strategy in the chain.
type Error struct {
	Strategy Source
	Reason   Reason
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s extraction failed (%s): %v", e.Strategy, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s extraction failed (%s)", e.Strategy, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(strategy Source, reason Reason, err error) *Error {
	return &Error{Strategy: strategy, Reason: reason, Err: err}
}

// classifyTransport maps a transport-level error onto timeout or network.
func classifyTransport(strategy Source, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(strategy, ReasonTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(strategy, ReasonTimeout, err)
	}
	return newError(strategy, ReasonNetwork, err)
}
