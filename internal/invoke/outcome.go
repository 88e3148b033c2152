package invoke

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome is the terminal classification of one invocation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
	OutcomeCancelledByShutdown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelledByShutdown:
		return "cancelled_by_shutdown"
	default:
		return "unknown"
	}
}

// ErrHostStopping is returned for calls cancelled by host shutdown.
var ErrHostStopping = errors.New("host is stopping")

// errTimerFired is the cancellation cause set by the invocation timer.
var errTimerFired = errors.New("function timer fired")

// TimeoutError reports a call cancelled by its own timeout.
type TimeoutError struct {
	Function     string
	InvocationID string
	Timeout      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout value of %s exceeded by function '%s' (Id: '%s')", e.Timeout, e.Function, e.InvocationID)
}

// FunctionTimeout marks the error as a function timeout for callers that
// only look for the behavior.
func (e *TimeoutError) FunctionTimeout() bool { return true }

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IsTimeout reports whether err carries a function timeout.
func IsTimeout(err error) bool {
	var t interface{ FunctionTimeout() bool }
	return errors.As(err, &t) && t.FunctionTimeout()
}

// flatten expands nested aggregate errors (anything with Unwrap() []error)
// into their leaves.
func flatten(err error) []error {
	agg, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, inner := range agg.Unwrap() {
		if inner != nil {
			out = append(out, flatten(inner)...)
		}
	}
	return out
}

// surface returns the error handed back to the caller: the single inner
// fault of an aggregate, or err unchanged.
func surface(err error) error {
	if _, ok := err.(interface{ Unwrap() []error }); !ok {
		return err
	}
	if leaves := flatten(err); len(leaves) == 1 {
		return leaves[0]
	}
	return err
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errTimerFired)
}
