package fswatch

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes watch errors for handling strategy
type ErrorType int

const (
	ErrorTypeUnknown   ErrorType = iota
	ErrorTypeTransient           // recovered by rebuilding the watch
	ErrorTypePermanent           // no retry
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error wraps a watch failure with its context.
type Error struct {
	Type      ErrorType
	Op        string // "start", "watch", "recover"
	Path      string
	Err       error
	Timestamp time.Time
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s failed (%s): %v", e.Op, e.Path, e.Type, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(t ErrorType, op, path string, err error) *Error {
	return &Error{
		Type:      t,
		Op:        op,
		Path:      path,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// IsPermanent reports whether err is a permanent watch error.
func IsPermanent(err error) bool {
	var we *Error
	return errors.As(err, &we) && we.Type == ErrorTypePermanent
}

// Stats tracks failure and recovery counts for one watcher.
type Stats struct {
	Failures            int64
	Recoveries          int64
	Aborted             int64
	ConsecutiveFailures int
	LastError           string
}
