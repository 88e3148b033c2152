package invoke

import "time"

// FunctionStartedEvent is the begin/end pair handed to a MetricsLogger.
type FunctionStartedEvent struct {
	InvocationID string
	FunctionName string
	StartTime    time.Time
	EndTime      time.Time
	Success      bool
	Outcome      Outcome
}

// Duration is zero until the event has ended.
func (e *FunctionStartedEvent) Duration() time.Duration {
	if e.EndTime.IsZero() {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// MetricsLogger receives exactly one BeginEvent and one EndEvent per
// invocation, in that order.
type MetricsLogger interface {
	BeginEvent(*FunctionStartedEvent)
	EndEvent(*FunctionStartedEvent)
}

type nopMetrics struct{}

func (nopMetrics) BeginEvent(*FunctionStartedEvent) {}
func (nopMetrics) EndEvent(*FunctionStartedEvent)   {}
