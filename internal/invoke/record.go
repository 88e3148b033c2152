package invoke

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timing records start/end timestamps only
type Timing struct {
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewTiming creates timing with current start time
func NewTiming() *Timing {
	return &Timing{StartedAt: time.Now()}
}

// Complete records completion time
func (t *Timing) Complete() {
	t.CompletedAt = time.Now()
}

// Duration returns execution duration
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// Record is one function call. Only the invoking pipeline mutates it.
type Record struct {
	ID       string
	Function string
	Timing   *Timing
	Outcome  Outcome
	Err      error
}

func newRecord(function string) *Record {
	return &Record{
		ID:       uuid.New().String(),
		Function: function,
		Timing:   NewTiming(),
	}
}

// FailureSample is a compact view of one failed invocation.
type FailureSample struct {
	InvocationID string    `json:"invocation_id"`
	Function     string    `json:"function"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error"`
	Duration     float64   `json:"duration_seconds"`
	At           time.Time `json:"at"`
}

// FailureLog maintains a ring buffer of recent failed invocations (last N)
type FailureLog struct {
	samples []FailureSample
	maxSize int
	mu      sync.RWMutex
}

// NewFailureLog creates a failure log with fixed size
func NewFailureLog(maxSize int) *FailureLog {
	if maxSize <= 0 {
		maxSize = 50
	}
	return &FailureLog{
		samples: make([]FailureSample, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds a sample for a non-successful invocation.
func (f *FailureLog) Record(r *Record) {
	if f == nil || r.Outcome == OutcomeSuccess {
		return
	}

	sample := FailureSample{
		InvocationID: r.ID,
		Function:     r.Function,
		Outcome:      r.Outcome.String(),
		Duration:     r.Timing.Duration().Seconds(),
		At:           r.Timing.CompletedAt,
	}
	if r.Err != nil {
		sample.Error = r.Err.Error()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Ring buffer: if full, drop oldest
	if len(f.samples) >= f.maxSize {
		f.samples = f.samples[1:]
	}
	f.samples = append(f.samples, sample)
}

// Recent returns recent failures (newest first)
func (f *FailureLog) Recent(n int) []FailureSample {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || n > len(f.samples) {
		n = len(f.samples)
	}

	result := make([]FailureSample, n)
	for i := 0; i < n; i++ {
		result[i] = f.samples[len(f.samples)-1-i]
	}
	return result
}

// Count returns the number of samples held.
func (f *FailureLog) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.samples)
}
