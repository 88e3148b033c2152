package logging

import (
	"strings"
	"sync"
)

// Recorder is an in-memory Sink, mostly useful in tests and for the
// admin status page.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Write(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Messages returns recorded messages, optionally restricted to one category.
func (r *Recorder) Messages(category string) []string {
	var out []string
	for _, e := range r.Events() {
		if category == "" || e.Category == category {
			out = append(out, e.Message)
		}
	}
	return out
}

// Count returns how many recorded messages contain substr.
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, e := range r.Events() {
		if strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
