package logging

import (
	"errors"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"TRACE", DEBUG},
		{"info", INFO},
		{"Information", INFO},
		{"warning", WARN},
		{"WARN", WARN},
		{"error", ERROR},
		{"critical", ERROR},
		{"bogus", INFO},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	rec := NewRecorder()
	l := New("Host.General", WARN, rec)

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	msgs := rec.Messages("")
	if len(msgs) != 2 || msgs[0] != "w" || msgs[1] != "e" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	rec := NewRecorder()
	parent := New("Function.Foo", DEBUG, rec)
	child := parent.PrimaryHostOnly().WithField("k", "v")

	parent.Info("parent")
	child.Info("child")

	events := rec.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Bool(PropPrimaryHostOnly) {
		t.Error("parent logger should not carry primaryHostOnly")
	}
	if !events[1].Bool(PropPrimaryHostOnly) {
		t.Error("child logger should carry primaryHostOnly")
	}
	if events[1].String("k") != "v" {
		t.Errorf("child field k = %q, want v", events[1].String("k"))
	}
}

func TestWithErrorAttachesErr(t *testing.T) {
	rec := NewRecorder()
	boom := errors.New("boom")
	New("Host.General", DEBUG, rec).WithError(boom).Error("failed", map[string]interface{}{"n": 1})

	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !errors.Is(events[0].Err, boom) {
		t.Errorf("event error = %v, want %v", events[0].Err, boom)
	}
	if events[0].Properties["n"] != 1 {
		t.Errorf("call fields not merged: %v", events[0].Properties)
	}
}

func TestFactoryBindsCategory(t *testing.T) {
	rec := NewRecorder()
	f := NewFactory(INFO, rec)
	f.Logger("Structured").Info("hello")

	events := rec.Events()
	if len(events) != 1 || events[0].Category != "Structured" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
