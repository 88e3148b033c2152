package diagnostics

import "testing"

func TestFilePath(t *testing.T) {
	tests := []struct {
		category string
		want     string
		ok       bool
	}{
		{"Structured", "Structured", true},
		{"Worker.node.123", "Worker/node/123", true},
		{"Worker.java.abc-def", "Worker/java/abc-def", true},
		{"Function.HttpTrigger", "Function/HttpTrigger", true},
		{"Function.HttpTrigger.User", "Function/HttpTrigger", true},

		// No route
		{"Worker.node", "", false},
		{"Worker.node.1.extra", "", false},
		{"Function", "", false},
		{"Function.HttpTrigger.Other", "", false},
		{"Function.HttpTrigger.User.More", "", false},
		{"Function..User", "", false},
		{"Host.General", "", false},
		{"Host.FileWatcher", "", false},
		{"", "", false},
		{"structured", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got, ok := FilePath(tt.category)
			if got != tt.want || ok != tt.ok {
				t.Errorf("FilePath(%q) = (%q, %v), want (%q, %v)", tt.category, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFunctionAndUserShareRoute(t *testing.T) {
	for _, name := range []string{"A", "TimerTrigger", "with-dash"} {
		sys, _ := FilePath(FunctionCategory(name))
		user, _ := FilePath(UserCategory(name))
		if sys == "" || sys != user {
			t.Errorf("function %q: system route %q, user route %q", name, sys, user)
		}
	}
}

func TestIsUserCategory(t *testing.T) {
	tests := []struct {
		category string
		want     bool
	}{
		{"Function.Foo.User", true},
		{"Function.Foo.Bar.User", true},
		{"Function.Foo", false},
		{"Function.Foo .User", false},
		{"Host.General", false},
		{"Worker.node.1", false},
	}

	for _, tt := range tests {
		if got := IsUserCategory(tt.category); got != tt.want {
			t.Errorf("IsUserCategory(%q) = %v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestRouteSinks(t *testing.T) {
	r := Route("Function.Foo.User")
	if r.Structured {
		t.Error("user category must not reach the structured sink")
	}
	if ids := r.Sinks(); len(ids) != 1 || ids[0] != SinkFile {
		t.Errorf("Sinks() = %v, want [file]", ids)
	}

	r = Route("Host.General")
	if ids := r.Sinks(); len(ids) != 1 || ids[0] != SinkStructured {
		t.Errorf("Sinks() = %v, want [structured]", ids)
	}

	r = Route("Function.Foo")
	if ids := r.Sinks(); len(ids) != 2 {
		t.Errorf("Sinks() = %v, want file and structured", ids)
	}
}
