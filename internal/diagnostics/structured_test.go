package diagnostics

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/fnhost/pkg/logging"
)

type traceEvent struct {
	level          logging.Level
	subscriptionID string
	appName        string
	functionName   string
	eventName      string
	source         string
	details        string
	summary        string
}

type fakeGenerator struct {
	events []traceEvent
}

func (g *fakeGenerator) LogFunctionTraceEvent(level logging.Level, subscriptionID, appName, functionName, eventName, source, details, summary string) {
	g.events = append(g.events, traceEvent{level, subscriptionID, appName, functionName, eventName, source, details, summary})
}

func TestStructuredSinkSkipsUserCategories(t *testing.T) {
	gen := &fakeGenerator{}
	s := NewStructuredSink(gen, "sub", "app")

	logging.New("Function.Foo.User", logging.DEBUG, s).Info("user output")
	logging.New("Function.Foo", logging.DEBUG, s).Info("system output")

	require.Len(t, gen.events, 1)
	assert.Equal(t, "Function.Foo", gen.events[0].source)
	assert.Equal(t, "system output", gen.events[0].summary)
	assert.Equal(t, "sub", gen.events[0].subscriptionID)
	assert.Equal(t, "app", gen.events[0].appName)
}

func TestStructuredSinkKeepsEmptyMessages(t *testing.T) {
	gen := &fakeGenerator{}
	s := NewStructuredSink(gen, "sub", "app")

	logging.New("Host.General", logging.DEBUG, s).WithError(errors.New("Token=xyz")).Warn("")

	require.Len(t, gen.events, 1)
	assert.Equal(t, "Host.General", gen.events[0].source)
	assert.Empty(t, gen.events[0].summary)
	assert.Equal(t, SecretReplacement, gen.events[0].details)
}

func TestStructuredSinkProperties(t *testing.T) {
	gen := &fakeGenerator{}
	s := NewStructuredSink(gen, "sub", "app")

	logging.New("Function.Foo", logging.DEBUG, s).
		WithField(logging.PropFunctionName, "Foo").
		WithField(logging.PropEventName, "FunctionCompleted").
		WithError(errors.New("dial failed: Password=hunter2 host=db")).
		Error("connect using AccountKey=abc123")

	require.Len(t, gen.events, 1)
	ev := gen.events[0]
	assert.Equal(t, logging.ERROR, ev.level)
	assert.Equal(t, "Foo", ev.functionName)
	assert.Equal(t, "FunctionCompleted", ev.eventName)
	assert.NotContains(t, ev.details, "hunter2")
	assert.NotContains(t, ev.summary, "abc123")
	assert.Contains(t, ev.summary, SecretReplacement)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"nothing to hide", "nothing to hide"},
		{"AccountKey=secret", "[Hidden Credential]"},
		{"before accountkey=secret after", "before [Hidden Credential] after"},
		{`{"conn":"Server=tcp:db;Password=x"}`, `{"conn":"[Hidden Credential]"}`},
		{"https://host/blob?sig=abc&se=1", "https://host/blob[Hidden Credential]"},
		{"Token=a Token=b", "[Hidden Credential] [Hidden Credential]"},
		{strings.Repeat("\xff", 10) + "Password=hunter2supersecretvalue end", strings.Repeat("\xff", 10) + "[Hidden Credential] end"},
		{"Ünïcødé İstanbul pwd=s3cr3t done", "Ünïcødé İstanbul [Hidden Credential] done"},
		{"\xc3\x28 SharedAccessKey=abc", "\xc3\x28 [Hidden Credential]"},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestZapEventGeneratorWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	gen := NewZapEventGenerator(&buf)
	gen.LogFunctionTraceEvent(logging.WARN, "sub", "app", "Foo", "evt", "Function.Foo", "", "hello")
	require.NoError(t, gen.Sync())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	assert.Equal(t, "warn", got["level"])
	assert.Equal(t, "hello", got["summary"])
	assert.Equal(t, "Function.Foo", got["source"])
	assert.Equal(t, "Foo", got["functionName"])
}

func TestRouterFansOutAndSurvivesPanics(t *testing.T) {
	rec := logging.NewRecorder()
	bad := logging.SinkFunc(func(logging.Event) { panic("broken sink") })
	r := NewRouter(bad, nil, rec)

	r.Route("Host.General", logging.INFO, "hello", map[string]interface{}{"k": 1}, nil)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Message)
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleSink(&buf, "json", logging.INFO)
	l := logging.New("Host.General", logging.DEBUG, c)
	l.Debug("hidden")
	l.WithField("path", "/tmp").Info("shown")
	require.NoError(t, c.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"category":"Host.General"`)
	assert.Contains(t, out, `"path":"/tmp"`)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNewDiagnosticsFileModes(t *testing.T) {
	tests := []struct {
		mode  FileLoggingMode
		level logging.Level
		files bool
	}{
		{FileLoggingNever, logging.DEBUG, false},
		{FileLoggingAlways, logging.INFO, true},
		{FileLoggingDebugOnly, logging.INFO, false},
		{FileLoggingDebugOnly, logging.DEBUG, true},
	}

	for _, tt := range tests {
		d := New(Options{Level: tt.level, LogRoot: t.TempDir(), FileLogging: tt.mode})
		assert.Equal(t, tt.files, d.Files() != nil, "mode %s level %s", tt.mode, tt.level)
		require.NoError(t, d.Close())
	}
}

func TestParseFileLoggingMode(t *testing.T) {
	m, err := ParseFileLoggingMode("always")
	require.NoError(t, err)
	assert.Equal(t, FileLoggingAlways, m)

	m, err = ParseFileLoggingMode("")
	require.NoError(t, err)
	assert.Equal(t, FileLoggingDebugOnly, m)

	_, err = ParseFileLoggingMode("sometimes")
	assert.Error(t, err)
}
