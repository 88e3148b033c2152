package logging

import (
	"strings"
	"time"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a log level string. Unknown values map to INFO.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return DEBUG
	case "info", "information":
		return INFO
	case "warn", "warning":
		return WARN
	case "error", "critical":
		return ERROR
	default:
		return INFO
	}
}

// Well-known event property keys.
const (
	PropSystemTrace     = "isSystemTrace"
	PropPrimaryHostOnly = "primaryHostOnly"
	PropFunctionName    = "functionName"
	PropEventName       = "eventName"
	PropInvocationID    = "invocationId"
)

// Event is the unit passed from loggers to sinks.
type Event struct {
	Timestamp  time.Time
	Category   string
	Level      Level
	Message    string
	Properties map[string]interface{}
	Err        error
}

// Bool returns a boolean property, false when absent or not a bool.
func (e Event) Bool(key string) bool {
	v, ok := e.Properties[key].(bool)
	return ok && v
}

// String returns a string property, "" when absent.
func (e Event) String(key string) string {
	v, _ := e.Properties[key].(string)
	return v
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Write(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Write(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Logger is a leveled logger bound to one category.
type Logger struct {
	category string
	level    Level
	sink     Sink
	fields   map[string]interface{}
	err      error
}

// New creates a logger for category writing to sink.
func New(category string, level Level, sink Sink) *Logger {
	if sink == nil {
		sink = Discard
	}
	return &Logger{
		category: category,
		level:    level,
		sink:     sink,
		fields:   make(map[string]interface{}),
	}
}

// Nop returns a logger that drops everything.
func Nop() *Logger {
	return New("", ERROR+1, Discard)
}

// Category returns the logger's category.
func (l *Logger) Category() string {
	return l.category
}

// Enabled reports whether events at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	// Merge logger fields and call fields
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	l.sink.Write(Event{
		Timestamp:  time.Now(),
		Category:   l.category,
		Level:      level,
		Message:    message,
		Properties: merged,
		Err:        l.err,
	})
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, first(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, first(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, first(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, first(fields))
}

// Log emits at an explicit level.
func (l *Logger) Log(level Level, message string, fields ...map[string]interface{}) {
	l.log(level, message, first(fields))
}

func (l *Logger) clone() *Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{
		category: l.category,
		level:    l.level,
		sink:     l.sink,
		fields:   fields,
		err:      l.err,
	}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	c := l.clone()
	c.fields[key] = value
	return c
}

// WithFields adds several fields at once.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	c := l.clone()
	for k, v := range fields {
		c.fields[k] = v
	}
	return c
}

// WithError attaches err to every event emitted by the returned logger.
func (l *Logger) WithError(err error) *Logger {
	c := l.clone()
	c.err = err
	return c
}

// PrimaryHostOnly marks events as owned by the primary instance.
func (l *Logger) PrimaryHostOnly() *Logger {
	return l.WithField(PropPrimaryHostOnly, true)
}

// SystemTrace marks events as system traces, which are never written to files.
func (l *Logger) SystemTrace() *Logger {
	return l.WithField(PropSystemTrace, true)
}

// Provider hands out loggers by category.
type Provider interface {
	Logger(category string) *Logger
}

// Factory is the default Provider: one level and one sink for all categories.
type Factory struct {
	level Level
	sink  Sink
}

// NewFactory creates a logger factory.
func NewFactory(level Level, sink Sink) *Factory {
	return &Factory{level: level, sink: sink}
}

// Logger returns a logger for category.
func (f *Factory) Logger(category string) *Logger {
	return New(category, f.level, f.sink)
}
