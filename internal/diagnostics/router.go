package diagnostics

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/psantana5/fnhost/pkg/logging"
)

// Router fans every event out to its sinks. Delivery is best-effort: a
// panicking sink is reported on stderr and skipped.
type Router struct {
	sinks []logging.Sink
}

// NewRouter creates a router over the non-nil sinks.
func NewRouter(sinks ...logging.Sink) *Router {
	r := &Router{}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Write implements logging.Sink.
func (r *Router) Write(e logging.Event) {
	for _, s := range r.sinks {
		deliver(s, e)
	}
}

func deliver(s logging.Sink, e logging.Event) {
	defer func() {
		if p := recover(); p != nil {
			fmt.Fprintf(os.Stderr, "diagnostics: sink %T panicked: %v\n", s, p)
		}
	}()
	s.Write(e)
}

// Route delivers one event built from its parts.
func (r *Router) Route(category string, level logging.Level, message string, props map[string]interface{}, err error) {
	r.Write(logging.Event{
		Timestamp:  time.Now(),
		Category:   category,
		Level:      level,
		Message:    message,
		Properties: props,
		Err:        err,
	})
}

// FileLoggingMode controls when the file sink is active.
type FileLoggingMode string

const (
	FileLoggingNever     FileLoggingMode = "never"
	FileLoggingAlways    FileLoggingMode = "always"
	FileLoggingDebugOnly FileLoggingMode = "debug-only"
)

// ParseFileLoggingMode accepts the three mode names; anything else is an error.
func ParseFileLoggingMode(s string) (FileLoggingMode, error) {
	switch m := FileLoggingMode(s); m {
	case FileLoggingNever, FileLoggingAlways, FileLoggingDebugOnly:
		return m, nil
	case "":
		return FileLoggingDebugOnly, nil
	default:
		return "", fmt.Errorf("invalid file logging mode %q (want never, always or debug-only)", s)
	}
}

// Options wires the standard sink set.
type Options struct {
	Level          logging.Level
	ConsoleFormat  string
	Console        io.Writer
	LogRoot        string
	FileLogging    FileLoggingMode
	InstanceID     string
	FlushInterval  time.Duration
	MaxFileSize    int64
	IsPrimary      PrimaryOracle
	Structured     io.Writer
	SubscriptionID string
	AppName        string
}

// Diagnostics owns the sinks of one process and hands out loggers.
type Diagnostics struct {
	router    *Router
	factory   *logging.Factory
	console   *ConsoleSink
	files     *FileSink
	generator *ZapEventGenerator
}

// New builds the console, file and structured sinks described by opts.
func New(opts Options) *Diagnostics {
	d := &Diagnostics{}

	if opts.Console != nil {
		d.console = NewConsoleSink(opts.Console, opts.ConsoleFormat, opts.Level)
	}

	fileOn := opts.FileLogging == FileLoggingAlways ||
		(opts.FileLogging == FileLoggingDebugOnly && opts.Level == logging.DEBUG)
	if fileOn && opts.LogRoot != "" {
		d.files = NewFileSink(FileSinkConfig{
			Root:          opts.LogRoot,
			InstanceID:    opts.InstanceID,
			MinLevel:      opts.Level,
			MaxFileSize:   opts.MaxFileSize,
			FlushInterval: opts.FlushInterval,
			IsPrimary:     opts.IsPrimary,
			OnError: func(err error) {
				fmt.Fprintf(os.Stderr, "diagnostics: file sink: %v\n", err)
			},
		})
	}

	var structured logging.Sink
	if opts.Structured != nil {
		d.generator = NewZapEventGenerator(opts.Structured)
		structured = NewStructuredSink(d.generator, opts.SubscriptionID, opts.AppName)
	}

	// Typed nils must not reach the router.
	var console, files logging.Sink
	if d.console != nil {
		console = d.console
	}
	if d.files != nil {
		files = d.files
	}
	d.router = NewRouter(console, files, structured)
	d.factory = logging.NewFactory(opts.Level, d.router)
	return d
}

// Logger implements logging.Provider.
func (d *Diagnostics) Logger(category string) *logging.Logger {
	return d.factory.Logger(category)
}

// Router returns the fan-out sink.
func (d *Diagnostics) Router() *Router {
	return d.router
}

// Files returns the file sink, nil when file logging is off.
func (d *Diagnostics) Files() *FileSink {
	return d.files
}

// Close flushes and closes every sink.
func (d *Diagnostics) Close() error {
	var err error
	if d.files != nil {
		err = multierr.Append(err, d.files.Close())
	}
	if d.generator != nil {
		err = multierr.Append(err, ignoreSyncErr(d.generator.Sync()))
	}
	if d.console != nil {
		err = multierr.Append(err, ignoreSyncErr(d.console.Sync()))
	}
	return err
}

// Syncing a terminal or pipe fails with EINVAL on most platforms.
func ignoreSyncErr(err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*os.PathError); ok && (pe.Op == "sync" || pe.Op == "fsync") {
		return nil
	}
	return err
}
