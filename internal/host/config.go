package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/fnhost/internal/fswatch"
	"github.com/psantana5/fnhost/internal/invoke"
	"github.com/psantana5/fnhost/pkg/logging"
	"github.com/psantana5/fnhost/pkg/models"
	"github.com/psantana5/fnhost/pkg/retry"
)

// HostConfigFile is the optional settings file at the script root.
const HostConfigFile = "host.json"

// Observer is told about lifecycle events, typically to export metrics.
type Observer interface {
	HostStateChanged(from, to models.HostState)
	HostRestarted()
}

type nopObserver struct{}

func (nopObserver) HostStateChanged(models.HostState, models.HostState) {}
func (nopObserver) HostRestarted()                                      {}

// Options configures a Manager.
type Options struct {
	// ScriptRoot holds one directory per function.
	ScriptRoot string
	// LogRoot is excluded from change detection when it lies under ScriptRoot.
	LogRoot string

	// FunctionTimeout applies when neither host.json nor function.json sets one.
	FunctionTimeout time.Duration
	// FileWatching enables restart on change; host.json may turn it off.
	FileWatching bool
	// WatchFunctionFiles also marks each invoker stale when its own
	// directory changes.
	WatchFunctionFiles bool
	RestartDebounce    time.Duration
	StartRetry         retry.Config

	Loader   invoke.Loader
	Logs     logging.Provider
	Metrics  invoke.MetricsLogger
	Observer Observer
	Tracer   trace.Tracer
	Failures *invoke.FailureLog

	// WatchSchedule and Native tune the root watcher.
	WatchSchedule retry.Schedule
	Native        fswatch.NativeFactory
}

// DefaultOptions returns options with file watching on.
func DefaultOptions(scriptRoot string) Options {
	return Options{
		ScriptRoot:      scriptRoot,
		FunctionTimeout: 5 * time.Minute,
		FileWatching:    true,
		RestartDebounce: 500 * time.Millisecond,
		StartRetry:      retry.DefaultConfig(),
	}
}

func (o *Options) applyDefaults() {
	if o.Logs == nil {
		o.Logs = logging.NewFactory(logging.INFO, logging.Discard)
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Failures == nil {
		o.Failures = invoke.NewFailureLog(50)
	}
	if o.Loader == nil {
		o.Loader = &invoke.Dispatcher{
			ByLanguage: map[string]invoke.Loader{invoke.LanguageGo: invoke.NewRegistry()},
			Default:    &invoke.ProcessLoader{Logs: o.Logs},
		}
	}
	if o.StartRetry.Multiplier == 0 {
		o.StartRetry = retry.DefaultConfig()
	}
}

// HostConfig is the content of host.json.
type HostConfig struct {
	// FunctionTimeout accepts a Go duration ("90s") or "hh:mm:ss".
	FunctionTimeout     string   `json:"functionTimeout,omitempty" yaml:"functionTimeout,omitempty"`
	Functions           []string `json:"functions,omitempty" yaml:"functions,omitempty"`
	FileWatchingEnabled *bool    `json:"fileWatchingEnabled,omitempty" yaml:"fileWatchingEnabled,omitempty"`
}

// Timeout returns the parsed function timeout, or fallback when unset.
func (c HostConfig) Timeout(fallback time.Duration) (time.Duration, error) {
	if c.FunctionTimeout == "" {
		return fallback, nil
	}
	return ParseTimeout(c.FunctionTimeout)
}

// Allows reports whether name passes the functions allow-list.
func (c HostConfig) Allows(name string) bool {
	if len(c.Functions) == 0 {
		return true
	}
	for _, f := range c.Functions {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// LoadHostConfig reads host.json under root. A missing file yields the zero
// config.
func LoadHostConfig(root string) (HostConfig, error) {
	var cfg HostConfig
	data, err := os.ReadFile(filepath.Join(root, HostConfigFile))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read %s: %w", HostConfigFile, err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", HostConfigFile, err)
	}
	if _, err := cfg.Timeout(0); err != nil {
		return cfg, fmt.Errorf("invalid functionTimeout in %s: %w", HostConfigFile, err)
	}
	return cfg, nil
}

// ParseTimeout accepts "1m30s" or "00:01:30".
func ParseTimeout(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	var total time.Duration
	for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
		n, err := strconv.ParseFloat(parts[i], 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timeout %q", s)
		}
		total += time.Duration(n * float64(unit))
	}
	return total, nil
}
