package cmd

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/fnhost/internal/admin"
	"github.com/psantana5/fnhost/internal/diagnostics"
	"github.com/psantana5/fnhost/internal/host"
	"github.com/psantana5/fnhost/internal/metrics"
	"github.com/psantana5/fnhost/pkg/logging"
	"github.com/psantana5/fnhost/pkg/ratelimit"
	"github.com/psantana5/fnhost/pkg/retry"
	"github.com/psantana5/fnhost/pkg/shutdown"
	"github.com/psantana5/fnhost/pkg/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the function host until interrupted",
	Long: `Starts the host on the script root and blocks until SIGINT or SIGTERM.
The host is rebuilt whenever a file under the script root changes.`,
	RunE: runHost,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.String("log-root", "", "root directory for per-category log files")
	f.String("log-format", "console", "console log format: console or json")
	f.String("file-logging", "debug-only", "file logging mode: never, always or debug-only")
	f.String("structured-log", "", "structured event stream: stdout, stderr or a file path (empty disables)")
	f.String("admin-addr", "127.0.0.1:7071", "admin HTTP listen address (empty disables)")
	f.Duration("function-timeout", 5*time.Minute, "default function timeout")
	f.Bool("primary", true, "act as the primary instance for shared log streams")
	f.Bool("tracing", false, "export traces over OTLP HTTP")

	viper.BindPFlag("log_root", f.Lookup("log-root"))
	viper.BindPFlag("log_format", f.Lookup("log-format"))
	viper.BindPFlag("file_logging", f.Lookup("file-logging"))
	viper.BindPFlag("structured_log", f.Lookup("structured-log"))
	viper.BindPFlag("admin_addr", f.Lookup("admin-addr"))
	viper.BindPFlag("function_timeout", f.Lookup("function-timeout"))
	viper.BindPFlag("primary", f.Lookup("primary"))
	viper.BindPFlag("tracing.enabled", f.Lookup("tracing"))
}

func runHost(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(viper.GetViper())
	if err != nil {
		return err
	}
	mode, err := diagnostics.ParseFileLoggingMode(s.FileLogging)
	if err != nil {
		return err
	}

	structured, closeStructured, err := openStructured(s.StructuredLog)
	if err != nil {
		return err
	}
	defer closeStructured()

	primary := s.Primary
	diag := diagnostics.New(diagnostics.Options{
		Level:          logging.ParseLevel(s.LogLevel),
		ConsoleFormat:  s.LogFormat,
		Console:        os.Stderr,
		LogRoot:        s.LogRoot,
		FileLogging:    mode,
		InstanceID:     s.InstanceID,
		IsPrimary:      func() bool { return primary },
		Structured:     structured,
		SubscriptionID: s.SubscriptionID,
		AppName:        s.AppName,
	})
	defer diag.Close()
	logger := diag.Logger(diagnostics.CategoryHostGeneral)

	sm := shutdown.New(s.ShutdownTimeout, diag.Logger("Host.Shutdown"))
	ctx, cancel := sm.Context(cmd.Context())
	defer cancel()

	provider, err := tracing.InitTracer(ctx, s.Tracing, logger)
	if err != nil {
		return err
	}
	sm.Register("tracing", provider.Shutdown)

	collector := metrics.NewCollector("fnhost")

	opts := host.DefaultOptions(s.ScriptRoot)
	opts.LogRoot = s.LogRoot
	opts.FunctionTimeout = s.FunctionTimeout
	opts.FileWatching = s.FileWatching
	opts.WatchFunctionFiles = s.WatchFunctionFiles
	opts.RestartDebounce = s.RestartDebounce
	opts.StartRetry = retry.DefaultConfig()
	opts.StartRetry.MaxRetries = s.MaxStartRetries
	opts.Logs = diag
	opts.Metrics = collector
	opts.Observer = collector
	opts.Tracer = provider.Tracer()

	mgr := host.NewManager(opts)
	sm.Register("host", shutdown.CloseResource(mgr))
	if err := collector.WatchWatcher("script_root", mgr.WatcherStats); err != nil {
		mgr.Close()
		return err
	}

	if s.AdminAddr != "" {
		var limiter *ratelimit.Limiter
		if s.AdminRateLimit > 0 {
			limiter = ratelimit.NewLimiter(s.AdminRateLimit, int(math.Max(1, math.Ceil(s.AdminRateLimit))))
		}
		handler := admin.NewHandler(mgr, collector.Handler(), limiter, diag.Logger("Host.Admin"))
		srv := admin.NewServer(s.AdminAddr, handler, provider, logger)
		if _, err := srv.Start(); err != nil {
			mgr.Close()
			return fmt.Errorf("failed to start admin server: %w", err)
		}
		sm.Register("admin server", shutdown.StopHTTPServer(srv))
	}

	logger.Info(fmt.Sprintf("Starting host (version %s) on %s", version, s.ScriptRoot))

	runErr := make(chan error, 1)
	go func() {
		runErr <- mgr.RunAndBlock(ctx)
		sm.Trigger()
	}()

	if err := sm.WaitWithContext(cmd.Context()); err != nil {
		logger.WithError(err).Warn("Errors during shutdown")
	}
	return <-runErr
}

// openStructured resolves the structured event destination.
func openStructured(dest string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch dest {
	case "":
		return nil, nop, nil
	case "stdout":
		return os.Stdout, nop, nil
	case "stderr":
		return os.Stderr, nop, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, nop, err
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nop, fmt.Errorf("failed to open structured log: %w", err)
	}
	return f, f.Close, nil
}
