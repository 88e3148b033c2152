package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/psantana5/fnhost/pkg/tracing"
)

// version is set at build time with -ldflags "-X ...cmd.version=...".
var version = "dev"

// Settings is the effective process configuration.
type Settings struct {
	ScriptRoot string `mapstructure:"script_root" yaml:"script_root" json:"script_root"`
	LogRoot    string `mapstructure:"log_root" yaml:"log_root" json:"log_root"`

	LogLevel      string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	FileLogging   string `mapstructure:"file_logging" yaml:"file_logging" json:"file_logging"`
	StructuredLog string `mapstructure:"structured_log" yaml:"structured_log" json:"structured_log"`

	InstanceID     string `mapstructure:"instance_id" yaml:"instance_id" json:"instance_id"`
	Primary        bool   `mapstructure:"primary" yaml:"primary" json:"primary"`
	SubscriptionID string `mapstructure:"subscription_id" yaml:"subscription_id" json:"subscription_id"`
	AppName        string `mapstructure:"app_name" yaml:"app_name" json:"app_name"`

	FunctionTimeout    time.Duration `mapstructure:"function_timeout" yaml:"function_timeout" json:"function_timeout"`
	FileWatching       bool          `mapstructure:"file_watching" yaml:"file_watching" json:"file_watching"`
	WatchFunctionFiles bool          `mapstructure:"watch_function_files" yaml:"watch_function_files" json:"watch_function_files"`
	RestartDebounce    time.Duration `mapstructure:"restart_debounce" yaml:"restart_debounce" json:"restart_debounce"`
	MaxStartRetries    int           `mapstructure:"max_start_retries" yaml:"max_start_retries" json:"max_start_retries"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	AdminAddr      string  `mapstructure:"admin_addr" yaml:"admin_addr" json:"admin_addr"`
	AdminRateLimit float64 `mapstructure:"admin_rate_limit" yaml:"admin_rate_limit" json:"admin_rate_limit"`

	Tracing tracing.Config `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_root", filepath.Join(os.TempDir(), "fnhost", "logs"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("file_logging", "debug-only")
	v.SetDefault("structured_log", "")
	v.SetDefault("instance_id", "")
	v.SetDefault("primary", true)
	v.SetDefault("subscription_id", "")
	v.SetDefault("app_name", "")
	v.SetDefault("watch_function_files", false)
	v.SetDefault("function_timeout", 5*time.Minute)
	v.SetDefault("file_watching", true)
	v.SetDefault("restart_debounce", 500*time.Millisecond)
	v.SetDefault("max_start_retries", 3)
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("admin_addr", "127.0.0.1:7071")
	v.SetDefault("admin_rate_limit", 5.0)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "fnhost")
	v.SetDefault("tracing.service_version", version)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
}

// loadSettings decodes the merged flag, env and file configuration.
func loadSettings(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if s.ScriptRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		s.ScriptRoot = wd
	}

	var err error
	if s.ScriptRoot, err = filepath.Abs(s.ScriptRoot); err != nil {
		return nil, err
	}
	if s.LogRoot != "" {
		if s.LogRoot, err = filepath.Abs(s.LogRoot); err != nil {
			return nil, err
		}
	}
	if s.MaxStartRetries < 0 {
		return nil, fmt.Errorf("max_start_retries must not be negative")
	}
	return &s, nil
}
