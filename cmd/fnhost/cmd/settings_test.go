package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("script_root", "functions")

	s, err := loadSettings(v)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "functions"), s.ScriptRoot)
	assert.True(t, filepath.IsAbs(s.LogRoot))
	assert.Equal(t, 5*time.Minute, s.FunctionTimeout)
	assert.Equal(t, 500*time.Millisecond, s.RestartDebounce)
	assert.Equal(t, 3, s.MaxStartRetries)
	assert.Equal(t, "debug-only", s.FileLogging)
	assert.True(t, s.Primary)
	assert.True(t, s.FileWatching)
	assert.Equal(t, "fnhost", s.Tracing.ServiceName)
	assert.False(t, s.Tracing.Enabled)
}

func TestLoadSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
script_root: /srv/functions
function_timeout: 90s
file_watching: false
max_start_retries: 0
tracing:
  enabled: true
  otlp_endpoint: collector:4318
`), 0644))

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	s, err := loadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, "/srv/functions", s.ScriptRoot)
	assert.Equal(t, 90*time.Second, s.FunctionTimeout)
	assert.False(t, s.FileWatching)
	assert.Equal(t, 0, s.MaxStartRetries)
	assert.True(t, s.Tracing.Enabled)
	assert.Equal(t, "collector:4318", s.Tracing.OTLPEndpoint)
}

func TestLoadSettingsRejectsNegativeRetries(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("max_start_retries", -1)

	_, err := loadSettings(v)
	assert.Error(t, err)
}

func TestOpenStructured(t *testing.T) {
	w, closeFn, err := openStructured("")
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.NoError(t, closeFn())

	w, _, err = openStructured("stderr")
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)

	path := filepath.Join(t.TempDir(), "events", "structured.log")
	w, closeFn, err = openStructured(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("event\n"))
	require.NoError(t, err)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "event\n", string(data))
}

func TestRouteCommandJSON(t *testing.T) {
	prev := outputFormat
	outputFormat = "json"
	defer func() { outputFormat = prev }()

	var buf bytes.Buffer
	routeCmd.SetOut(&buf)
	defer routeCmd.SetOut(nil)
	require.NoError(t, routeCmd.RunE(routeCmd, []string{"Function.Hello.User", "Worker.node.42", "Host.General"}))

	var views []routeView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 3)

	assert.Equal(t, "Function/Hello", views[0].FilePath)
	assert.Equal(t, []string{"file"}, views[0].Sinks)

	assert.Equal(t, "Worker/node/42", views[1].FilePath)
	assert.Equal(t, []string{"file", "structured"}, views[1].Sinks)

	assert.Empty(t, views[2].FilePath)
	assert.Equal(t, []string{"structured"}, views[2].Sinks)
}
