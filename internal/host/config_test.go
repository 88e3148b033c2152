package host

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/fnhost/internal/invoke"
	"github.com/psantana5/fnhost/pkg/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"90s", 90 * time.Second, false},
		{"00:05:00", 5 * time.Minute, false},
		{"01:00:30", time.Hour + 30*time.Second, false},
		{"00:00:01.5", 1500 * time.Millisecond, false},
		{"5", 0, true},
		{"aa:00:00", 0, true},
		{"00:-1:00", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeout(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadHostConfig(t *testing.T) {
	root := t.TempDir()

	cfg, err := LoadHostConfig(root)
	require.NoError(t, err)
	assert.Empty(t, cfg.Functions)

	writeFile(t, filepath.Join(root, HostConfigFile), `{
		// comments and trailing commas are fine
		"functionTimeout": "00:01:30",
		"functions": ["Hello", "other",],
		"fileWatchingEnabled": false,
	}`)
	cfg, err = LoadHostConfig(root)
	require.NoError(t, err)

	timeout, err := cfg.Timeout(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, timeout)
	assert.True(t, cfg.Allows("hello"))
	assert.True(t, cfg.Allows("Other"))
	assert.False(t, cfg.Allows("Missing"))
	require.NotNil(t, cfg.FileWatchingEnabled)
	assert.False(t, *cfg.FileWatchingEnabled)

	writeFile(t, filepath.Join(root, HostConfigFile), `{"functionTimeout": "soon"}`)
	_, err = LoadHostConfig(root)
	assert.Error(t, err)

	writeFile(t, filepath.Join(root, HostConfigFile), `{"functions": `)
	_, err = LoadHostConfig(root)
	assert.Error(t, err)
}

func TestReadFunctionMetadata(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Python", FunctionConfigFile), `{"bindings": [{"type": "timerTrigger"}]}`)
	writeFile(t, filepath.Join(root, "Python", "run.py"), "print('hi')")
	writeFile(t, filepath.Join(root, "Native", FunctionConfigFile), `{"language": "Go", "entryPoint": "Native.Run", "timeout": "10s"}`)
	writeFile(t, filepath.Join(root, "renamed", FunctionConfigFile), `{"name": "Shell", "scriptFile": "job.sh"}`)
	writeFile(t, filepath.Join(root, "Off", FunctionConfigFile), `{"disabled": true, "scriptFile": "run.sh"}`)
	writeFile(t, filepath.Join(root, "NoMetadata", "run.py"), "")
	writeFile(t, filepath.Join(root, ".git", FunctionConfigFile), `{}`)

	rec := logging.NewRecorder()
	descs, err := ReadFunctionMetadata(root, HostConfig{}, time.Minute, logging.New("Host.Startup", logging.DEBUG, rec))
	require.NoError(t, err)

	byName := map[string]invoke.Descriptor{}
	for _, d := range descs {
		byName[d.Name] = d
	}
	require.Len(t, byName, 3)

	assert.Equal(t, "python", byName["Python"].Language)
	assert.Equal(t, "run.py", byName["Python"].ScriptFile)
	assert.Equal(t, time.Minute, byName["Python"].Timeout)
	assert.Len(t, byName["Python"].Bindings, 1)

	assert.Equal(t, invoke.LanguageGo, byName["Native"].Language)
	assert.Equal(t, "Native.Run", byName["Native"].EntryPoint)
	assert.Equal(t, 10*time.Second, byName["Native"].Timeout)

	assert.Equal(t, "bash", byName["Shell"].Language)
	assert.Equal(t, filepath.Join(root, "renamed"), byName["Shell"].Directory)

	assert.Equal(t, 1, rec.Count("Function 'Off' is disabled"))
	assert.Equal(t, 1, rec.Count("Found the following functions:\nHost.Functions.Native\nHost.Functions.Python\nHost.Functions.Shell"))

	descs, err = ReadFunctionMetadata(root, HostConfig{Functions: []string{"shell"}}, 0, nil)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "Shell", descs[0].Name)
}

func TestReadFunctionMetadataErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Bad", FunctionConfigFile), `{"timeout": "never"}`)
	_, err := ReadFunctionMetadata(root, HostConfig{}, 0, nil)
	assert.Error(t, err)

	root = t.TempDir()
	writeFile(t, filepath.Join(root, "Odd", FunctionConfigFile), `{"scriptFile": "run.cbl"}`)
	_, err = ReadFunctionMetadata(root, HostConfig{}, 0, nil)
	assert.Error(t, err)

	_, err = ReadFunctionMetadata(filepath.Join(root, "missing"), HostConfig{}, 0, nil)
	assert.Error(t, err)
}
