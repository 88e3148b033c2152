package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/fnhost/pkg/logging"
)

func newTestSink(t *testing.T, primary bool) (*FileSink, string) {
	t.Helper()
	root := t.TempDir()
	s := NewFileSink(FileSinkConfig{
		Root:       root,
		InstanceID: "test",
		MinLevel:   logging.DEBUG,
		IsPrimary:  func() bool { return primary },
	})
	t.Cleanup(func() { s.Close() })
	return s, root
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestFileSinkWritesRoutedCategories(t *testing.T) {
	s, root := newTestSink(t, true)
	f := logging.NewFactory(logging.DEBUG, s)

	f.Logger("Function.Foo").Info("  system line  ")
	f.Logger("Function.Foo.User").Info("user line")
	f.Logger("Worker.node.42").Info("worker line")
	f.Logger("Structured").Info("structured line")
	f.Logger("Host.General").Info("not routed")
	require.NoError(t, s.Flush())

	fn := readLines(t, filepath.Join(root, "Function", "Foo", "test.log"))
	require.Len(t, fn, 2)
	assert.True(t, strings.HasSuffix(fn[0], " system line"))
	assert.True(t, strings.HasSuffix(fn[1], " user line"))

	stamp := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3} `)
	assert.Regexp(t, stamp, fn[0])

	assert.Len(t, readLines(t, filepath.Join(root, "Worker", "node", "42", "test.log")), 1)
	assert.Len(t, readLines(t, filepath.Join(root, "Structured", "test.log")), 1)

	_, err := os.Stat(filepath.Join(root, "Host"))
	assert.True(t, os.IsNotExist(err), "unrouted category must not create files")
}

func TestFileSinkSharesWriterPerPath(t *testing.T) {
	s, _ := newTestSink(t, true)
	a := s.writer("Function/Foo")
	b := s.writer("function/foo")
	assert.Same(t, a, b)

	sys, _ := s.LogFile("Function.Foo")
	user, _ := s.LogFile("Function.Foo.User")
	assert.Equal(t, sys, user)
}

func TestFileSinkGates(t *testing.T) {
	tests := []struct {
		name    string
		primary bool
		logger  func(*logging.Logger) *logging.Logger
		want    int
	}{
		{"plain", false, func(l *logging.Logger) *logging.Logger { return l }, 1},
		{"system trace dropped", true, (*logging.Logger).SystemTrace, 0},
		{"primary only, not primary", false, (*logging.Logger).PrimaryHostOnly, 0},
		{"primary only, primary", true, (*logging.Logger).PrimaryHostOnly, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, root := newTestSink(t, tt.primary)
			l := tt.logger(logging.New("Function.Gate", logging.DEBUG, s))
			l.Info("gated")
			require.NoError(t, s.Flush())

			path := filepath.Join(root, "Function", "Gate", "test.log")
			if tt.want == 0 {
				_, err := os.Stat(path)
				assert.True(t, os.IsNotExist(err))
				return
			}
			assert.Len(t, readLines(t, path), tt.want)
		})
	}
}

func TestFileSinkFlushesErrorsImmediately(t *testing.T) {
	s, root := newTestSink(t, true)
	l := logging.New("Function.Flush", logging.DEBUG, s)
	path := filepath.Join(root, "Function", "Flush", "test.log")

	l.Info("buffered")
	data, _ := os.ReadFile(path)
	assert.Empty(t, string(data), "info lines stay buffered")

	l.WithError(errors.New("boom")).Warn("with error")
	assert.Len(t, readLines(t, path), 2, "an attached error forces a flush")

	l.Error("error level")
	assert.Len(t, readLines(t, path), 3)
}

func TestFileSinkNoWritesAfterClose(t *testing.T) {
	s, root := newTestSink(t, true)
	l := logging.New("Function.Closed", logging.DEBUG, s)
	l.Error("before")
	require.NoError(t, s.Close())
	l.Error("after")

	lines := readLines(t, filepath.Join(root, "Function", "Closed", "test.log"))
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "before")
}

func TestFileSinkRotates(t *testing.T) {
	root := t.TempDir()
	s := NewFileSink(FileSinkConfig{Root: root, InstanceID: "r", MaxFileSize: 64, MinLevel: logging.DEBUG})
	defer s.Close()

	l := logging.New("Structured", logging.DEBUG, s)
	for i := 0; i < 10; i++ {
		l.Error(strings.Repeat("x", 40))
	}

	matches, err := filepath.Glob(filepath.Join(root, "Structured", "r.log.*"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "expected rotated backups")
}

func TestFileSinkRotatesAfterFileRemoved(t *testing.T) {
	root := t.TempDir()
	var writeErrs atomic.Int32
	s := NewFileSink(FileSinkConfig{
		Root:        root,
		InstanceID:  "r",
		MaxFileSize: 64,
		MinLevel:    logging.DEBUG,
		OnError:     func(error) { writeErrs.Add(1) },
	})
	defer s.Close()

	l := logging.New("Structured", logging.DEBUG, s)
	l.Error(strings.Repeat("a", 40))
	l.Error(strings.Repeat("b", 40))

	path := filepath.Join(root, "Structured", "r.log")
	require.NoError(t, os.Remove(path))

	for i := 0; i < 5; i++ {
		l.Error("after removal")
	}

	assert.Equal(t, int32(0), writeErrs.Load())
	lines := readLines(t, path)
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], " after removal"))
}

func TestFileSinkPeriodicFlush(t *testing.T) {
	root := t.TempDir()
	s := NewFileSink(FileSinkConfig{Root: root, InstanceID: "p", FlushInterval: 10 * time.Millisecond})
	defer s.Close()

	logging.New("Structured", logging.DEBUG, s).Info("eventually")
	path := filepath.Join(root, "Structured", "p.log")

	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(path)
		return strings.Contains(string(data), "eventually")
	}, time.Second, 10*time.Millisecond)
}

func TestFileSinkConcurrentWriters(t *testing.T) {
	s, root := newTestSink(t, true)
	var wg sync.WaitGroup
	var n atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(user bool) {
			defer wg.Done()
			cat := "Function.Conc"
			if user {
				cat += ".User"
			}
			l := logging.New(cat, logging.DEBUG, s)
			for j := 0; j < 50; j++ {
				l.Info("line")
				n.Add(1)
			}
		}(i%2 == 0)
	}
	wg.Wait()
	require.NoError(t, s.Flush())

	lines := readLines(t, filepath.Join(root, "Function", "Conc", "test.log"))
	assert.Len(t, lines, int(n.Load()))
}
