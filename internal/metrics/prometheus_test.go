package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/fnhost/internal/fswatch"
	"github.com/psantana5/fnhost/internal/invoke"
	"github.com/psantana5/fnhost/pkg/models"
)

func TestCollectorInvocationCounters(t *testing.T) {
	c := NewCollector("")

	start := time.Now()
	ok := &invoke.FunctionStartedEvent{FunctionName: "Hello", StartTime: start}
	bad := &invoke.FunctionStartedEvent{FunctionName: "Hello", StartTime: start}

	c.BeginEvent(ok)
	c.BeginEvent(bad)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.inFlight.WithLabelValues("Hello")))

	ok.EndTime, ok.Success, ok.Outcome = start.Add(10*time.Millisecond), true, invoke.OutcomeSuccess
	bad.EndTime, bad.Outcome = start.Add(time.Second), invoke.OutcomeTimedOut
	c.EndEvent(ok)
	c.EndEvent(bad)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight.WithLabelValues("Hello")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.started.WithLabelValues("Hello")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completed.WithLabelValues("Hello", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.completed.WithLabelValues("Hello", "timed_out")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestCollectorHostMetrics(t *testing.T) {
	c := NewCollector("fnhost")
	c.HostStateChanged(models.HostCreated, models.HostStarting)
	c.HostStateChanged(models.HostStarting, models.HostRunning)
	c.HostRestarted()

	assert.Equal(t, float64(models.HostRunning), testutil.ToFloat64(c.hostState))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("Starting", "Running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.restarts))
}

func TestHandlerServesWatcherStats(t *testing.T) {
	c := NewCollector("")
	stats := fswatch.Stats{Failures: 3, Recoveries: 2}
	require.NoError(t, c.WatchWatcher("root", func() fswatch.Stats { return stats }))
	assert.Error(t, c.WatchWatcher("root", func() fswatch.Stats { return stats }))

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fnhost_file_watcher_failures_total{watcher="root"} 3`)
	assert.Contains(t, string(body), `fnhost_file_watcher_recoveries_total{watcher="root"} 2`)
	assert.Contains(t, string(body), "go_goroutines")
}
