// Package host owns the lifecycle of the function set: it builds it from the
// script root, rebuilds it when files change and tears it down on stop.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/psantana5/fnhost/internal/diagnostics"
	"github.com/psantana5/fnhost/internal/fswatch"
	"github.com/psantana5/fnhost/internal/invoke"
	"github.com/psantana5/fnhost/pkg/logging"
	"github.com/psantana5/fnhost/pkg/models"
	"github.com/psantana5/fnhost/pkg/retry"
)

// ErrHostNotRunning is returned by Call when no function set is built.
var ErrHostNotRunning = errors.New("host is not running")

// Manager is the lifecycle controller. One per process.
type Manager struct {
	opts   Options
	logger *logging.Logger

	// opMu serializes start, restart and stop.
	opMu  sync.Mutex
	state atomic.Int32

	// mu guards the pointers below for readers that must not wait on opMu.
	mu      sync.RWMutex
	host    *ScriptHost
	watcher *fswatch.Watcher
	lastErr error

	changes  chan fswatch.Event
	stopCh   chan struct{}
	stopOnce sync.Once
	loopWG   sync.WaitGroup
}

// NewManager creates a manager in the Created state. Close it to release
// the change loop even if it was never started.
func NewManager(opts Options) *Manager {
	opts.applyDefaults()
	m := &Manager{
		opts:    opts,
		logger:  opts.Logs.Logger(diagnostics.CategoryHostGeneral),
		changes: make(chan fswatch.Event, 64),
		stopCh:  make(chan struct{}),
	}
	m.state.Store(int32(models.HostCreated))
	m.loopWG.Add(1)
	go m.changeLoop()
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() models.HostState {
	return models.HostState(m.state.Load())
}

// LastError returns the fault of the last failed start, or nil.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Failures returns the recent failed invocations across restarts.
func (m *Manager) Failures() *invoke.FailureLog {
	return m.opts.Failures
}

// ScriptRoot returns the watched function root.
func (m *Manager) ScriptRoot() string {
	return m.opts.ScriptRoot
}

// Functions lists the functions of the running host.
func (m *Manager) Functions() []invoke.Descriptor {
	m.mu.RLock()
	h := m.host
	m.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h.Functions()
}

// Call invokes a function of the running host.
func (m *Manager) Call(ctx context.Context, name string, args invoke.Arguments) (*invoke.Record, error) {
	m.mu.RLock()
	h := m.host
	m.mu.RUnlock()
	if h == nil || m.State() != models.HostRunning {
		return nil, ErrHostNotRunning
	}
	return h.Call(ctx, name, args)
}

// WatcherStats returns the counters of the current root watcher.
func (m *Manager) WatcherStats() fswatch.Stats {
	m.mu.RLock()
	w := m.watcher
	m.mu.RUnlock()
	if w == nil {
		return fswatch.Stats{}
	}
	return w.Stats()
}

func (m *Manager) transition(to models.HostState) error {
	from := m.State()
	if err := models.ValidateHostTransition(from, to); err != nil {
		return err
	}
	m.state.Store(int32(to))
	m.opts.Observer.HostStateChanged(from, to)
	m.logger.Debug(fmt.Sprintf("Host state changed from %s to %s", from, to))
	return nil
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// Start builds the function set and subscribes the root watcher. On failure
// the host is left Errored with the fault available from LastError.
func (m *Manager) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() == models.HostRunning {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.transition(models.HostStarting); err != nil {
		return err
	}
	return m.startLocked()
}

func (m *Manager) startLocked() error {
	if err := m.buildLocked(); err != nil {
		m.setLastError(err)
		m.logger.WithError(err).Error(fmt.Sprintf("A host error has occurred: %v", err))
		if terr := m.transition(models.HostErrored); terr != nil {
			return multierr.Append(err, terr)
		}
		return err
	}
	m.setLastError(nil)
	return m.transition(models.HostRunning)
}

func (m *Manager) buildLocked() error {
	info, err := os.Stat(m.opts.ScriptRoot)
	if err != nil {
		return retry.Permanent(fmt.Errorf("script root: %w", err))
	}
	if !info.IsDir() {
		return retry.Permanent(fmt.Errorf("script root %s is not a directory", m.opts.ScriptRoot))
	}

	// host.json is read before the watcher exists only to learn whether to
	// watch at all; a broken file still gets watched so a fix restarts us.
	cfg, cfgErr := LoadHostConfig(m.opts.ScriptRoot)
	watch := m.opts.FileWatching && (cfgErr != nil || cfg.FileWatchingEnabled == nil || *cfg.FileWatchingEnabled)

	if watch && m.watcher == nil {
		w, err := fswatch.Start(fswatch.Config{
			Path:      m.opts.ScriptRoot,
			Recursive: true,
			Schedule:  m.opts.WatchSchedule,
			Native:    m.opts.Native,
		}, m.opts.Logs.Logger(fswatch.Category), m.changes)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.watcher = w
		m.mu.Unlock()
	}
	if cfgErr != nil {
		return cfgErr
	}

	h, err := buildScriptHost(&m.opts, cfg, m.State)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.host = h
	m.mu.Unlock()
	return nil
}

// disposeLocked stops the function set, then the watcher.
func (m *Manager) disposeLocked() error {
	m.mu.Lock()
	h, w := m.host, m.watcher
	m.host, m.watcher = nil, nil
	m.mu.Unlock()

	var err error
	if h != nil {
		err = multierr.Append(err, h.Stop())
	}
	if w != nil {
		err = multierr.Append(err, w.Close())
	}
	return err
}

// restart performs a full teardown and rebuild.
func (m *Manager) restart() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	state := m.State()
	if state != models.HostRunning && state != models.HostErrored {
		return
	}
	if err := m.transition(models.HostStarting); err != nil {
		m.logger.WithError(err).Warn("Restart skipped")
		return
	}
	m.opts.Observer.HostRestarted()
	if err := m.disposeLocked(); err != nil {
		m.logger.WithError(err).Warn(fmt.Sprintf("Errors while disposing host: %v", err))
	}
	if err := m.startLocked(); err != nil {
		return
	}
	m.logger.Info("Host restarted after file change")
}

// Stop tears the host down. Calling it again, or while stopping, is a no-op.
func (m *Manager) Stop() error {
	first := false
	m.stopOnce.Do(func() {
		first = true
		close(m.stopCh)
	})
	if !first {
		return nil
	}
	m.loopWG.Wait()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.transition(models.HostStopping); err != nil {
		return err
	}
	m.logger.Info("Stopping host")
	err := m.disposeLocked()
	if terr := m.transition(models.HostStopped); terr != nil {
		err = multierr.Append(err, terr)
	}
	m.logger.Info("Host stopped")
	return err
}

// Close stops the host.
func (m *Manager) Close() error {
	return m.Stop()
}

// RunAndBlock starts the host, retrying failed starts under StartRetry, and
// blocks until ctx is done or Stop is called. The host is stopped on every
// return path.
func (m *Manager) RunAndBlock(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, m.Stop())
	}()

	// Stop must also cut a pending backoff short.
	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-startCtx.Done():
		}
	}()

	err = retry.Do(startCtx, m.opts.StartRetry, func(attempt int) error {
		if attempt > 0 {
			m.logger.Info(fmt.Sprintf("Retrying host start (attempt %d)", attempt+1))
		}
		if m.State().IsShuttingDown() {
			return retry.Permanent(ErrHostNotRunning)
		}
		return m.Start(startCtx)
	})
	if err != nil {
		if startCtx.Err() != nil || m.stopping() {
			return nil
		}
		return fmt.Errorf("host failed to start: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-m.stopCh:
	}
	return nil
}

func (m *Manager) stopping() bool {
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

// changeLoop debounces watcher events into restarts. Events arriving while
// a restart runs queue up and produce at most one further restart.
func (m *Manager) changeLoop() {
	defer m.loopWG.Done()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-m.stopCh:
			return
		case ev := <-m.changes:
			if m.ignored(ev.Path) {
				continue
			}
			if !pending {
				m.logger.Info(fmt.Sprintf("File change of type '%s' detected for '%s'", ev.Kind, ev.Path))
				pending = true
			}
			if timer == nil {
				timer = time.NewTimer(m.opts.RestartDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(m.opts.RestartDebounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			pending = false
			select {
			case <-m.stopCh:
				return
			default:
			}
			m.logger.Info("Host configuration has changed. Signaling restart")
			m.restart()
		}
	}
}

// ignored filters out the log root and dot-directories.
func (m *Manager) ignored(path string) bool {
	if m.opts.LogRoot != "" {
		if rel, err := filepath.Rel(m.opts.LogRoot, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	rel, err := filepath.Rel(m.opts.ScriptRoot, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}
