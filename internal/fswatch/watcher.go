// Package fswatch watches a directory and rebuilds the underlying OS watch
// when it fails, so consumers only ever see change notifications.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/psantana5/fnhost/pkg/logging"
	"github.com/psantana5/fnhost/pkg/retry"
)

// Category is the log category for watcher diagnostics.
const Category = "Host.FileWatcher"

// ChangeKind is a set of change types.
type ChangeKind uint8

const (
	Created ChangeKind = 1 << iota
	Changed
	Deleted
	Renamed

	AllChanges = Created | Changed | Deleted | Renamed
)

func (k ChangeKind) String() string {
	var parts []string
	for _, c := range []struct {
		kind ChangeKind
		name string
	}{{Created, "Created"}, {Changed, "Changed"}, {Deleted, "Deleted"}, {Renamed, "Renamed"}} {
		if k&c.kind != 0 {
			parts = append(parts, c.name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// Has reports whether k includes any kind in other.
func (k ChangeKind) Has(other ChangeKind) bool {
	return k&other != 0
}

// Event is one change notification.
type Event struct {
	Path string
	Kind ChangeKind
}

// Config describes what to watch.
type Config struct {
	Path      string
	Filter    string // glob on the base name; "", "*" and "*.*" match everything
	Recursive bool
	Kinds     ChangeKind

	Schedule retry.Schedule
	Native   NativeFactory
}

func (c *Config) applyDefaults() {
	if c.Kinds == 0 {
		c.Kinds = AllChanges
	}
	if c.Schedule.Unit <= 0 {
		c.Schedule = retry.DefaultSchedule()
	}
	if c.Native == nil {
		c.Native = NewFSNotify
	}
}

// Watcher owns at most one live native watch at a time and replaces it
// when it fails.
type Watcher struct {
	cfg    Config
	logger *logging.Logger
	subs   []chan<- Event

	mu     sync.Mutex // guards native, stop and stats
	native NativeWatch
	stop   chan struct{} // closed to disable the current native watch
	stats  Stats

	recovering atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// Start validates the path, creates the first native watch and begins
// delivering matching events to subscribers. Sends block until the
// subscriber receives or the watcher is closed.
func Start(cfg Config, logger *logging.Logger, subscribers ...chan<- Event) (*Watcher, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Nop()
	}

	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, newError(ErrorTypePermanent, "start", cfg.Path, err)
	}
	if cfg.Recursive && !info.IsDir() {
		return nil, newError(ErrorTypePermanent, "start", cfg.Path, fmt.Errorf("not a directory"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		cfg:    cfg,
		logger: logger,
		subs:   append([]chan<- Event(nil), subscribers...),
		ctx:    ctx,
		cancel: cancel,
	}

	w.mu.Lock()
	err = w.initializeLocked()
	w.mu.Unlock()
	if err != nil {
		cancel()
		return nil, newError(ErrorTypePermanent, "start", cfg.Path, err)
	}
	return w, nil
}

// Path returns the watched path.
func (w *Watcher) Path() string {
	return w.cfg.Path
}

// Recovering reports whether a recovery sequence is in flight.
func (w *Watcher) Recovering() bool {
	return w.recovering.Load()
}

// Stats returns a snapshot of failure counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) initializeLocked() error {
	nw, err := w.cfg.Native(w.cfg)
	if err != nil {
		return err
	}
	stop := make(chan struct{})
	w.native = nw
	w.stop = stop
	w.wg.Add(1)
	go w.pump(nw, stop)
	return nil
}

// releaseLocked disables the current native watch before closing it so a
// stale watch cannot deliver after it has been replaced.
func (w *Watcher) releaseLocked() {
	if w.native == nil {
		return
	}
	close(w.stop)
	if err := w.native.Close(); err != nil {
		w.logger.Debug(w.msg(fmt.Sprintf("Error closing native watch: %v", err)))
	}
	w.native = nil
	w.stop = nil
}

func (w *Watcher) pump(nw NativeWatch, stop <-chan struct{}) {
	defer w.wg.Done()
	events, errs := nw.Events(), nw.Errors()

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if w.matches(ev) {
				w.broadcast(ev, stop)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) matches(ev Event) bool {
	if !w.cfg.Kinds.Has(ev.Kind) {
		return false
	}
	switch w.cfg.Filter {
	case "", "*", "*.*":
		return true
	}
	ok, err := filepath.Match(w.cfg.Filter, filepath.Base(ev.Path))
	return err == nil && ok
}

func (w *Watcher) broadcast(ev Event, stop <-chan struct{}) {
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		case <-stop:
			return
		}
	}
}

func (w *Watcher) msg(m string) string {
	return fmt.Sprintf("%s (path: '%s')", m, w.cfg.Path)
}

func (w *Watcher) onError(err error) {
	if w.ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	w.stats.Failures++
	w.stats.ConsecutiveFailures++
	w.stats.LastError = err.Error()
	w.mu.Unlock()

	if !w.recovering.CompareAndSwap(false, true) {
		return
	}

	w.logger.WithError(newError(ErrorTypeTransient, "watch", w.cfg.Path, err)).
		Warn(w.msg(fmt.Sprintf("Failure detected '%s'. Initiating recovery...", err.Error())))

	w.wg.Add(1)
	go w.recover()
}

func (w *Watcher) recover() {
	defer w.wg.Done()
	defer w.recovering.Store(false)

	for attempt := 1; ; attempt++ {
		if err := retry.Sleep(w.ctx, w.cfg.Schedule.Delay(attempt)); err != nil {
			w.abort()
			return
		}

		w.logger.Warn(w.msg("Attempting to recover..."))

		w.mu.Lock()
		if w.ctx.Err() != nil {
			w.mu.Unlock()
			w.abort()
			return
		}
		w.releaseLocked()
		err := w.initializeLocked()
		if err == nil {
			w.stats.Recoveries++
			w.stats.ConsecutiveFailures = 0
		}
		w.mu.Unlock()

		if err != nil {
			w.logger.WithError(err).Error(w.msg(fmt.Sprintf("Unable to recover - %v", err)))
			continue
		}

		w.logger.Info(w.msg("File watcher recovered."))
		return
	}
}

func (w *Watcher) abort() {
	w.mu.Lock()
	w.stats.Aborted++
	w.mu.Unlock()
	w.logger.Error(w.msg("Recovery process aborted."))
}

// Close cancels any in-flight recovery, releases the native watch and
// waits for delivery goroutines to exit. No events are delivered after
// Close returns.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		w.mu.Lock()
		w.releaseLocked()
		w.mu.Unlock()
		w.wg.Wait()
	})
	return nil
}
