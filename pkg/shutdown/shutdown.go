// Package shutdown runs registered cleanup steps once, in reverse order,
// when the process is asked to stop.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/psantana5/fnhost/pkg/logging"
)

// Func is one cleanup step.
type Func func(context.Context) error

type step struct {
	name string
	fn   Func
}

// Manager handles graceful shutdown
type Manager struct {
	mu       sync.Mutex
	steps    []step
	timeout  time.Duration
	logger   *logging.Logger
	doneChan chan struct{}
	once     sync.Once
	ran      bool
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		timeout:  timeout,
		logger:   logger,
		doneChan: make(chan struct{}),
	}
}

// Register adds a named cleanup step. Steps run in reverse order (LIFO).
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step{name: name, fn: fn})
}

// Done returns a channel that is closed when shutdown is initiated
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Trigger initiates shutdown without a signal.
func (m *Manager) Trigger() {
	m.once.Do(func() { close(m.doneChan) })
}

// Context returns a context cancelled once shutdown is initiated.
func (m *Manager) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-m.doneChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// WaitWithContext blocks until SIGINT/SIGTERM, Trigger or ctx is done, then
// runs the registered steps.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("Received signal, initiating graceful shutdown", map[string]interface{}{"signal": sig.String()})
	case <-m.doneChan:
	case <-ctx.Done():
	}
	m.Trigger()
	return m.Shutdown()
}

// Shutdown executes all registered steps once, within the manager timeout.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ran {
		return nil
	}
	m.ran = true
	m.Trigger()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs error
	for i := len(m.steps) - 1; i >= 0; i-- {
		s := m.steps[i]
		if err := s.fn(ctx); err != nil {
			m.logger.WithError(err).Error(fmt.Sprintf("Shutdown step '%s' failed", s.name))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		m.logger.Debug(fmt.Sprintf("Shutdown step '%s' complete", s.name))
	}

	m.logger.Info("Graceful shutdown complete")
	return errs
}

// StopHTTPServer creates a shutdown step for http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) Func {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// CloseResource creates a shutdown step for io.Closer
func CloseResource(closer interface{ Close() error }) Func {
	return func(context.Context) error {
		return closer.Close()
	}
}
