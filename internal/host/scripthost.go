package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/psantana5/fnhost/internal/diagnostics"
	"github.com/psantana5/fnhost/internal/invoke"
	"github.com/psantana5/fnhost/pkg/logging"
)

// ErrFunctionNotFound is returned by Call for an unknown function name.
var ErrFunctionNotFound = errors.New("function not found")

// ScriptHost is one built function set. It is never reused after Stop; the
// Manager builds a fresh one on every (re)start.
type ScriptHost struct {
	config   HostConfig
	invokers map[string]*invoke.Invoker
	names    []string
	logger   *logging.Logger
	shutdown context.Context
	cancel   context.CancelFunc
}

func buildScriptHost(opts *Options, cfg HostConfig, state invoke.StateFunc) (*ScriptHost, error) {
	logger := opts.Logs.Logger(diagnostics.CategoryHostStartup)

	timeout, err := cfg.Timeout(opts.FunctionTimeout)
	if err != nil {
		return nil, err
	}
	descs, err := ReadFunctionMetadata(opts.ScriptRoot, cfg, timeout, logger)
	if err != nil {
		return nil, err
	}

	shutdown, cancel := context.WithCancel(context.Background())
	h := &ScriptHost{
		config:   cfg,
		invokers: make(map[string]*invoke.Invoker, len(descs)),
		logger:   logger,
		shutdown: shutdown,
		cancel:   cancel,
	}

	logger.Info(fmt.Sprintf("Generating %d job function(s)", len(descs)))
	if len(descs) == 0 {
		logger.Info("No job functions found.")
	}

	for _, desc := range descs {
		inv, err := invoke.NewInvoker(invoke.Options{
			Descriptor: desc,
			Loader:     opts.Loader,
			Timeout:    desc.Timeout,
			Metrics:    opts.Metrics,
			State:      state,
			Logs:       opts.Logs,
			Tracer:     opts.Tracer,
			Failures:   opts.Failures,
			WatchFiles: opts.WatchFunctionFiles,
		})
		if err != nil {
			h.dispose()
			return nil, fmt.Errorf("function '%s': %w", desc.Name, err)
		}
		h.invokers[strings.ToLower(desc.Name)] = inv
		h.names = append(h.names, desc.Name)
	}
	sort.Strings(h.names)

	logger.Info("Job host started")
	return h, nil
}

// Functions returns the descriptors of the built functions, sorted by name.
func (h *ScriptHost) Functions() []invoke.Descriptor {
	out := make([]invoke.Descriptor, 0, len(h.names))
	for _, n := range h.names {
		out = append(out, h.invokers[strings.ToLower(n)].Descriptor())
	}
	return out
}

// Call invokes a function by name (case-insensitive) under the host's
// shutdown signal.
func (h *ScriptHost) Call(ctx context.Context, name string, args invoke.Arguments) (*invoke.Record, error) {
	inv, ok := h.invokers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return inv.Invoke(h.shutdown, args)
}

// Stop cancels in-flight invocations and releases every invoker.
func (h *ScriptHost) Stop() error {
	err := h.dispose()
	h.logger.Info("Job host stopped")
	return err
}

func (h *ScriptHost) dispose() error {
	h.cancel()
	var err error
	for _, inv := range h.invokers {
		err = multierr.Append(err, inv.Close())
	}
	return err
}
