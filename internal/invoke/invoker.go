// Package invoke runs single function calls under a timeout and the host's
// shutdown signal and classifies how each call ended.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/fnhost/internal/diagnostics"
	"github.com/psantana5/fnhost/internal/fswatch"
	"github.com/psantana5/fnhost/pkg/logging"
	"github.com/psantana5/fnhost/pkg/models"
	"github.com/psantana5/fnhost/pkg/tracing"
)

// StateFunc reports the current host state.
type StateFunc func() models.HostState

// Options configures an Invoker.
type Options struct {
	Descriptor Descriptor
	Loader     Loader
	// Timeout bounds every call; zero disables the timer.
	Timeout  time.Duration
	Metrics  MetricsLogger
	State    StateFunc
	Logs     logging.Provider
	Tracer   trace.Tracer
	Failures *FailureLog
	// WatchFiles marks the prepared executor stale whenever a file under
	// the function directory changes.
	WatchFiles bool
}

// Invoker executes calls for one function.
type Invoker struct {
	desc     Descriptor
	loader   Loader
	timeout  time.Duration
	metrics  MetricsLogger
	state    StateFunc
	tracer   trace.Tracer
	failures *FailureLog

	logger *logging.Logger // Function.<name>
	user   *logging.Logger // Function.<name>.User

	mu    sync.Mutex
	exec  Executor
	stale atomic.Bool

	watcher   *fswatch.Watcher
	changes   chan fswatch.Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInvoker prepares the function's executor and, when enabled, starts
// watching its directory.
func NewInvoker(opts Options) (*Invoker, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("function %q: no loader configured", opts.Descriptor.Name)
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.State == nil {
		opts.State = func() models.HostState { return models.HostRunning }
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/psantana5/fnhost/internal/invoke")
	}

	i := &Invoker{
		desc:     opts.Descriptor,
		loader:   opts.Loader,
		timeout:  opts.Timeout,
		metrics:  opts.Metrics,
		state:    opts.State,
		tracer:   opts.Tracer,
		failures: opts.Failures,
		logger:   logging.Nop(),
		user:     logging.Nop(),
		done:     make(chan struct{}),
	}
	if opts.Logs != nil {
		i.logger = opts.Logs.Logger(diagnostics.FunctionCategory(i.desc.Name)).
			WithField(logging.PropFunctionName, i.desc.Name)
		i.user = opts.Logs.Logger(diagnostics.UserCategory(i.desc.Name)).
			WithField(logging.PropFunctionName, i.desc.Name)
	}

	exec, err := i.loader.Load(i.desc)
	if err != nil {
		return nil, err
	}
	i.exec = exec

	if opts.WatchFiles && i.desc.Directory != "" {
		var watchLog *logging.Logger
		if opts.Logs != nil {
			watchLog = opts.Logs.Logger(fswatch.Category)
		}
		i.changes = make(chan fswatch.Event, 16)
		w, err := fswatch.Start(fswatch.Config{Path: i.desc.Directory, Recursive: true}, watchLog, i.changes)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", i.desc.Name, err)
		}
		i.watcher = w
		i.wg.Add(1)
		go i.watchLoop()
	}
	return i, nil
}

// Descriptor returns the function metadata.
func (i *Invoker) Descriptor() Descriptor {
	return i.desc
}

// Stale reports whether the executor will be reloaded before the next call.
func (i *Invoker) Stale() bool {
	return i.stale.Load()
}

func (i *Invoker) watchLoop() {
	defer i.wg.Done()
	for {
		select {
		case <-i.done:
			return
		case <-i.changes:
			if !i.stale.Swap(true) {
				i.logger.PrimaryHostOnly().Info(fmt.Sprintf("Script for function '%s' changed. Reloading.", i.desc.Name))
			}
		}
	}
}

func (i *Invoker) executor() (Executor, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stale.Swap(false) {
		exec, err := i.loader.Load(i.desc)
		if err != nil {
			i.stale.Store(true)
			return nil, fmt.Errorf("reloading function %q: %w", i.desc.Name, err)
		}
		i.exec = exec
	}
	return i.exec, nil
}

// Invoke runs one call. The call is cancelled when shutdown is done or the
// timeout elapses, whichever comes first. The returned record is always
// non-nil once the call has begun.
func (i *Invoker) Invoke(shutdown context.Context, args Arguments) (*Record, error) {
	exec, err := i.executor()
	if err != nil {
		return nil, err
	}

	rec := newRecord(i.desc.Name)
	started := &FunctionStartedEvent{
		InvocationID: rec.ID,
		FunctionName: i.desc.Name,
		StartTime:    rec.Timing.StartedAt,
		Success:      true,
	}
	i.metrics.BeginEvent(started)
	defer func() {
		started.EndTime = time.Now()
		started.Success = rec.Outcome == OutcomeSuccess
		started.Outcome = rec.Outcome
		i.metrics.EndEvent(started)
	}()

	log := i.logger.WithField(logging.PropInvocationID, rec.ID)
	log.Info(fmt.Sprintf("Function started (Id=%s)", rec.ID))

	spanCtx, span := i.tracer.Start(shutdown, "function.invoke",
		trace.WithAttributes(
			attribute.String("faas.name", i.desc.Name),
			attribute.String("faas.invocation_id", rec.ID),
		))
	defer span.End()

	callCtx, cancel := context.WithCancel(spanCtx)
	defer cancel()
	if i.timeout > 0 {
		var cancelTimer context.CancelFunc
		callCtx, cancelTimer = context.WithTimeoutCause(callCtx, i.timeout, errTimerFired)
		defer cancelTimer()
	}

	ec := ExecutionContext{
		InvocationID:      rec.ID,
		FunctionName:      i.desc.Name,
		FunctionDirectory: i.desc.Directory,
		Logger:            i.user.WithField(logging.PropInvocationID, rec.ID),
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("function %q panicked: %v", i.desc.Name, p)
			}
		}()
		done <- exec.Execute(callCtx, ec, args)
	}()

	var callErr error
	cancelled := false
	select {
	case callErr = <-done:
		cancelled = callErr != nil && callCtx.Err() != nil && isCancellation(callErr)
	case <-callCtx.Done():
		cancelled = true
	}

	rec.Outcome, rec.Err = i.classify(shutdown, callCtx, callErr, cancelled, rec.ID)
	rec.Timing.Complete()
	i.report(spanCtx, log, rec)
	i.failures.Record(rec)

	return rec, rec.Err
}

// classify decides the outcome in order: success, shutdown, timeout, fault.
func (i *Invoker) classify(shutdown, callCtx context.Context, callErr error, cancelled bool, id string) (Outcome, error) {
	if !cancelled && callErr == nil {
		return OutcomeSuccess, nil
	}
	if cancelled {
		if shutdown.Err() != nil || i.state().IsShuttingDown() {
			return OutcomeCancelledByShutdown, fmt.Errorf("function %q (Id=%s): %w", i.desc.Name, id, ErrHostStopping)
		}
		if errors.Is(context.Cause(callCtx), errTimerFired) {
			return OutcomeTimedOut, &TimeoutError{Function: i.desc.Name, InvocationID: id, Timeout: i.timeout}
		}
		if callErr == nil {
			callErr = context.Cause(callCtx)
		}
	}
	return OutcomeFailed, surface(callErr)
}

func (i *Invoker) report(ctx context.Context, log *logging.Logger, rec *Record) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("faas.outcome", rec.Outcome.String()))
	tracing.AddEvent(ctx, "function.completed",
		attribute.String("faas.outcome", rec.Outcome.String()),
		attribute.Int64("faas.duration_ms", rec.Timing.Duration().Milliseconds()))
	elapsed := rec.Timing.Duration().Milliseconds()

	var reason string
	switch rec.Outcome {
	case OutcomeSuccess:
		span.SetStatus(codes.Ok, "")
		log.Info(fmt.Sprintf("Function completed (Success, Id=%s)", rec.ID))
		log.SystemTrace().WithField(logging.PropEventName, "FunctionCompleted").
			Info(fmt.Sprintf("Function completed (Success, Id=%s, Duration=%dms)", rec.ID, elapsed))
		return
	case OutcomeCancelledByShutdown:
		reason = "Failure: Host is Stopping"
	case OutcomeTimedOut:
		reason = "Failure: Timeout"
		log.WithError(rec.Err).Error(fmt.Sprintf("Timeout value of %s exceeded by function '%s' (Id: '%s').", i.timeout, i.desc.Name, rec.ID))
	default:
		reason = "Failure"
		log.WithError(rec.Err).Error(fmt.Sprintf("Exception while executing function: %s. %v", i.desc.Name, rec.Err))
	}

	tracing.SetError(ctx, rec.Err)
	span.SetStatus(codes.Error, reason)
	log.WithError(rec.Err).Error(fmt.Sprintf("Function completed (%s, Id=%s)", reason, rec.ID))
	log.SystemTrace().WithField(logging.PropEventName, "FunctionCompleted").
		Error(fmt.Sprintf("Function completed (Failure, Id=%s, Duration=%dms)", rec.ID, elapsed))
}

// Close stops the file watch. In-flight calls are not waited for.
func (i *Invoker) Close() error {
	var err error
	i.closeOnce.Do(func() {
		if i.watcher != nil {
			err = i.watcher.Close()
		}
		close(i.done)
		i.wg.Wait()
	})
	return err
}
