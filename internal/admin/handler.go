// Package admin serves the operational HTTP surface of the host: probes,
// metrics, status and manual invocation.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/psantana5/fnhost/internal/host"
	"github.com/psantana5/fnhost/internal/invoke"
	"github.com/psantana5/fnhost/pkg/logging"
	"github.com/psantana5/fnhost/pkg/models"
	"github.com/psantana5/fnhost/pkg/ratelimit"
)

// Host is the part of the lifecycle controller the admin surface needs.
type Host interface {
	State() models.HostState
	LastError() error
	Functions() []invoke.Descriptor
	Failures() *invoke.FailureLog
	Call(ctx context.Context, name string, args invoke.Arguments) (*invoke.Record, error)
}

// Handler serves the admin routes.
type Handler struct {
	host    Host
	metrics http.Handler
	limiter *ratelimit.Limiter
	logger  *logging.Logger
	started time.Time
}

// NewHandler creates a handler. metrics and limiter may be nil.
func NewHandler(h Host, metrics http.Handler, limiter *ratelimit.Limiter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		host:    h,
		metrics: metrics,
		limiter: limiter,
		logger:  logger,
		started: time.Now(),
	}
}

// RegisterRoutes registers all admin routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/ready", h.Ready).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}

	r.HandleFunc("/admin/host/status", h.Status).Methods("GET")
	r.HandleFunc("/admin/functions", h.ListFunctions).Methods("GET")

	invokeHandler := http.Handler(http.HandlerFunc(h.InvokeFunction))
	if h.limiter != nil {
		invokeHandler = h.limiter.Middleware(ratelimit.IPKeyFunc)(invokeHandler)
	}
	r.Handle("/admin/functions/{name}", invokeHandler).Methods("POST")
}

// Router builds a mux router with all routes registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// Health is the liveness probe. It also reports process and host resources.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":         "healthy",
		"state":          h.host.State().String(),
		"uptime_seconds": time.Since(h.started).Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			resp["process_cpu_percent"] = cpu
		}
		if info, err := proc.MemoryInfo(); err == nil {
			resp["process_rss_bytes"] = info.RSS
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		resp["host_memory_used_percent"] = vmem.UsedPercent
		resp["host_memory_available_bytes"] = vmem.Available
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready succeeds only while the host is Running.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	state := h.host.State()
	resp := map[string]interface{}{
		"state":     state.String(),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if state != models.HostRunning {
		resp["status"] = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp["status"] = "ready"
	writeJSON(w, http.StatusOK, resp)
}

// Status reports state, last error, functions and recent failures.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"state":           h.host.State().String(),
		"functions":       functionNames(h.host.Functions()),
		"recent_failures": []invoke.FailureSample{},
	}
	if err := h.host.LastError(); err != nil {
		resp["last_error"] = err.Error()
	}
	if log := h.host.Failures(); log != nil {
		resp["recent_failures"] = log.Recent(20)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListFunctions returns the descriptors of the running function set.
func (h *Handler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	fns := h.host.Functions()
	if fns == nil {
		fns = []invoke.Descriptor{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"functions": fns,
		"count":     len(fns),
	})
}

// InvokeFunction runs a function by name. The optional body is a JSON
// object of arguments.
func (h *Handler) InvokeFunction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	args := invoke.Arguments{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.host.Call(r.Context(), name, args)
	if rec == nil {
		switch {
		case errors.Is(err, host.ErrFunctionNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, host.ErrHostNotRunning):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	resp := map[string]interface{}{
		"id":          rec.ID,
		"function":    rec.Function,
		"outcome":     rec.Outcome.String(),
		"duration_ms": rec.Timing.Duration().Milliseconds(),
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, outcomeStatus(rec.Outcome), resp)
}

func outcomeStatus(o invoke.Outcome) int {
	switch o {
	case invoke.OutcomeSuccess:
		return http.StatusOK
	case invoke.OutcomeTimedOut:
		return http.StatusGatewayTimeout
	case invoke.OutcomeCancelledByShutdown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func functionNames(descs []invoke.Descriptor) []string {
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.Name)
	}
	return names
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
