package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/psantana5/fnhost/pkg/logging"
	"github.com/psantana5/fnhost/pkg/ratelimit"
	"github.com/psantana5/fnhost/pkg/tracing"
)

// Idle rate limit buckets are swept on this schedule.
const (
	LimiterSweepInterval = time.Minute
	LimiterIdleTTL       = 10 * time.Minute
)

// Server runs the admin handler on its own listener.
type Server struct {
	srv     *http.Server
	limiter *ratelimit.Limiter
	logger  *logging.Logger

	// SweepInterval and IdleTTL control limiter cleanup; zero uses the defaults.
	SweepInterval time.Duration
	IdleTTL       time.Duration
	stopSweep     func()
}

// NewServer wraps h in an http.Server, tracing every request when provider
// is set.
func NewServer(addr string, h *Handler, provider *tracing.Provider, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	var handler http.Handler = h.Router()
	if provider != nil {
		handler = tracing.HTTPMiddleware(provider)(handler)
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		limiter: h.limiter,
		logger:  logger,
	}
}

// Start listens and serves in the background. It returns once the listener
// is bound so the caller learns about port conflicts immediately.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Admin endpoint listening", map[string]interface{}{"addr": ln.Addr().String()})
	if s.limiter != nil {
		interval, ttl := s.SweepInterval, s.IdleTTL
		if interval <= 0 {
			interval = LimiterSweepInterval
		}
		if ttl <= 0 {
			ttl = LimiterIdleTTL
		}
		s.stopSweep = s.limiter.StartCleanup(interval, ttl)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Admin server error")
		}
	}()
	return ln.Addr(), nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopSweep != nil {
		s.stopSweep()
	}
	return s.srv.Shutdown(ctx)
}
