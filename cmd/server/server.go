package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/zircuit-labs/pod-identity/cmd/accesslog"
	"github.com/zircuit-labs/pod-identity/cmd/config"
	"github.com/zircuit-labs/pod-identity/cmd/handlers"
	"github.com/zircuit-labs/pod-identity/cmd/logger"
	"github.com/zircuit-labs/pod-identity/cmd/metrics"

	"github.com/gorilla/mux"
)

const (
	// MetricsRoute is only mounted when metrics are enabled
	MetricsRoute = "/metrics"

	// Version is reported in the startup log and the build info gauge
	Version = "dev"
)

// Server serves the pod identity endpoint
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics metrics.Client
	http    *http.Server
}

// New builds the router and the underlying http.Server
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Default()
	}

	m, err := metrics.NewClient(&cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics client: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: m,
	}

	m.Gauge("build.info", 1, []string{"version:" + Version}, 1)

	s.http = &http.Server{
		Addr:              cfg.GetListenAddr(),
		Handler:           s.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return s, nil
}

// Handler returns the router wrapped in the access log, if enabled, so that
// unmatched requests (404, 405) are logged and counted too
func (s *Server) Handler() http.Handler {
	router := s.Router()
	if !s.cfg.AccessLog.Enabled {
		return router
	}
	return accesslog.New(s.log, s.metrics, s.cfg.AccessLog.TrustForwardedHeaders).Middleware(router)
}

// Router returns the request router with all routes attached
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc(handlers.PodNameRoute, handlers.PodNameHandler).Methods(http.MethodGet)

	if pc, ok := s.metrics.(*metrics.PrometheusClient); ok {
		r.Handle(MetricsRoute, pc.Handler()).Methods(http.MethodGet)
	}

	return r
}

// Run listens on the configured address and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "addr", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server stopped: %w", err)
	case <-ctx.Done():
	}

	start := time.Now()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.metrics.Close()

	s.log.LogShutdown(context.Cause(ctx).Error(), time.Since(start))
	return nil
}
