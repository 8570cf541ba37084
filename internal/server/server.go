// Package server exposes the operator's observability endpoints: liveness
// and readiness probes, the current operator status, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mthaddon/k8s-ingress-operator/internal/operator"
)

const (
	readTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server serves /healthz, /readyz, /status, and /metrics.
type Server struct {
	healthAddr  string
	metricsAddr string
	registry    *prometheus.Registry
	logger      *slog.Logger

	mu     sync.RWMutex
	status operator.Status
	ready  bool
}

// New creates a Server. The metrics endpoint serves the given registry.
func New(healthAddr, metricsAddr string, registry *prometheus.Registry) *Server {
	return &Server{
		healthAddr:  healthAddr,
		metricsAddr: metricsAddr,
		registry:    registry,
		status:      operator.Active(""),
		logger:      slog.Default().With("component", "server"),
	}
}

// SetStatus publishes the operator status; wired as the operator's status
// sink.
func (s *Server) SetStatus(status operator.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
}

// SetReady flips the readiness probe once startup wiring is complete.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ready = ready
}

// Run serves both listeners until ctx ends. Listener failures are returned;
// a clean shutdown returns nil.
func (s *Server) Run(ctx context.Context) error {
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", s.handleHealthz)
	healthMux.HandleFunc("/readyz", s.handleReadyz)
	healthMux.HandleFunc("/status", s.handleStatus)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	servers := []*http.Server{
		{Addr: s.healthAddr, Handler: healthMux, ReadHeaderTimeout: readTimeout},
		{Addr: s.metricsAddr, Handler: metricsMux, ReadHeaderTimeout: readTimeout},
	}

	errCh := make(chan error, len(servers))

	for _, srv := range servers {
		go func(srv *http.Server) {
			s.logger.Info("listening", "addr", srv.Addr)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- errors.Wrapf(err, "server on %s failed", srv.Addr)
			}
		}(srv)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown failed", "addr", srv.Addr, "error", err)
		}
	}

	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	if !ready {
		http.Error(w, "not ready", http.StatusServiceUnavailable)

		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(map[string]string{
		"state":   string(status.State),
		"message": status.Message,
	})
}
