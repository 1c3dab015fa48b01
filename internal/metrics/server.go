package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthReporter supplies the /healthz payload.
type HealthReporter interface {
	Healthy() bool
	Status() any
}

// Server exposes /metrics and /healthz.
type Server struct {
	port    int
	metrics *Metrics
	health  HealthReporter
	logger  *zap.Logger
	srv     *http.Server
}

// NewServer creates a new metrics server
func NewServer(port int, m *Metrics, health HealthReporter, logger *zap.Logger) *Server {
	return &Server{
		port:    port,
		metrics: m,
		health:  health,
		logger:  logger.With(zap.String("component", "metrics_server")),
	}
}

// Handler returns the mux served by Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if reg := s.metrics.Registry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now(),
	}
	code := http.StatusOK
	if s.health != nil {
		body["loops"] = s.health.Status()
		if !s.health.Healthy() {
			body["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Start starts the HTTP server in the background.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Starting metrics server", zap.Int("port", s.port))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping metrics server")
	return s.srv.Shutdown(ctx)
}
