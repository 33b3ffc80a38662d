// Package api exposes the scan and repository endpoints over HTTP.
// Scan starts return immediately with an id; progress is polled, never
// streamed. Repository listings go through the response cache.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/synjan/qascan/internal/cache"
	"github.com/synjan/qascan/internal/github"
	"github.com/synjan/qascan/internal/orchestration"
	"github.com/synjan/qascan/internal/storage"
	"github.com/synjan/qascan/pkg/models"
	"github.com/synjan/qascan/pkg/utils"
)

type Server struct {
	cfg          models.ServerConfig
	store        storage.Store
	orchestrator *orchestration.Orchestrator
	repos        github.RepositoryService
	cache        *cache.Manager
	auth         *authenticator
	logger       *logrus.Logger
	metrics      *utils.MetricsCollector
	httpServer   *http.Server
}

func NewServer(cfg models.ServerConfig, store storage.Store, orchestrator *orchestration.Orchestrator, repos github.RepositoryService, cacheManager *cache.Manager, logger *logrus.Logger, metrics *utils.MetricsCollector) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		repos:        repos,
		cache:        cacheManager,
		auth:         &authenticator{sessionSecret: cfg.SessionSecret},
		logger:       logger,
		metrics:      metrics,
	}
	s.registerMetrics()
	return s
}

func (s *Server) registerMetrics() {
	if s.metrics == nil {
		return
	}
	_ = s.metrics.RegisterCounter("qascan_http_requests_total", "HTTP requests served, by path and status.", "path", "status")
	_ = s.metrics.RegisterCounter("qascan_cache_reads_total", "Repository cache reads, by outcome.", "status")
	_ = s.metrics.RegisterHistogram("qascan_http_request_duration_seconds", "HTTP request latency.",
		[]float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30})
}

// Handler builds the route table. Split from Start so tests can drive
// the mux through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/scanner", s.withCommon(s.handleScanner))
	mux.HandleFunc("/repositories", s.withCommon(s.handleRepositories))
	mux.HandleFunc("/health", s.withCommon(s.handleHealth))
	if s.cfg.MetricsEnabled && s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("API server listening on %s", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down API server")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// statusRecorder captures the status code and stamps the response
// time header just before headers are flushed.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	started time.Time
	wrote   bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.wrote = true
		r.status = code
		r.Header().Set("X-Response-Time", time.Since(r.started).Round(time.Microsecond).String())
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// withCommon wraps a handler with timing, the response-time header,
// request logging, and metrics.
func (s *Server) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK, started: time.Now()}

		next(rec, r)

		elapsed := time.Since(rec.started)
		s.logger.Debugf("%s %s -> %d in %v", r.Method, r.URL.Path, rec.status, elapsed)
		if s.metrics != nil {
			s.metrics.IncCounter("qascan_http_requests_total", 1,
				prometheus.Labels{"path": r.URL.Path, "status": fmt.Sprintf("%d", rec.status)})
			s.metrics.ObserveHistogram("qascan_http_request_duration_seconds", elapsed.Seconds(), nil)
		}
	}
}
