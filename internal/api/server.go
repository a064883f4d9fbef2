package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"crossposter/internal/config"
	"crossposter/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the operational HTTP API: health, metrics, manual task
// runs and execution exports.
type Server struct {
	cfg      config.APIConfig
	handlers *Handlers
	server   *http.Server
	auth     *Auth
	logger   zerolog.Logger
}

func NewServer(cfg config.APIConfig, handlers *Handlers, logger zerolog.Logger) *Server {
	srv := &Server{
		cfg:      cfg,
		handlers: handlers,
		logger:   logger.With().Str("component", "api").Logger(),
	}
	srv.auth = NewAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/tasks", handlers.handleTasks)
	mux.HandleFunc("/api/v1/tasks/", handlers.handleTask)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	return srv
}

// Handler returns the configured root handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("ops API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
