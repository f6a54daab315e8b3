// Package api exposes the HTTP interface for the research agent. Notable
// routes:
//   - GET / for the HTML dashboard.
//   - GET /status and GET|POST /test, the original agent surface.
//   - POST /v1/analyze and friends for the structured API.
//   - GET /healthz, /readyz and /metrics for operations.
package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/molaison/research-agent/internal/app"
	"github.com/molaison/research-agent/internal/config"
	"github.com/molaison/research-agent/internal/metrics"
)

// Server wires HTTP handlers to the application services.
type Server struct {
	router   chi.Router
	agent    agentService
	exporter exporter
	searcher searcher
	analyzer analyzer
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(container *app.App, cfg config.Config, logger *zap.Logger) *Server {
	return newServer(container.Agent, container.Exporter, container.Searcher, container.Analyzer, cfg, logger)
}

func newServer(agent agentService, exp exporter, src searcher, intel analyzer, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		agent:    agent,
		exporter: exp,
		searcher: src,
		analyzer: intel,
		cfg:      cfg,
		logger:   logger,
	}

	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(timeout))
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey, []string{"/", "/healthz", "/readyz", "/metrics", "/status"}))
	}

	r.Get("/", s.dashboard)
	r.Get("/status", s.status)
	r.Get("/test", s.legacyTest)
	r.Post("/test", s.legacyTest)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.analyze)
		r.Post("/export", s.export)
		r.Get("/history", s.history)
		r.Get("/research", s.research)
		r.Post("/research", s.research)
		r.Post("/citations/parse", s.parseCitation)
		r.Post("/intel/company", s.companyIntel)
		r.Get("/intel/trends", s.industryTrends)
		r.Post("/intel/trends", s.industryTrends)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// All request-path dependencies are lazy; a process that is up can
	// serve.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string, exempt []string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		open[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}
