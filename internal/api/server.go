package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/config"
	"github.com/JakeFAU/spider/internal/crawl"
	"github.com/JakeFAU/spider/internal/logging"
	"github.com/JakeFAU/spider/internal/metrics"
	"github.com/JakeFAU/spider/internal/pool"
	pubmemory "github.com/JakeFAU/spider/internal/publisher/memory"
	"github.com/JakeFAU/spider/internal/timer"
)

// maxCrawlBatch caps the URLs accepted by one POST /v1/crawl.
const maxCrawlBatch = 1000

// Crawler enqueues crawl tasks.
type Crawler interface {
	Enqueue(ctx context.Context, rawURL string) (string, error)
	Stats() crawl.Stats
}

// PoolStater reports worker pool state.
type PoolStater interface {
	State() pool.State
}

// Sweeper is the periodic re-crawl timer.
type Sweeper interface {
	Interval() time.Duration
	SetInterval(d time.Duration) error
	Status() timer.Status
	Runs() int64
}

// Deps are the services the handlers operate on. Sweep, Ready and
// Notifications are optional.
type Deps struct {
	Crawler       Crawler
	Pool          PoolStater
	Sweep         Sweeper
	Ready         func(ctx context.Context) error
	Notifications func() ([]pubmemory.PublishedMessage, bool)
}

// Server wires HTTP handlers to the crawl pipeline and worker pool.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)
	s := &Server{deps: deps, logger: logger}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawl", s.submitCrawl)
		r.Get("/pool", s.poolState)
		r.Get("/sweep", s.sweepState)
		r.Put("/sweep/interval", s.setSweepInterval)
		r.Get("/notifications", s.notifications)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type crawlRequest struct {
	URLs []string `json:"urls"`
}

type crawlResponse struct {
	TaskIDs []string `json:"task_ids"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	if len(req.URLs) > maxCrawlBatch {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d urls per request", maxCrawlBatch))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ids := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		id, err := s.deps.Crawler.Enqueue(ctx, u)
		if err != nil {
			s.logger.Warn("enqueue failed", zap.String("url", u), zap.Error(err))
			writeJSON(w, enqueueStatus(err), map[string]any{
				"error":    err.Error(),
				"task_ids": ids,
			})
			return
		}
		ids = append(ids, id)
	}
	writeJSON(w, http.StatusAccepted, crawlResponse{TaskIDs: ids})
}

func enqueueStatus(err error) int {
	switch {
	case errors.Is(err, pool.ErrPoolFull):
		return http.StatusTooManyRequests
	case errors.Is(err, pool.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) poolState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pool":  s.deps.Pool.State(),
		"crawl": s.deps.Crawler.Stats(),
	})
}

type sweepResponse struct {
	Status          string  `json:"status"`
	IntervalSeconds float64 `json:"interval_seconds"`
	Runs            int64   `json:"runs"`
}

func (s *Server) sweepState(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sweep == nil {
		writeError(w, http.StatusConflict, "sweep disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.sweepSnapshot())
}

type intervalRequest struct {
	Seconds float64 `json:"seconds"`
}

func (s *Server) setSweepInterval(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweep == nil {
		writeError(w, http.StatusConflict, "sweep disabled")
		return
	}
	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	d := time.Duration(req.Seconds * float64(time.Second))
	if err := s.deps.Sweep.SetInterval(d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.sweepSnapshot())
}

func (s *Server) sweepSnapshot() sweepResponse {
	return sweepResponse{
		Status:          s.deps.Sweep.Status().String(),
		IntervalSeconds: s.deps.Sweep.Interval().Seconds(),
		Runs:            s.deps.Sweep.Runs(),
	}
}

func (s *Server) notifications(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Notifications == nil {
		writeError(w, http.StatusNotFound, "notifications are not kept in memory")
		return
	}
	msgs, ok := s.deps.Notifications()
	if !ok {
		writeError(w, http.StatusNotFound, "notifications are not kept in memory")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": msgs})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.String("request_id", reqID),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
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

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
