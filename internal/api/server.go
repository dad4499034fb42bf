// Package api exposes detection, estimation, upsell and truck planning over
// HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/owoblo/quote2move/internal/config"
	"github.com/owoblo/quote2move/internal/estimate"
	"github.com/owoblo/quote2move/internal/metrics"
	"github.com/owoblo/quote2move/internal/pipeline"
	"github.com/owoblo/quote2move/internal/store"
	"github.com/owoblo/quote2move/internal/upsell"
)

// Detector runs the photo detection pipeline.
type Detector interface {
	Run(ctx context.Context, req pipeline.DetectionRequest) (*pipeline.DetectionResult, error)
}

// Estimator prices a move.
type Estimator interface {
	Estimate(ctx context.Context, req estimate.Request) (*estimate.Result, error)
	Policy() estimate.Policy
}

// Deps are the collaborators behind the handlers. Store and Metrics may be
// nil; the routes that need them then report 503 or 404.
type Deps struct {
	Detector  Detector
	Estimator Estimator
	Upsells   *upsell.Engine
	Store     store.Store
	Metrics   *metrics.Metrics
}

// Server holds the handlers.
type Server struct {
	deps Deps
	cfg  config.ServerConfig
}

// NewServer creates a Server.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	return &Server{deps: deps, cfg: cfg}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		timeout := time.Duration(s.cfg.RequestTimeoutSecs) * time.Second
		if timeout <= 0 {
			timeout = 180 * time.Second
		}
		r.Use(middleware.Timeout(timeout))

		r.Post("/detections", s.handleDetect)
		r.Post("/estimates", s.handleEstimate)
		r.Post("/upsells/toggle", s.handleToggle)
		r.Post("/trucks/plan", s.handleTruckPlan)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

// requestLogger logs every request and records it in the HTTP metrics under
// its chi route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		s.deps.Metrics.HTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
