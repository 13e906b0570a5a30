// Package server exposes the trigger HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/tjfontaine/promptpub/internal/environment"
	"github.com/tjfontaine/promptpub/internal/storage"
	"github.com/tjfontaine/promptpub/internal/trigger"
)

// Config wires the API to the rest of the system.
type Config struct {
	Port     int
	Logger   *slog.Logger
	Router   storage.Router
	Resolver *environment.Resolver
	Starter  trigger.Starter
	// RegenerateLimiter throttles POST /regenerate. Nil disables throttling.
	RegenerateLimiter *rate.Limiter
	// RequestTimeout bounds each request; zero selects 30s.
	RequestTimeout time.Duration
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	http   *http.Server
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(timeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "promptpub-api")
	})

	h := &handlers{
		router:   cfg.Router,
		resolver: cfg.Resolver,
		starter:  cfg.Starter,
		uploads:  trigger.NewUploadHandler(cfg.Starter, cfg.Router, cfg.Resolver),
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})

	r.Get("/healthz", h.healthz)
	r.Get("/outputs", h.listOutputs)
	r.Group(func(r chi.Router) {
		if cfg.RegenerateLimiter != nil {
			r.Use(RateLimitMiddleware(cfg.RegenerateLimiter))
		}
		r.Post("/regenerate", h.regenerate)
	})
	r.Post("/events/upload", h.upload)

	return &Server{
		Router: r,
		Port:   cfg.Port,
		logger: logger,
	}
}

// Start serves until Shutdown is called. It returns nil on a clean
// shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
