package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	servertiming "github.com/mitchellh/go-server-timing"

	"github.com/medvextract/medvextract-api/internal/api/middleware"
)

// RouterConfig holds the dependencies of NewRouter.
type RouterConfig struct {
	Handler *ExtractionHandler

	// Auth protects the extraction endpoints when set. The welcome and
	// health endpoints are always public.
	Auth middleware.TokenValidator

	Logger *slog.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Trace(log.With("component", "http")))
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return servertiming.Middleware(next, nil)
	})

	h := cfg.Handler
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(middleware.NewAuthMiddleware(cfg.Auth).Authenticate)
		}
		r.Post("/extract-tasks", h.ExtractTasks)
		r.Get("/task/{taskID}", h.GetTask)
		r.Get("/transcripts", h.ListTranscripts)
	})

	return r
}
