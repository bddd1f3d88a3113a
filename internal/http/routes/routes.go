// Package routes assembles the HTTP router.
package routes

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/gleaner/internal/http/handlers"
	"github.com/jmylchreest/gleaner/internal/llm"
	"github.com/jmylchreest/gleaner/internal/repository"
)

// Config carries everything the router needs.
type Config struct {
	Processor          handlers.Processor
	JobRepo            repository.JobRepository
	Gateway            *llm.Gateway
	DB                 *sql.DB
	CORSOrigins        []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	Logger             *slog.Logger
}

// New builds the router with middleware and all API routes mounted.
func New(cfg Config) chi.Router {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 60
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))

	health := handlers.NewHealthHandler(cfg.DB)
	extract := handlers.NewExtractHandler(cfg.Processor, cfg.Logger)
	jobs := handlers.NewJobsHandler(cfg.JobRepo, cfg.Logger)
	providers := handlers.NewProvidersHandler(cfg.Gateway, cfg.Logger)

	r.Get("/healthz", health.Liveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.Health)
		r.Post("/extract", extract.Extract)
		r.Post("/jobs", jobs.Create)
		r.Get("/jobs/{id}", jobs.Get)
		r.Get("/providers", providers.List)
		r.Post("/providers/{provider}/validate-key", providers.ValidateKey)
	})

	return r
}
