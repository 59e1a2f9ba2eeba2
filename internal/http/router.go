package http

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"endurely/internal/auth"
	"endurely/internal/config"
	"endurely/internal/exporter"
	"endurely/internal/importer"
	"endurely/internal/metrics"
	"endurely/internal/programs"
	"endurely/internal/session"
)

// Deps carries everything the router wires into handlers. Auth and Sessions
// are nil when authentication is disabled; DefaultUser is set instead.
type Deps struct {
	Logger      *slog.Logger
	Metrics     MetricsRecorder
	Gatherer    prometheus.Gatherer
	Auth        *auth.Service
	Sessions    *session.Manager
	DefaultUser *auth.User
	Programs    *programs.Service
	Exporter    *exporter.CSVExporter
	Importer    *importer.CSVImporter
	DB          Pinger
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newRequestLogger(deps.Logger, deps.Metrics))

	health := NewHealthHandler(cfg.Environment, deps.DB, deps.Logger)
	r.Get("/health", health.Health)
	r.Get("/health/live", health.Live)
	r.Get("/health/ready", health.Ready)

	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	authEnabled := deps.Auth != nil && deps.Sessions != nil
	var requireAuth func(http.Handler) http.Handler
	if authEnabled {
		authHandler := NewAuthHandler(deps.Auth, deps.Sessions, deps.Metrics, cfg.Environment, deps.Logger)
		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
		})
		requireAuth = newSessionAuthMiddleware(deps.Sessions, deps.Auth, deps.Metrics, deps.Logger)
	} else {
		deps.Logger.Warn("authentication disabled; every request resolves to the development user")
		requireAuth = newStaticUserMiddleware(deps.DefaultUser)
	}

	programHandler := NewProgramHandler(deps.Programs, deps.Logger)
	historyHandler := NewHistoryHandler(deps.Programs, deps.Exporter, deps.Importer, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/auth/user", currentUserHandler)

		r.Route("/workouts", func(r chi.Router) {
			r.Post("/generate", programHandler.Generate)
			r.Get("/", programHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", programHandler.Get)
				r.Delete("/", programHandler.Delete)
			})
		})

		r.Route("/history", func(r chi.Router) {
			r.Post("/log", historyHandler.Log)
			r.Get("/", historyHandler.List)
			r.Get("/export", historyHandler.Export)
			r.Post("/import", historyHandler.Import)
		})

		r.Get("/stats", historyHandler.Stats)
	})

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
