package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/andrewinci/actual-sync/internal/transport/httpapi/handler"
	"github.com/andrewinci/actual-sync/internal/transport/httpapi/middleware"
	"github.com/andrewinci/actual-sync/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger         *logger.Logger
	AllowedOrigins []string
	SyncHandler    *handler.SyncHandler
	HealthHandler  *handler.HealthHandler
	JWTMiddleware  func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
	}
	r.Use(middleware.RateLimit(10, 5))

	// Health check endpoints (no authentication required)
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
	}

	// Protected routes (require JWT authentication)
	if cfg.JWTMiddleware != nil && cfg.SyncHandler != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(cfg.JWTMiddleware)

			r.Post("/sync", cfg.SyncHandler.TriggerSync)
			r.Get("/runs/last", cfg.SyncHandler.GetLastRun)
		})
	}

	return r
}
