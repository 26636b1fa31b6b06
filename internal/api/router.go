package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// RouterConfig holds the access settings of the HTTP surface.
type RouterConfig struct {
	// Token guards the catalog management routes.
	Token string
	// SearchLimit is the number of searches one client IP may issue per second.
	SearchLimit int
	// GlobalLimit is the number of requests one client IP may issue per minute.
	GlobalLimit int
}

// NewRouter builds and returns the Chi router with all routes configured.
// Health and search are public; catalog management requires bearer auth.
func NewRouter(handlers *Handlers, cfg RouterConfig, db, redis Pinger, log *slog.Logger) *chi.Mux {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 2
	}
	if cfg.GlobalLimit <= 0 {
		cfg.GlobalLimit = 60
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httprate.LimitByIP(cfg.GlobalLimit, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(db, redis, log))

	r.With(httprate.LimitByIP(cfg.SearchLimit, time.Second)).
		Get("/api/v1/journeys/search", handlers.SearchJourneys)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.Token))
		r.Get("/api/v1/catalog", handlers.CatalogStatus)
		r.Post("/api/v1/catalog/refresh", handlers.RefreshCatalog)
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
