package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/tikgrab/internal/api/handler"
	mw "github.com/iconidentify/tikgrab/internal/api/middleware"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Media     *handler.MediaHandler
	Downloads *handler.DownloadHandler
	Files     *handler.FileHandler
	Events    *handler.EventHandler
	Health    *handler.HealthHandler
}

// NewRouter creates the HTTP router with all routes configured. When apiKey
// is empty the API is served without authentication.
func NewRouter(h Handlers, apiKey string, requestTimeout time.Duration) *chi.Mux {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Minute
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		if apiKey != "" {
			r.Use(mw.APIKeyAuth(apiKey))
		}

		// Long-lived SSE stream; must not be cut off by the request timeout.
		r.Get("/events/stream", h.Events.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/stats", h.Health.Stats)

			r.Post("/media/resolve", h.Media.Resolve)
			r.Get("/media/current", h.Media.Current)

			r.Post("/downloads", h.Downloads.Create)
			r.Get("/downloads", h.Downloads.List)
			r.Delete("/downloads", h.Downloads.CancelAll)
			r.Post("/downloads/images", h.Downloads.Images)
			r.Post("/archives", h.Downloads.Archive)

			r.Get("/files/{name}", h.Files.Serve)

			r.Get("/events", h.Events.List)
			r.Get("/events/recent", h.Events.Recent)
			r.Get("/events/stats", h.Events.Stats)
			r.Get("/events/categories", h.Events.Categories)
		})
	})

	return r
}
