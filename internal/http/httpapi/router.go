package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/velinussage/pfp-animate/internal/http/handlers"
	"github.com/velinussage/pfp-animate/internal/middleware"
)

// NewRouter mounts the API routes. lookup may be nil when no GeoIP database
// is configured.
func NewRouter(app *handlers.App, lookup middleware.CountryLookup) http.Handler {
	cfg := app.Config
	r := chi.NewRouter()

	// I18N runs ahead of the access log so records carry locale and country.
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.I18N(handlers.Locales(), cfg.DefaultLocale, lookup),
		middleware.Logger(*app.Logger),
		chimw.Recoverer,
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/presets", app.Presets)
		r.Get("/generate/plan", app.Plan)
		r.Get("/motions", app.Motions)
		r.Post("/export", app.Export)
		r.Post("/export/gif", app.ExportGIF)

		// Provider-backed routes spend money per call.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
			r.Post("/preprocess", app.Preprocess)
			r.Post("/generate/stream", app.GenerateStream)
			r.Post("/animate/stream", app.AnimateStream)
		})
	})

	return r
}
