package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"bananabot/internal/http/handlers"
	"bananabot/internal/middleware"
)

// Options configure the router.
type Options struct {
	AdminToken      string
	GatewayToken    string
	DefaultLocale   string
	RateLimitPerMin int
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.Locale(opts.DefaultLocale),
	)

	r.Get("/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(
			middleware.GatewayToken(opts.GatewayToken),
			middleware.RateLimit(opts.RateLimitPerMin, time.Minute, middleware.UserIDField),
		).Post("/events", app.PostEvent)
		r.Get("/packages", app.ListPackages)
		r.Get("/artifacts/*", app.PublicArtifact)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminToken(opts.AdminToken))
			r.Get("/stats", app.StatsSummary)
			r.Post("/sweep", app.Sweep)
			r.Get("/users", app.FindUser)
			r.Get("/users/{id}", app.GetUser)
			r.Post("/users/{id}/adjust", app.AdjustBalance)
			r.Post("/users/{id}/message", app.SendMessage)
			r.Post("/purchases/{id}/confirm", app.ConfirmPurchase)
			r.Get("/records/{id}/artifact", app.DownloadArtifact)
		})
	})

	return r
}
