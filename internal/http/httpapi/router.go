package httpapi

import (
	"net/http"
	"time"

	"studio/internal/http/handlers"
	"studio/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every dashboard route. Mutating API routes share a per-IP
// rate limit.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
	)

	r.Get("/healthz", app.Health)
	r.Get("/", app.Dashboard)

	r.Handle("/output/*", http.StripPrefix("/output/", http.FileServer(http.Dir(app.Output.BasePath()))))
	r.Handle("/styles/*", http.StripPrefix("/styles/", http.FileServer(http.Dir(app.Styles.BasePath()))))

	r.Route("/auth/instagram", func(r chi.Router) {
		r.Get("/", app.AuthStart)
		r.Get("/callback", app.AuthCallback)
	})

	limit := app.Config.RateLimitPerMin
	r.Route("/api", func(r chi.Router) {
		r.Get("/styles", app.ListStyles)
		r.Get("/gallery", app.ListGallery)
		r.Get("/gallery/export", app.ExportFavorites)
		r.Get("/gallery/{id}/download", app.DownloadImage)
		r.Get("/instagram/status", app.InstagramStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limit, time.Minute))
			r.Post("/styles/{style}/images", app.UploadStyleImage)
			r.Post("/generate", app.Generate)
			r.Post("/gallery/{id}/favorite", app.ToggleFavorite)
			r.Put("/gallery/{id}/caption", app.UpdateCaption)
			r.Delete("/gallery/{id}", app.DeleteImage)
			r.Post("/gallery/{id}/publish", app.PublishImage)
			r.Post("/instagram/token", app.ConnectToken)
			r.Post("/instagram/refresh", app.RefreshToken)
			r.Delete("/instagram", app.DisconnectInstagram)
		})
	})

	return r
}
