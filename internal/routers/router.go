package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"codeshare/internal/api"
	"codeshare/internal/metrics"
	"codeshare/internal/session"
	"codeshare/internal/utils"
)

const serviceName = "codeshare"

func New(log *utils.Logger, hub *session.Hub, opts api.Options) http.Handler {
	h := api.NewHandlers(log, hub, opts)
	r := chi.NewRouter()

	r.Use(
		cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}),
		metrics.Middleware(serviceName),
	)

	r.Get("/healthz", h.Health)
	r.Get("/api/v1/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/api/languages", h.ListLanguages)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/", h.CreateSession)
		r.Get("/{id}", h.GetSession)
		r.Get("/{id}/code", h.GetCode)
		r.Put("/{id}/code", h.UpdateCode)
	})

	r.Get("/ws", h.CollabWS)

	return r
}
