package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"velvetcode/internal/api"
	"velvetcode/internal/metrics"
)

const requestTimeout = 60 * time.Second

func New(h *api.Handlers, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())

	// Websocket routes stay outside the request timeout.
	r.Get("/ws/room", h.CollabWS)
	r.Get("/ws/room/{id}", h.CollabWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/healthz", h.Health)
		r.Get("/languages", h.ListLanguages)
		r.Post("/run", h.RunCode)
		r.Post("/ai/suggest", h.Suggest)

		r.Route("/rooms/{id}", func(r chi.Router) {
			r.Get("/", h.GetRoom)
			r.Get("/runs", h.ListRuns)
			r.Get("/status", h.GetRoomStatus)
			r.Post("/assist", h.Assist)
		})
	})

	return r
}
