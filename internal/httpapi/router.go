package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, jwtSecret []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", h.Health)

	r.Route("/api/games", func(r chi.Router) {
		r.Use(Auth(jwtSecret))

		r.Get("/", h.ListGames)
		r.Get("/popular", h.PopularGames)
		r.Get("/recommended", h.RecommendedGames)
		r.Get("/mine", h.MyGames)
		r.Post("/purchase", h.Purchase)
		r.Get("/{id}", h.GetGame)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/", h.CreateGame)
			r.Put("/{id}", h.UpdateGame)
			r.Delete("/{id}", h.DeleteGame)
		})
	})

	return r
}
