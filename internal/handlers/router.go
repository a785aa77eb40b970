package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter wires the API. feed serves the live history websocket and may be
// nil to disable it.
func NewRouter(h *Handler, feed http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", h.Health)
	r.Post("/predict", h.Predict)
	r.Post("/predict/image", h.PredictFromImage)

	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.History)
		r.Get("/stats", h.HistoryStats)
	})

	if feed != nil {
		r.Handle("/ws/history", feed)
	}

	return r
}
