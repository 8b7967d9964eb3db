package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter registers every endpoint on a chi router.
func NewRouter(h *HandlerProvider) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.CreateAccountHandler)
		r.Post("/{id}/inactive", h.DeactivateAccountHandler)
		r.Get("/{id}/balance", h.GetBalanceHandler)
		r.Get("/{id}/history", h.HistoryHandler)
	})

	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", h.InitiateTransferHandler)
		r.Get("/{id}", h.GetTransferHandler)
		r.Post("/{id}/resume", h.ResumeTransferHandler)
	})

	return r
}
