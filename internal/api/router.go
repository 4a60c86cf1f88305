package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", h.ListSourcesHandler)
			r.Post("/", h.CreateSourceHandler)
			r.Get("/{sourceID}/coverage", h.CoverageHandler)
			r.Get("/{sourceID}/periods", h.ListPeriodsHandler)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasksHandler)
			r.Post("/", h.CreateTaskHandler)
		})

		r.Route("/vectorization-jobs", func(r chi.Router) {
			r.Get("/", h.ListVectorizationJobsHandler)
			r.Post("/", h.SubmitVectorizationHandler)
			r.Get("/{id}", h.GetVectorizationJobHandler)
			r.Post("/{id}/resubmit", h.ResubmitVectorizationHandler)
			r.Post("/{id}/cancel", h.CancelVectorizationHandler)
		})

		r.Route("/search-jobs", func(r chi.Router) {
			r.Get("/", h.ListSearchJobsHandler)
			r.Post("/", h.SubmitSearchHandler)
			r.Get("/{id}", h.GetSearchJobHandler)
			r.Post("/{id}/resubmit", h.ResubmitSearchHandler)
			r.Post("/{id}/cancel", h.CancelSearchHandler)
			r.Get("/{id}/results", h.SearchResultsHandler)
			r.Get("/{id}/events", h.SearchEventsHandler)
		})

		r.Get("/frames/{id}/snapshot", h.FrameSnapshotHandler)
	})

	return r
}
