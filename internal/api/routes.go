package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Banner)
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/templates", h.UploadTemplate)
		r.Post("/documents", h.GenerateDocument)
		r.Get("/records", h.ListRecords)

		r.Route("/templates/{templateId}", func(r chi.Router) {
			r.Get("/intake", func(w http.ResponseWriter, r *http.Request) {
				h.GetIntake(w, r, chi.URLParam(r, "templateId"))
			})
			r.Post("/records/{recordId}/document", func(w http.ResponseWriter, r *http.Request) {
				h.GenerateFromRecord(w, r, chi.URLParam(r, "templateId"), chi.URLParam(r, "recordId"))
			})
			r.Post("/records/{recordId}/jobs", func(w http.ResponseWriter, r *http.Request) {
				h.StartGenerationJob(w, r, chi.URLParam(r, "templateId"), chi.URLParam(r, "recordId"))
			})
		})

		r.Route("/records/{recordId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetRecord(w, r, chi.URLParam(r, "recordId"))
			})
			r.Get("/fields", func(w http.ResponseWriter, r *http.Request) {
				h.GetRecordFields(w, r, chi.URLParam(r, "recordId"))
			})
		})

		r.Route("/jobs/{workflowId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetJob(w, r, chi.URLParam(r, "workflowId"))
			})
			r.Get("/document", func(w http.ResponseWriter, r *http.Request) {
				h.GetJobDocument(w, r, chi.URLParam(r, "workflowId"))
			})
		})
	})

	return r
}
