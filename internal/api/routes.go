package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(),
		APIKey(h.apiKey),
	)

	// Jobs
	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("POST /api/v1/jobs", chain(http.HandlerFunc(h.CreateJob)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("PUT /api/v1/jobs/{id}", chain(http.HandlerFunc(h.UpdateJob)))
	mux.Handle("DELETE /api/v1/jobs/{id}", chain(http.HandlerFunc(h.DeleteJob)))

	// Runs
	mux.Handle("GET /api/v1/jobs/{id}/runs", chain(http.HandlerFunc(h.ListJobRuns)))
	mux.Handle("POST /api/v1/jobs/{id}/run", chain(http.HandlerFunc(h.RunJobNow)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
}
