package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Jobs
	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("POST /api/v1/jobs", chain(http.HandlerFunc(h.CreateJob)))
	mux.Handle("GET /api/v1/jobs/{id}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("DELETE /api/v1/jobs/{id}", chain(http.HandlerFunc(h.DeleteJob)))
	mux.Handle("GET /api/v1/jobs/{id}/units", chain(http.HandlerFunc(h.ListJobUnits)))
	mux.Handle("GET /api/v1/jobs/{id}/inspect", chain(http.HandlerFunc(h.InspectJob)))
	mux.Handle("POST /api/v1/jobs/{id}/cancel", chain(http.HandlerFunc(h.CancelJob)))

	// Admin
	mux.Handle("POST /api/v1/jobs/{id}/force-transition", chain(http.HandlerFunc(h.TransitionJob)))
	mux.Handle("POST /api/v1/jobs/{id}/force-fail", chain(http.HandlerFunc(h.FailJob)))

	// WebSocket (без Logging: соединение долгоживущее, запись лога
	// при подключении/отключении делает сам handler)
	mux.Handle("GET /api/v1/jobs/{id}/events", Recovery(h.logger)(http.HandlerFunc(h.WatchJob)))
}
