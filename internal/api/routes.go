package api

import (
	"net/http"

	"github.com/korjavin/caloriediary/internal/auth"
)

// RegisterRoutes registers all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, apiKeys []string, h *Handler) {
	protected := auth.APIKeyMiddleware(apiKeys)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protected(fn))
	}

	// Public
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /metrics", h.Metrics)

	// Protected: X-API-Key, bearer token or api_key query param
	handle("GET /api/v1/state", h.State)
	handle("PUT /api/v1/query", h.UpdateQuery)
	handle("POST /api/v1/select", h.SelectProduct)
	handle("DELETE /api/v1/select", h.ClearSelection)
	handle("PUT /api/v1/weight", h.UpdateWeight)
	handle("POST /api/v1/save", h.Save)
	handle("POST /api/v1/notice/dismiss", h.DismissNotice)
	handle("GET /api/v1/entries", h.Entries)
	handle("GET /api/v1/entries/find", h.FindEntries)
	handle("DELETE /api/v1/entries/{id}", h.DeleteEntry)
	handle("GET /api/v1/stream", h.Stream)
}
