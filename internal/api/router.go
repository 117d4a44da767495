package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/specbook-dev/specbook/internal/docservice"
	"github.com/specbook-dev/specbook/internal/index"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *docservice.Service, idx index.DocumentIndex, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, idx)

	r := chi.NewRouter()

	// Workspace tree.
	r.Get("/specs", h.ListWorkspace)

	// Document CRUD.
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/*", h.GetDocument)
	r.Put("/documents/*", h.SaveDocument)
	r.Delete("/documents/*", h.DeleteDocument)

	// Search.
	r.Get("/search", h.Search)

	// Live sync.
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
