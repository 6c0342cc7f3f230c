package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /stream inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Events.
	r.Get("/events", h.ListEvents)
	r.Post("/events", h.CreateEvent)
	r.Get("/events/{id}", h.GetEvent)
	r.Put("/events/{id}", h.UpdateEvent)
	r.Delete("/events/{id}", h.DeleteEvent)
	r.Post("/events/{id}/toggle", h.ToggleEvent)

	// Days and marks.
	r.Get("/days/{date}", h.GetDay)
	r.Put("/days/{date}/mark", h.SetMark)
	r.Delete("/days/{date}/mark", h.ClearMark)
	r.Get("/marks", h.ListMarks)

	// Month view and export.
	r.Get("/months/{month}", h.GetMonth)
	r.Get("/calendar.ics", h.ExportICS)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/stream", sseHandler.ServeHTTP)
	}

	return r
}
