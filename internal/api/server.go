package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/allanbts17/zoom-meeting-bot/internal/ratelimit"
)

// Routes mounts the control surface and the media origin server on one
// router.
func (h *Handler) Routes(profiles *ProfileHandler, media http.Handler, limiter *ratelimit.Limiter, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/v1").Subrouter()

	// Session lifecycle. Creation is rate limited; each create may launch
	// a whole browser.
	limited := v1.PathPrefix("").Subrouter()
	limited.Use(rateLimitMiddleware(limiter))
	limited.HandleFunc("/sessions", h.CreateSession).Methods("POST")

	v1.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	v1.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	v1.HandleFunc("/sessions/{id}", h.Terminate).Methods("DELETE")
	v1.HandleFunc("/sessions/{id}/login", h.Login).Methods("POST")
	v1.HandleFunc("/sessions/{id}/join", h.Join).Methods("POST")
	v1.HandleFunc("/sessions/{id}/media", h.PrepareMedia).Methods("POST")
	v1.HandleFunc("/sessions/{id}/stream", h.ActivateStream).Methods("POST")
	v1.HandleFunc("/sessions/{id}/leave", h.Leave).Methods("POST")
	v1.HandleFunc("/sessions/{id}/events", h.Events).Methods("GET")

	// Remote store catalog.
	v1.HandleFunc("/media", h.ListMedia).Methods("GET")
	v1.HandleFunc("/media/{name}", h.MediaMetadata).Methods("GET")

	// Persisted browser profiles.
	v1.HandleFunc("/profiles", profiles.CreateProfile).Methods("POST")
	v1.HandleFunc("/profiles/{id}", profiles.GetProfile).Methods("GET")
	v1.HandleFunc("/profiles/{id}", profiles.DeleteProfile).Methods("DELETE")

	// Origin server the browser page streams from.
	r.Handle("/media/{name}", media).Methods("GET", "HEAD")

	r.HandleFunc("/health", h.Health).Methods("GET")

	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(log))

	return r
}
