package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/allanbts17/zoom-meeting-bot/internal/profile"
	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

// ProfileHandler exposes persisted browser profiles.
type ProfileHandler struct {
	store *profile.Store
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(store *profile.Store) *ProfileHandler {
	return &ProfileHandler{store: store}
}

// CreateProfile handles POST /v1/profiles.
func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProfileRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	p := h.store.Create(req.Name)
	writeJSON(w, http.StatusCreated, models.Response{Success: true, Data: p})
}

// GetProfile handles GET /v1/profiles/{id}.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(mux.Vars(r)["id"])
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profile.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Data: p})
}

// DeleteProfile handles DELETE /v1/profiles/{id}.
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(mux.Vars(r)["id"]); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profile.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Message: "profile deleted"})
}
