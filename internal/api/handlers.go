package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/allanbts17/zoom-meeting-bot/internal/bot"
	"github.com/allanbts17/zoom-meeting-bot/internal/session"
	"github.com/allanbts17/zoom-meeting-bot/internal/storage"
	"github.com/allanbts17/zoom-meeting-bot/internal/video"
	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

// MediaStore is the slice of the storage manager the API consumes.
type MediaStore interface {
	List(ctx context.Context) ([]string, error)
	Metadata(ctx context.Context, remoteKey string) (*models.VideoMetadata, error)
}

// Handler holds dependencies for the control-surface endpoints.
type Handler struct {
	registry *session.Registry
	store    MediaStore
	log      zerolog.Logger
}

// NewHandler creates the control-surface handler.
func NewHandler(registry *session.Registry, store MediaStore, log zerolog.Logger) *Handler {
	return &Handler{registry: registry, store: store, log: log}
}

// CreateSession handles POST /v1/sessions: register and launch a browser.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	entry, err := h.registry.Create(r.Context(), req)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.Response{
		Success: true,
		Message: "session launched",
		Data:    entry.Snapshot(),
	})
}

// ListSessions handles GET /v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Response{Success: true, Data: h.registry.List()})
}

// GetSession handles GET /v1/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	entry, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Data: entry.Snapshot()})
}

// Login handles POST /v1/sessions/{id}/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.registry.With(id, func(b *bot.Bot) error {
		return b.Authenticate(r.Context())
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Message: "authenticated"})
}

// Join handles POST /v1/sessions/{id}/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var handle models.MeetingHandle
	if err := json.NewDecoder(r.Body).Decode(&handle); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if handle.ID == "" {
		writeError(w, http.StatusBadRequest, "meetingId is required")
		return
	}

	id := mux.Vars(r)["id"]
	err := h.registry.With(id, func(b *bot.Bot) error {
		return b.Join(r.Context(), handle)
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Message: "joined meeting"})
}

// PrepareMedia handles POST /v1/sessions/{id}/media: download, transcode,
// verify.
func (h *Handler) PrepareMedia(w http.ResponseWriter, r *http.Request) {
	var req models.PrepareMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.VideoFileName == "" {
		writeError(w, http.StatusBadRequest, "videoFileName is required")
		return
	}

	id := mux.Vars(r)["id"]
	var asset *models.MediaAsset
	err := h.registry.With(id, func(b *bot.Bot) error {
		var prepErr error
		asset, prepErr = b.PrepareMedia(r.Context(), req.VideoFileName)
		return prepErr
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{
		Success: true,
		Message: "media prepared and verified",
		Data:    asset,
	})
}

// ActivateStream handles POST /v1/sessions/{id}/stream.
func (h *Handler) ActivateStream(w http.ResponseWriter, r *http.Request) {
	var req models.ActivateStreamRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	id := mux.Vars(r)["id"]
	err := h.registry.With(id, func(b *bot.Bot) error {
		return b.ActivateStream(r.Context(), req.CaptureAudio)
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Message: "virtual camera streaming"})
}

// Leave handles POST /v1/sessions/{id}/leave.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.registry.With(id, func(b *bot.Bot) error {
		return b.Leave(r.Context())
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Message: "left meeting"})
}

// Terminate handles DELETE /v1/sessions/{id}.
func (h *Handler) Terminate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.registry.Terminate(r.Context(), id); err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Message: "session terminated"})
}

// ListMedia handles GET /v1/media.
func (h *Handler) ListMedia(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.List(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Data: names})
}

// MediaMetadata handles GET /v1/media/{name}.
func (h *Handler) MediaMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.store.Metadata(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Response{Success: true, Data: meta})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Response{Success: true, Message: "ok"})
}

// writeFailure maps domain errors onto statuses. Everything still carries
// the plain envelope with a descriptive error string.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var precondition *bot.PreconditionError
	var injection *bot.InjectionError
	var conversion *video.ConversionError

	switch {
	case errors.As(err, &precondition),
		errors.Is(err, bot.ErrNotInMeeting),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrTooManySessions):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bot.ErrAuthenticationRejected):
		status = http.StatusUnauthorized
	case errors.Is(err, bot.ErrAuthenticationTimeout),
		errors.Is(err, bot.ErrJoinTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &injection),
		errors.As(err, &conversion),
		errors.Is(err, bot.ErrVerificationFailed),
		errors.Is(err, bot.ErrDriverUnavailable):
		status = http.StatusBadGateway
	}

	h.log.Error().Err(err).Int("status", status).Msg("request failed")
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.Response{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
