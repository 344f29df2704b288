package http

import (
	"log/slog"
	"net/http"

	"github.com/Atulx21/SevaConnect/internal/domain"
	"github.com/Atulx21/SevaConnect/pkg/httputil"
)

// ProfileHandler handles HTTP requests for the signed-in principal's profile.
type ProfileHandler struct {
	sessions SessionManager
	logger   *slog.Logger
}

// NewProfileHandler creates a new profile HTTP handler.
func NewProfileHandler(sessions SessionManager, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{sessions: sessions, logger: logger}
}

// Get handles GET /api/v1/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	st := h.sessions.State()
	switch {
	case st.User == nil:
		httputil.WriteErrorResponse(w, r, http.StatusUnauthorized, httputil.ErrorResponse{
			Code:    "NO_USER",
			Message: "no user logged in",
		})
	case st.Profile == nil:
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, httputil.ErrorResponse{
			Code:    "NO_PROFILE",
			Message: "profile not created yet",
		})
	default:
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: st.Profile})
	}
}

// Refresh handles POST /api/v1/profile/refresh
func (h *ProfileHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	p, err := h.sessions.RefreshProfile(r.Context())
	if err != nil {
		writeSessionError(w, r, err, h.logger)
		return
	}
	if p == nil {
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, httputil.ErrorResponse{
			Code:    "NO_PROFILE",
			Message: "profile not created yet",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: p})
}

// Update handles PATCH /api/v1/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var u domain.ProfileUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	if u.IsEmpty() {
		httputil.WriteErrorResponse(w, r, http.StatusBadRequest, httputil.ErrorResponse{
			Code:    "INVALID_INPUT",
			Message: "at least one field must be provided",
		})
		return
	}

	p, err := h.sessions.UpdateProfile(r.Context(), u)
	if err != nil {
		writeSessionError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: p})
}

// Create handles POST /api/v1/profile
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var n domain.NewProfile
	if !decodeBody(w, r, &n) {
		return
	}

	p, err := h.sessions.CreateProfile(r.Context(), n)
	if err != nil {
		writeSessionError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: p})
}
