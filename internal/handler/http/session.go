package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Atulx21/SevaConnect/internal/domain"
	"github.com/Atulx21/SevaConnect/pkg/httputil"
	"github.com/Atulx21/SevaConnect/pkg/validator"
)

// SessionHandler handles HTTP requests for session endpoints.
type SessionHandler struct {
	sessions SessionManager
	logger   *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(sessions SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// SignInResponse reports the principal a sign-in authenticated.
type SignInResponse struct {
	User      *UserView  `json:"user"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SignUpResponse reports whether the new principal must confirm before
// signing in.
type SignUpResponse struct {
	ConfirmationPending bool      `json:"confirmation_pending"`
	User                *UserView `json:"user,omitempty"`
}

// UpdateUserRequest carries the metadata to store on the principal.
type UpdateUserRequest struct {
	Data map[string]any `json:"data"`
}

// Get handles GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newSessionView(h.sessions.State())})
}

// SignIn handles POST /api/v1/session/sign-in
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	if err := validator.Validate(creds); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	s, err := h.sessions.SignIn(r.Context(), creds)
	if err != nil {
		writeSessionError(w, r, err, h.logger)
		return
	}

	resp := SignInResponse{User: newUserView(s.User)}
	if exp := s.Expiry(); !exp.IsZero() {
		resp.ExpiresAt = &exp
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// SignUp handles POST /api/v1/session/sign-up
func (h *SessionHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req domain.SignUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	s, err := h.sessions.SignUp(r.Context(), req)
	if err != nil {
		writeSessionError(w, r, err, h.logger)
		return
	}

	resp := SignUpResponse{ConfirmationPending: s == nil}
	if s != nil {
		resp.User = newUserView(s.User)
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: resp})
}

// SignOut handles POST /api/v1/session/sign-out
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(r.Context()); err != nil {
		writeSessionError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateUser handles PATCH /api/v1/session/user
func (h *SessionHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		httputil.WriteErrorResponse(w, r, http.StatusBadRequest, httputil.ErrorResponse{
			Code:    "INVALID_INPUT",
			Message: "data must not be empty",
		})
		return
	}

	u, err := h.sessions.UpdateUser(r.Context(), req.Data)
	if err != nil {
		writeSessionError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newUserView(*u)})
}
