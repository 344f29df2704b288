package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Atulx21/SevaConnect/internal/domain"
	"github.com/Atulx21/SevaConnect/internal/session"
	apperrors "github.com/Atulx21/SevaConnect/pkg/errors"
	"github.com/Atulx21/SevaConnect/pkg/httputil"
	"github.com/Atulx21/SevaConnect/pkg/validator"
)

const maxBodyBytes = 1 << 20

// --- Views ---

// UserView is the signed-in principal as shown to the app shell.
type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ErrorView is the last recorded manager error.
type ErrorView struct {
	Message    string `json:"message"`
	RemoteCode string `json:"remote_code,omitempty"`
}

// SessionView is the manager state without token material.
type SessionView struct {
	Phase       session.Phase   `json:"phase"`
	Initialized bool            `json:"initialized"`
	Loading     bool            `json:"loading"`
	User        *UserView       `json:"user,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Profile     *domain.Profile `json:"profile,omitempty"`
	Error       *ErrorView      `json:"error,omitempty"`
}

func newSessionView(st session.State) SessionView {
	v := SessionView{
		Phase:       st.Phase(),
		Initialized: st.Initialized,
		Loading:     st.Loading,
		Profile:     st.Profile,
	}
	if st.User != nil {
		v.User = newUserView(*st.User)
	}
	if exp := st.Session.Expiry(); !exp.IsZero() {
		v.ExpiresAt = &exp
	}
	if st.Err != nil {
		v.Error = newErrorView(st.Err)
	}
	return v
}

func newUserView(u domain.User) *UserView {
	return &UserView{ID: u.ID, Email: u.Email, Phone: u.Phone}
}

func newErrorView(err error) *ErrorView {
	var sErr *session.Error
	if errors.As(err, &sErr) {
		return &ErrorView{Message: sErr.Message(), RemoteCode: sErr.Code()}
	}
	return &ErrorView{Message: err.Error(), RemoteCode: apperrors.RemoteCodeOf(err)}
}

// --- Errors ---

// sessionErrorCodes maps manager error kinds to API error codes.
var sessionErrorCodes = map[error]string{
	session.ErrNoUser:           "NO_USER",
	session.ErrNoProfile:        "NO_PROFILE",
	session.ErrSessionRetrieval: "SESSION_RETRIEVAL_FAILED",
	session.ErrProfileFetch:     "PROFILE_FETCH_FAILED",
	session.ErrProfileUpdate:    "PROFILE_UPDATE_FAILED",
	session.ErrProfileCreate:    "PROFILE_CREATE_FAILED",
	session.ErrSignOut:          "SIGN_OUT_FAILED",
	session.ErrSignIn:           "SIGN_IN_FAILED",
	session.ErrSignUp:           "SIGN_UP_FAILED",
	session.ErrUserUpdate:       "USER_UPDATE_FAILED",
}

// writeSessionError writes err as an API error. Manager errors keep their
// kind's message and the backend's machine code.
func writeSessionError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	if errors.Is(err, session.ErrClosed) {
		httputil.WriteErrorResponse(w, r, http.StatusServiceUnavailable, httputil.ErrorResponse{
			Code:    "SHUTTING_DOWN",
			Message: err.Error(),
		})
		return
	}

	var sErr *session.Error
	if !errors.As(err, &sErr) {
		httputil.WriteError(w, r, err, logger)
		return
	}

	var valErr *validator.ValidationError
	if errors.As(sErr.Err, &valErr) {
		httputil.WriteValidationError(w, r, valErr)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(sErr, session.ErrNoUser):
		status = http.StatusUnauthorized
	case errors.Is(sErr, session.ErrNoProfile):
		status = http.StatusNotFound
	case sErr.Err != nil:
		status = apperrors.HTTPStatus(sErr.Err)
	}
	if status >= http.StatusInternalServerError {
		logger.WarnContext(r.Context(), "session operation failed",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
		)
	}

	code, ok := sessionErrorCodes[sErr.Kind]
	if !ok {
		code = "INTERNAL_ERROR"
	}
	httputil.WriteErrorResponse(w, r, status, httputil.ErrorResponse{
		Code:       code,
		Message:    sErr.Message(),
		RemoteCode: sErr.Code(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteErrorResponse(w, r, http.StatusBadRequest, httputil.ErrorResponse{
			Code:    "INVALID_INPUT",
			Message: "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}
