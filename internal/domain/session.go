package domain

import (
	"log/slog"
	"time"

	"github.com/Atulx21/SevaConnect/pkg/logger"
)

// User is the authenticated principal as reported by the auth subsystem.
type User struct {
	ID           string         `json:"id" validate:"required"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Session is the credential material issued by the auth subsystem. Only
// the auth client reads the tokens; everything else treats them as opaque.
type Session struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         User   `json:"user"`
}

// Expiry returns when the access token expires, or the zero time if unknown.
func (s *Session) Expiry() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// ExpiresWithin reports whether the access token expires within d of now.
// A session without expiry metadata never does.
func (s *Session) ExpiresWithin(d time.Duration, now time.Time) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return !now.Add(d).Before(exp)
}

// LogValue keeps token material out of logs.
func (s Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", s.User.ID),
		slog.String("access_token", logger.RedactToken(s.AccessToken)),
		slog.Time("expires_at", s.Expiry()),
	)
}

// AuthEventKind names an auth state change notification.
type AuthEventKind string

const (
	EventInitialSession   AuthEventKind = "INITIAL_SESSION"
	EventSignedIn         AuthEventKind = "SIGNED_IN"
	EventSignedOut        AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed   AuthEventKind = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEventKind = "USER_UPDATED"
	EventPasswordRecovery AuthEventKind = "PASSWORD_RECOVERY"
)

// AuthEvent is one notification on the auth state stream. Session is nil
// for SIGNED_OUT.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// Credentials are an email and password pair.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LogValue keeps the password out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", logger.RedactEmail(c.Email)),
		slog.String("password", logger.RedactPassword(c.Password)),
	)
}

// SignUpRequest registers a new principal. Data is stored as user metadata.
type SignUpRequest struct {
	Credentials
	Data map[string]any `json:"data,omitempty"`
}
