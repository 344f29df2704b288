package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Atulx21/SevaConnect/internal/domain"
	"github.com/Atulx21/SevaConnect/internal/session"
	"github.com/Atulx21/SevaConnect/pkg/health"
	"github.com/Atulx21/SevaConnect/pkg/middleware"
)

// SessionManager is the part of session.Manager the agent API drives.
type SessionManager interface {
	State() session.State
	SignIn(ctx context.Context, creds domain.Credentials) (*domain.Session, error)
	SignUp(ctx context.Context, req domain.SignUpRequest) (*domain.Session, error)
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, data map[string]any) (*domain.User, error)
	RefreshProfile(ctx context.Context) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, u domain.ProfileUpdate) (*domain.Profile, error)
	CreateProfile(ctx context.Context, n domain.NewProfile) (*domain.Profile, error)
}

// RateLimitConfig bounds sign-in and sign-up attempts per client address.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// NewRouter creates a chi router with all agent routes registered. ctx
// bounds background work started by middleware.
func NewRouter(
	ctx context.Context,
	sessions SessionManager,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig middleware.CORSConfig,
	limits RateLimitConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger, currentUserID(sessions)))
	r.Use(middleware.PrometheusMetrics())

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	sessionHandler := NewSessionHandler(sessions, logger)
	profileHandler := NewProfileHandler(sessions, logger)
	throttle := middleware.RateLimit(ctx, limits.PerMinute, limits.Burst, logger)

	r.Route("/api/v1/session", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/", sessionHandler.Get)
		r.With(throttle).Post("/sign-in", sessionHandler.SignIn)
		r.With(throttle).Post("/sign-up", sessionHandler.SignUp)
		r.Post("/sign-out", sessionHandler.SignOut)
		r.Patch("/user", sessionHandler.UpdateUser)
	})

	r.Route("/api/v1/profile", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/", profileHandler.Get)
		r.Post("/", profileHandler.Create)
		r.Patch("/", profileHandler.Update)
		r.Post("/refresh", profileHandler.Refresh)
	})

	return r
}

func currentUserID(sessions SessionManager) middleware.UserIDFunc {
	return func(context.Context) string {
		if u := sessions.State().User; u != nil {
			return u.ID
		}
		return ""
	}
}
