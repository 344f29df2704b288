package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Atulx21/SevaConnect/internal/domain"
	apperrors "github.com/Atulx21/SevaConnect/pkg/errors"
	"github.com/Atulx21/SevaConnect/pkg/validator"
)

// AuthConfig controls session persistence and refresh.
type AuthConfig struct {
	// StorageKey names the persisted session item.
	StorageKey string
	// AutoRefresh enables the background refresh loop started by Run.
	AutoRefresh bool
	// RefreshMargin is how long before expiry a session is refreshed.
	RefreshMargin time.Duration
	// RefreshTick is how often the refresh loop checks the expiry.
	RefreshTick time.Duration
}

// AuthClient talks to the auth API and owns the current session. Every
// session change is announced to subscribers in the order it happened.
type AuthClient struct {
	t       *transport
	storage Storage
	cfg     AuthConfig
	logger  *slog.Logger
	now     func() time.Time
	events  *broadcaster

	mu      sync.RWMutex
	session *domain.Session
	loaded  bool

	refreshMu sync.Mutex
}

func newAuthClient(t *transport, storage Storage, cfg AuthConfig, logger *slog.Logger) *AuthClient {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &AuthClient{
		t:       t,
		storage: storage,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		events:  newBroadcaster(),
	}
}

// Subscribe returns an ordered stream of auth events and a function that
// ends the subscription. The stream is closed after unsubscribing.
func (a *AuthClient) Subscribe() (<-chan domain.AuthEvent, func()) {
	return a.events.subscribe()
}

// AccessToken returns the current access token, or "" when signed out.
func (a *AuthClient) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

// GetSession returns the current session, restoring it from storage on first
// use. A session close to expiry is refreshed before it is returned. A nil
// session with a nil error means nobody is signed in.
func (a *AuthClient) GetSession(ctx context.Context) (*domain.Session, error) {
	s, err := a.current(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	if !s.ExpiresWithin(a.cfg.RefreshMargin, a.now()) {
		return s, nil
	}

	a.logger.InfoContext(ctx, "stored session is expiring, refreshing",
		slog.String("user_id", s.User.ID),
		slog.Time("expires_at", s.Expiry()),
	)
	return a.refresh(ctx, s.RefreshToken)
}

// SignInWithPassword exchanges credentials for a session and emits
// SIGNED_IN.
func (a *AuthClient) SignInWithPassword(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	q := url.Values{}
	q.Set("grant_type", "password")

	var s domain.Session
	err := a.t.do(ctx, call{
		op:     "auth.sign_in",
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  q,
		body:   map[string]string{"email": creds.Email, "password": creds.Password},
	}, &s)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if err := a.checkSession(&s); err != nil {
		return nil, err
	}

	a.adopt(ctx, &s)
	a.logger.InfoContext(ctx, "signed in", slog.String("user_id", s.User.ID))
	a.events.emit(domain.AuthEvent{Kind: domain.EventSignedIn, Session: cloneSession(&s)})
	return cloneSession(&s), nil
}

// signUpResponse is either a session or, when confirmation is pending, the
// bare user.
type signUpResponse struct {
	domain.Session
	ID string `json:"id"`
}

// SignUp registers a principal. When the server issues a session right
// away it is adopted and SIGNED_IN is emitted; otherwise the returned
// session is nil until the principal confirms.
func (a *AuthClient) SignUp(ctx context.Context, req domain.SignUpRequest) (*domain.Session, error) {
	body := map[string]any{"email": req.Email, "password": req.Password}
	if len(req.Data) > 0 {
		body["data"] = req.Data
	}

	var resp signUpResponse
	err := a.t.do(ctx, call{
		op:     "auth.sign_up",
		method: http.MethodPost,
		path:   authPath + "/signup",
		body:   body,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	if resp.AccessToken == "" {
		a.logger.InfoContext(ctx, "signed up, confirmation pending", slog.String("user_id", resp.ID))
		return nil, nil
	}

	s := resp.Session
	if err := a.checkSession(&s); err != nil {
		return nil, err
	}
	a.adopt(ctx, &s)
	a.logger.InfoContext(ctx, "signed up", slog.String("user_id", s.User.ID))
	a.events.emit(domain.AuthEvent{Kind: domain.EventSignedIn, Session: cloneSession(&s)})
	return cloneSession(&s), nil
}

// SignOut revokes the session on the server, clears it locally and emits
// SIGNED_OUT. A token the server no longer knows still signs out locally.
// Any other failure leaves the session in place.
func (a *AuthClient) SignOut(ctx context.Context) error {
	token := a.AccessToken()
	if token != "" {
		q := url.Values{}
		q.Set("scope", "global")
		err := a.t.do(ctx, call{
			op:     "auth.sign_out",
			method: http.MethodPost,
			path:   authPath + "/logout",
			query:  q,
			bearer: token,
		}, nil)
		if err != nil && !isSessionGone(err) {
			return fmt.Errorf("sign out: %w", err)
		}
	}

	a.discard(ctx)
	a.logger.InfoContext(ctx, "signed out")
	a.events.emit(domain.AuthEvent{Kind: domain.EventSignedOut})
	return nil
}

// RefreshSession exchanges the current refresh token for a new session and
// emits TOKEN_REFRESHED. A refresh token the server rejects ends the
// session and emits SIGNED_OUT.
func (a *AuthClient) RefreshSession(ctx context.Context) (*domain.Session, error) {
	s, err := a.current(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperrors.Unauthorized("no session to refresh")
	}
	return a.refresh(ctx, s.RefreshToken)
}

// UpdateUser replaces the principal's metadata and emits USER_UPDATED.
func (a *AuthClient) UpdateUser(ctx context.Context, data map[string]any) (*domain.User, error) {
	token := a.AccessToken()
	if token == "" {
		return nil, apperrors.Unauthorized("no session")
	}

	var u domain.User
	err := a.t.do(ctx, call{
		op:     "auth.update_user",
		method: http.MethodPut,
		path:   authPath + "/user",
		body:   map[string]any{"data": data},
		bearer: token,
	}, &u)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if err := validator.Validate(u); err != nil {
		return nil, apperrors.Malformed("user", err)
	}

	a.mu.Lock()
	if a.session == nil {
		a.mu.Unlock()
		return &u, nil
	}
	a.session.User = u
	s := cloneSession(a.session)
	a.mu.Unlock()

	a.persist(ctx, s)
	a.events.emit(domain.AuthEvent{Kind: domain.EventUserUpdated, Session: cloneSession(s)})
	return &u, nil
}

// Run refreshes the session shortly before it expires until ctx is done.
// It returns immediately when auto refresh is disabled.
func (a *AuthClient) Run(ctx context.Context) {
	if !a.cfg.AutoRefresh || a.cfg.RefreshTick <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.RefreshTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshIfDue(ctx)
		}
	}
}

// Close ends every open subscription.
func (a *AuthClient) Close() {
	a.events.closeAll()
}

func (a *AuthClient) refreshIfDue(ctx context.Context) {
	a.mu.RLock()
	s := a.session
	due := s != nil && s.ExpiresWithin(a.cfg.RefreshMargin, a.now())
	var token string
	if due {
		token = s.RefreshToken
	}
	a.mu.RUnlock()

	if !due {
		return
	}
	if _, err := a.refresh(ctx, token); err != nil {
		a.logger.WarnContext(ctx, "background session refresh failed", slog.String("error", err.Error()))
	}
}

func (a *AuthClient) refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	// Another caller may have refreshed while this one waited.
	a.mu.RLock()
	cur := a.session
	a.mu.RUnlock()
	if cur != nil && cur.RefreshToken != refreshToken && !cur.ExpiresWithin(a.cfg.RefreshMargin, a.now()) {
		return cloneSession(cur), nil
	}

	if refreshToken == "" {
		a.endSession(ctx, "session has no refresh token")
		return nil, apperrors.Unauthorized("session has no refresh token")
	}

	q := url.Values{}
	q.Set("grant_type", "refresh_token")

	var s domain.Session
	err := a.t.do(ctx, call{
		op:     "auth.refresh",
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  q,
		body:   map[string]string{"refresh_token": refreshToken},
	}, &s)
	if err == nil {
		err = a.checkSession(&s)
	}
	if err != nil {
		if !apperrors.IsTransient(err) && !errors.Is(err, context.Canceled) {
			a.endSession(ctx, err.Error())
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	a.adopt(ctx, &s)
	a.logger.InfoContext(ctx, "session refreshed",
		slog.String("user_id", s.User.ID),
		slog.Time("expires_at", s.Expiry()),
	)
	a.events.emit(domain.AuthEvent{Kind: domain.EventTokenRefreshed, Session: cloneSession(&s)})
	return cloneSession(&s), nil
}

// endSession drops a session the server will not refresh.
func (a *AuthClient) endSession(ctx context.Context, reason string) {
	a.logger.WarnContext(ctx, "session ended by failed refresh", slog.String("reason", reason))
	a.discard(ctx)
	a.events.emit(domain.AuthEvent{Kind: domain.EventSignedOut})
}

// current returns the in-memory session, consulting storage once.
func (a *AuthClient) current(ctx context.Context) (*domain.Session, error) {
	a.mu.RLock()
	if a.loaded {
		s := cloneSession(a.session)
		a.mu.RUnlock()
		return s, nil
	}
	a.mu.RUnlock()

	stored, err := a.loadStored(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loaded {
		a.session = stored
		a.loaded = true
	}
	return cloneSession(a.session), nil
}

func (a *AuthClient) loadStored(ctx context.Context) (*domain.Session, error) {
	raw, ok, err := a.storage.GetItem(ctx, a.cfg.StorageKey)
	if err != nil {
		return nil, apperrors.Unavailable("read stored session", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.AccessToken == "" {
		a.logger.WarnContext(ctx, "discarding unreadable stored session")
		_ = a.storage.RemoveItem(ctx, a.cfg.StorageKey)
		return nil, nil
	}

	if s.User.ID == "" || s.ExpiresAt == 0 {
		claims, err := ParseAccessToken(s.AccessToken)
		if err != nil {
			a.logger.WarnContext(ctx, "discarding stored session with unreadable token", slog.String("error", err.Error()))
			_ = a.storage.RemoveItem(ctx, a.cfg.StorageKey)
			return nil, nil
		}
		if s.User.ID == "" {
			s.User.ID = claims.Subject
			s.User.Email = claims.Email
			s.User.Phone = claims.Phone
		}
		if s.ExpiresAt == 0 {
			s.ExpiresAt = claims.Expiry().Unix()
		}
	}
	return &s, nil
}

// checkSession validates a session returned by the auth API and fills in
// its absolute expiry.
func (a *AuthClient) checkSession(s *domain.Session) error {
	if err := validator.Validate(s); err != nil {
		return apperrors.Malformed("session", err)
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = a.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	return nil
}

func (a *AuthClient) adopt(ctx context.Context, s *domain.Session) {
	a.mu.Lock()
	a.session = cloneSession(s)
	a.loaded = true
	a.mu.Unlock()
	a.persist(ctx, s)
}

func (a *AuthClient) persist(ctx context.Context, s *domain.Session) {
	b, err := json.Marshal(s)
	if err != nil {
		a.logger.ErrorContext(ctx, "encode session for storage", slog.String("error", err.Error()))
		return
	}
	if err := a.storage.SetItem(ctx, a.cfg.StorageKey, string(b)); err != nil {
		a.logger.WarnContext(ctx, "persist session failed", slog.String("error", err.Error()))
	}
}

func (a *AuthClient) discard(ctx context.Context) {
	a.mu.Lock()
	a.session = nil
	a.loaded = true
	a.mu.Unlock()
	if err := a.storage.RemoveItem(ctx, a.cfg.StorageKey); err != nil {
		a.logger.WarnContext(ctx, "remove stored session failed", slog.String("error", err.Error()))
	}
}

// isSessionGone reports whether the server no longer recognizes the token.
func isSessionGone(err error) bool {
	return errors.Is(err, apperrors.ErrUnauthorized) ||
		errors.Is(err, apperrors.ErrForbidden) ||
		apperrors.HTTPStatus(err) == http.StatusNotFound
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User.UserMetadata != nil {
		c.User.UserMetadata = make(map[string]any, len(s.User.UserMetadata))
		for k, v := range s.User.UserMetadata {
			c.User.UserMetadata[k] = v
		}
	}
	return &c
}
