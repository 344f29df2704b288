// Package session tracks who is signed in and their profile. It reconciles
// direct operations with the auth event stream, retries transient profile
// fetch failures, and applies profile edits optimistically with rollback.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Atulx21/SevaConnect/internal/domain"
	"github.com/Atulx21/SevaConnect/internal/repository"
	apperrors "github.com/Atulx21/SevaConnect/pkg/errors"
	"github.com/Atulx21/SevaConnect/pkg/validator"
)

// AuthService is the auth side of the backend.
type AuthService interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	SignInWithPassword(ctx context.Context, creds domain.Credentials) (*domain.Session, error)
	SignUp(ctx context.Context, req domain.SignUpRequest) (*domain.Session, error)
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, data map[string]any) (*domain.User, error)
	Subscribe() (<-chan domain.AuthEvent, func())
}

// Auditor receives session audit events. Failures are logged, never
// surfaced to callers.
type Auditor interface {
	PublishSignedIn(ctx context.Context, user domain.User) error
	PublishSignedOut(ctx context.Context, userID string) error
	PublishProfileUpdated(ctx context.Context, p *domain.Profile) error
}

// Options tune a Manager. Zero values select the defaults.
type Options struct {
	Retry   RetryPolicy
	Auditor Auditor
	// Sleep waits between fetch retries; it must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// field groups written by settlements.
const (
	fieldUser = 1 << iota
	fieldProfile
)

// Manager owns State. Every operation takes a ticket when it starts. A
// settlement writes each field group only if no operation that started
// later has already written that group, so a stale fetch never overwrites
// a newer event while the groups it still owns are applied. State never
// holds a profile that belongs to someone other than its user. After
// Close, settlements are dropped.
type Manager struct {
	auth     AuthService
	profiles repository.ProfileRepository
	logger   *slog.Logger
	retry    RetryPolicy
	auditor  Auditor
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	life   context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	seq           uint64
	userWriter    uint64
	profileWriter uint64
	closed        bool
	watchers      map[int]chan State
	nextWatcher   int

	initMu      sync.Mutex
	unsubscribe func()
	unsubOnce   sync.Once
	wg          sync.WaitGroup
}

// NewManager creates a Manager in the Unresolved phase. Call Start to
// subscribe to auth events and resolve the current session.
func NewManager(auth AuthService, profiles repository.ProfileRepository, logger *slog.Logger, opts Options) *Manager {
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	life, cancel := context.WithCancel(context.Background())
	m := &Manager{
		auth:     auth,
		profiles: profiles,
		logger:   logger,
		retry:    opts.Retry,
		auditor:  opts.Auditor,
		sleep:    opts.Sleep,
		now:      opts.Now,
		life:     life,
		cancel:   cancel,
		state:    State{Loading: true},
		watchers: make(map[int]chan State),
	}
	recordPhase(PhaseUnresolved)
	return m
}

// Start subscribes to auth events and runs Initialize. Events are handled
// one at a time, in delivery order, until Close.
func (m *Manager) Start(ctx context.Context) {
	events, unsubscribe := m.auth.Subscribe()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsubscribe()
		return
	}
	m.unsubscribe = unsubscribe
	m.wg.Add(1)
	m.mu.Unlock()

	go m.consume(events)

	if err := m.Initialize(ctx); err != nil {
		m.logger.WarnContext(ctx, "session initialization recorded an error", slog.String("error", err.Error()))
	}
}

func (m *Manager) consume(events <-chan domain.AuthEvent) {
	defer m.wg.Done()
	for {
		select {
		case <-m.life.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleSafely(ev)
		}
	}
}

func (m *Manager) handleSafely(ev domain.AuthEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("panic while handling auth event",
				slog.String("kind", string(ev.Kind)),
				slog.Any("panic", rec),
			)
		}
	}()
	m.HandleAuthEvent(m.life, ev)
}

// Close stops event handling, ends the subscription and closes every
// watcher. Operations still in flight settle without effect.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id, ch := range m.watchers {
		close(ch)
		delete(m.watchers, id)
	}
	m.mu.Unlock()

	m.cancel()
	m.unsubOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
	})
	m.wg.Wait()
}

// State returns a snapshot of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Watch returns a channel that always holds the latest snapshot, and a
// function that stops watching. The channel is closed by either.
func (m *Manager) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	ch <- m.state.clone()
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(c)
		}
	}
}

// Initialize resolves the current session and its profile. A profile
// failure does not prevent adopting the session. It always leaves the
// manager initialized and not loading, and returns the error it recorded,
// if any. Once initialized without error, further calls do nothing; after
// an error, a call retries.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state.Initialized && m.state.Err == nil {
		m.mu.Unlock()
		return nil
	}
	if m.state.Initialized {
		m.state.Loading = true
		m.notifyLocked()
	}
	ticket := m.nextTicketLocked()
	m.mu.Unlock()

	ctx, cancel := m.bind(ctx)
	defer cancel()

	s, err := m.auth.GetSession(ctx)
	if err != nil {
		e := newError(ErrSessionRetrieval, err)
		m.settle(ticket, true, signedOut(e)...)
		return e
	}

	if s == nil {
		m.settle(ticket, true, signedOut(nil)...)
		m.logger.InfoContext(ctx, "no stored session")
		return nil
	}

	p, fetchErr := m.fetchProfile(ctx, s.User.ID)
	var recorded error
	if fetchErr != nil {
		recorded = fetchErr
	}
	m.settle(ticket, true, adopt(s, p, recorded)...)

	m.logger.InfoContext(ctx, "session initialized",
		slog.String("user_id", s.User.ID),
		slog.Bool("has_profile", p != nil),
	)
	return recorded
}

// FetchProfile returns the profile of userID, or nil when the principal has
// none. Transient failures are retried with exponential backoff; other
// failures are returned at once. It does not change State.
func (m *Manager) FetchProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, cancel := m.bind(ctx)
	defer cancel()
	return m.fetchProfile(ctx, userID)
}

func (m *Manager) fetchProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	for attempt := 0; ; attempt++ {
		p, err := m.profiles.GetByID(ctx, userID)
		switch {
		case err == nil:
			profileFetchAttempts.WithLabelValues("ok").Inc()
			return p, nil
		case errors.Is(err, apperrors.ErrNotFound):
			profileFetchAttempts.WithLabelValues("not_found").Inc()
			return nil, nil
		case !apperrors.IsTransient(err):
			profileFetchAttempts.WithLabelValues("error").Inc()
			return nil, newError(ErrProfileFetch, err)
		}

		profileFetchAttempts.WithLabelValues("transient").Inc()
		if attempt >= m.retry.MaxRetries {
			return nil, newError(ErrProfileFetch, fmt.Errorf("after %d attempts: %w", attempt+1, err))
		}

		delay := m.retry.Backoff(attempt + 1)
		m.logger.WarnContext(ctx, "profile fetch failed, retrying",
			slog.String("user_id", userID),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if err := m.sleep(ctx, delay); err != nil {
			return nil, newError(ErrProfileFetch, err)
		}
	}
}

// RefreshProfile re-fetches the current user's profile and replaces it in
// State. On failure the previous profile is kept and the error recorded.
func (m *Manager) RefreshProfile(ctx context.Context) (*domain.Profile, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.state.User == nil {
		m.mu.Unlock()
		return nil, newError(ErrNoUser, nil)
	}
	userID := m.state.User.ID
	ticket := m.nextTicketLocked()
	m.mu.Unlock()

	ctx, cancel := m.bind(ctx)
	defer cancel()

	p, err := m.fetchProfile(ctx, userID)
	if err != nil {
		m.settle(ticket, false, profileWrite(func(st *State) {
			st.Err = err
		}))
		return nil, err
	}

	applied := m.settle(ticket, false, profileWrite(func(st *State) {
		if st.User == nil || st.User.ID != userID {
			return
		}
		st.Profile = p
		st.Err = nil
	}))
	if applied&fieldProfile == 0 {
		m.logger.DebugContext(ctx, "discarded stale profile refresh", slog.String("user_id", userID))
	}
	return p, nil
}

// UpdateProfile applies u to the profile immediately, then stores it. On
// success State holds the stored row; on failure the exact previous
// profile is restored and the error recorded and returned.
func (m *Manager) UpdateProfile(ctx context.Context, u domain.ProfileUpdate) (*domain.Profile, error) {
	if err := validator.Validate(u); err != nil {
		return nil, newError(ErrProfileUpdate, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.state.User == nil {
		m.mu.Unlock()
		return nil, newError(ErrNoUser, nil)
	}
	if m.state.Profile == nil {
		m.mu.Unlock()
		return nil, newError(ErrNoProfile, nil)
	}

	now := m.now().UTC()
	rec := pendingUpdate{previous: *m.state.Profile}
	rec.attempted = u.Apply(rec.previous, now)

	ticket := m.nextTicketLocked()
	attempted := rec.attempted
	m.state.Profile = &attempted
	m.profileWriter = ticket
	m.notifyLocked()
	userID := m.state.User.ID
	m.mu.Unlock()

	ctx, cancel := m.bind(ctx)
	defer cancel()

	stored, err := m.profiles.Update(ctx, userID, u, now)
	if err != nil {
		e := newError(ErrProfileUpdate, err)
		rolledBack := m.settle(ticket, false, profileWrite(func(st *State) {
			if st.User != nil && st.User.ID == userID {
				previous := rec.previous
				st.Profile = &previous
			}
			st.Err = e
		})) != 0
		profileUpdates.WithLabelValues(resolution(rolledBack, "rolled_back")).Inc()
		m.logger.WarnContext(ctx, "profile update failed",
			slog.String("user_id", userID),
			slog.Bool("rolled_back", rolledBack),
			slog.String("error", err.Error()),
		)
		return nil, e
	}

	committed := m.settle(ticket, false, profileWrite(func(st *State) {
		if st.User == nil || st.User.ID != userID {
			return
		}
		row := *stored
		st.Profile = &row
		st.Err = nil
	})) != 0
	profileUpdates.WithLabelValues(resolution(committed, "committed")).Inc()

	if committed {
		m.audit(ctx, "profile.updated", func(ctx context.Context, a Auditor) error {
			return a.PublishProfileUpdated(ctx, stored)
		})
	}
	return stored, nil
}

// pendingUpdate is the two-phase record of an optimistic profile edit.
type pendingUpdate struct {
	previous  domain.Profile
	attempted domain.Profile
}

func resolution(applied bool, result string) string {
	if applied {
		return result
	}
	return "stale"
}

// CreateProfile inserts the current user's profile and adopts it.
func (m *Manager) CreateProfile(ctx context.Context, n domain.NewProfile) (*domain.Profile, error) {
	if err := validator.Validate(n); err != nil {
		return nil, newError(ErrProfileCreate, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.state.User == nil {
		m.mu.Unlock()
		return nil, newError(ErrNoUser, nil)
	}
	userID := m.state.User.ID
	if m.state.Profile != nil {
		m.mu.Unlock()
		return nil, newError(ErrProfileCreate, apperrors.AlreadyExists("profile", "id", userID))
	}
	ticket := m.nextTicketLocked()
	m.mu.Unlock()

	ctx, cancel := m.bind(ctx)
	defer cancel()

	p, err := m.profiles.Create(ctx, n.ForUser(userID))
	if err != nil {
		e := newError(ErrProfileCreate, err)
		m.settle(ticket, false, profileWrite(func(st *State) {
			st.Err = e
		}))
		return nil, e
	}

	m.settle(ticket, false, profileWrite(func(st *State) {
		if st.User == nil || st.User.ID != userID {
			return
		}
		st.Profile = p
		st.Err = nil
	}))
	m.logger.InfoContext(ctx, "profile created",
		slog.String("user_id", userID),
		slog.String("role", string(p.Role)),
	)
	return p, nil
}

// SignIn authenticates with credentials. State follows from the SIGNED_IN
// event, not from this call.
func (m *Manager) SignIn(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	s, err := m.auth.SignInWithPassword(ctx, creds)
	if err != nil {
		e := newError(ErrSignIn, err)
		m.recordError(e)
		return nil, e
	}
	return s, nil
}

// SignUp registers a principal. The returned session is nil while
// confirmation is pending.
func (m *Manager) SignUp(ctx context.Context, req domain.SignUpRequest) (*domain.Session, error) {
	s, err := m.auth.SignUp(ctx, req)
	if err != nil {
		e := newError(ErrSignUp, err)
		m.recordError(e)
		return nil, e
	}
	return s, nil
}

// SignOut ends the session remotely. State moves to Anonymous when the
// SIGNED_OUT event arrives; on failure State is kept and the error
// recorded.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.auth.SignOut(ctx); err != nil {
		e := newError(ErrSignOut, err)
		m.recordError(e)
		return e
	}
	return nil
}

// UpdateUser replaces the signed-in principal's metadata. State follows
// from the USER_UPDATED event; on failure the error is recorded.
func (m *Manager) UpdateUser(ctx context.Context, data map[string]any) (*domain.User, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.state.User == nil {
		m.mu.Unlock()
		return nil, newError(ErrNoUser, nil)
	}
	m.mu.Unlock()

	u, err := m.auth.UpdateUser(ctx, data)
	if err != nil {
		e := newError(ErrUserUpdate, err)
		m.recordError(e)
		return nil, e
	}
	return u, nil
}

// HandleAuthEvent applies one auth state change. It never fails; errors are
// recorded in State. The manager is always initialized and not loading
// afterwards.
func (m *Manager) HandleAuthEvent(ctx context.Context, ev domain.AuthEvent) {
	authEvents.WithLabelValues(string(ev.Kind)).Inc()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ticket := m.nextTicketLocked()
	var prevUserID string
	if m.state.User != nil {
		prevUserID = m.state.User.ID
	}
	m.mu.Unlock()

	ctx, cancel := m.bind(ctx)
	defer cancel()

	if ev.Kind == domain.EventSignedOut || ev.Session == nil {
		m.settle(ticket, true, signedOut(nil)...)
		if ev.Kind == domain.EventSignedOut && prevUserID != "" {
			m.audit(ctx, "session.signed_out", func(ctx context.Context, a Auditor) error {
				return a.PublishSignedOut(ctx, prevUserID)
			})
		}
		m.logger.InfoContext(ctx, "auth event handled",
			slog.String("kind", string(ev.Kind)),
			slog.String("phase", string(PhaseAnonymous)),
		)
		return
	}

	s := *ev.Session
	if ev.Kind == domain.EventUserUpdated {
		m.settle(ticket, true, userWrite(func(st *State) {
			st.User, st.Session = &s.User, &s
		}))
		m.logger.InfoContext(ctx, "auth event handled",
			slog.String("kind", string(ev.Kind)),
			slog.String("user_id", s.User.ID),
		)
		return
	}

	p, err := m.fetchProfile(ctx, s.User.ID)
	var recorded error
	if err != nil {
		recorded = err
	}
	applied := m.settle(ticket, true, adopt(&s, p, recorded)...)

	if applied&fieldUser != 0 && ev.Kind == domain.EventSignedIn {
		m.audit(ctx, "session.signed_in", func(ctx context.Context, a Auditor) error {
			return a.PublishSignedIn(ctx, s.User)
		})
	}
	m.logger.InfoContext(ctx, "auth event handled",
		slog.String("kind", string(ev.Kind)),
		slog.String("user_id", s.User.ID),
		slog.Bool("has_profile", p != nil),
		slog.Bool("user_applied", applied&fieldUser != 0),
		slog.Bool("profile_applied", applied&fieldProfile != 0),
	)
}

// bind derives a context that also ends when the manager is closed.
func (m *Manager) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (m *Manager) nextTicketLocked() uint64 {
	m.seq++
	return m.seq
}

// write is one field group's part of a settlement.
type write struct {
	group int
	// foreign also lands a stale profile write while State's profile
	// belongs to someone other than State's user.
	foreign bool
	apply   func(*State)
}

func userWrite(fn func(*State)) write {
	return write{group: fieldUser, apply: fn}
}

func profileWrite(fn func(*State)) write {
	return write{group: fieldProfile, apply: fn}
}

// adopt makes s the current session with profile p, which must belong to
// s's user. err is recorded with the user group.
func adopt(s *domain.Session, p *domain.Profile, err error) []write {
	return []write{
		userWrite(func(st *State) {
			st.User, st.Session = &s.User, s
			st.Err = err
		}),
		{group: fieldProfile, foreign: true, apply: func(st *State) {
			st.Profile = p
		}},
	}
}

// signedOut clears the session and the profile and records err.
func signedOut(err error) []write {
	return []write{
		userWrite(func(st *State) {
			st.User, st.Session = nil, nil
			st.Err = err
		}),
		profileWrite(func(st *State) {
			st.Profile = nil
		}),
	}
}

// settle applies, in order, each write whose group no later operation has
// written, and then drops a profile that no longer matches the user. With
// final set, the manager is marked initialized and not loading even if
// every write is skipped. It returns the groups it wrote.
func (m *Manager) settle(ticket uint64, final bool, writes ...write) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}

	applied := 0
	for _, w := range writes {
		writer := m.writerLocked(w.group)
		if ticket < *writer && !(w.foreign && m.profileForeignLocked()) {
			continue
		}
		w.apply(&m.state)
		if ticket > *writer {
			*writer = ticket
		}
		applied |= w.group
	}
	if m.profileForeignLocked() {
		m.state.Profile = nil
		if ticket > m.profileWriter {
			m.profileWriter = ticket
		}
		applied |= fieldProfile
	}

	if final {
		m.state.Initialized = true
		m.state.Loading = false
	}
	if applied != 0 || final {
		m.notifyLocked()
	}
	return applied
}

func (m *Manager) writerLocked(group int) *uint64 {
	if group == fieldUser {
		return &m.userWriter
	}
	return &m.profileWriter
}

// profileForeignLocked reports whether State holds a profile without a
// matching user.
func (m *Manager) profileForeignLocked() bool {
	st := &m.state
	return st.Profile != nil && (st.User == nil || st.Profile.ID != st.User.ID)
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.state.Err = err
	m.notifyLocked()
}

// notifyLocked replaces the pending snapshot of every watcher.
func (m *Manager) notifyLocked() {
	recordPhase(m.state.Phase())
	if len(m.watchers) == 0 {
		return
	}
	snap := m.state.clone()
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (m *Manager) audit(ctx context.Context, what string, publish func(context.Context, Auditor) error) {
	if m.auditor == nil {
		return
	}
	if err := publish(ctx, m.auditor); err != nil {
		m.logger.WarnContext(ctx, "publish audit event failed",
			slog.String("event", what),
			slog.String("error", err.Error()),
		)
	}
}
