package session

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Atulx21/SevaConnect/internal/domain"
)

// --- Mock Auth Service ---

type mockAuth struct {
	mock.Mock

	mu           sync.Mutex
	events       chan domain.AuthEvent
	unsubscribed int
}

func newMockAuth() *mockAuth {
	return &mockAuth{events: make(chan domain.AuthEvent, 16)}
}

func (m *mockAuth) GetSession(ctx context.Context) (*domain.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockAuth) SignInWithPassword(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockAuth) SignUp(ctx context.Context, req domain.SignUpRequest) (*domain.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockAuth) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockAuth) UpdateUser(ctx context.Context, data map[string]any) (*domain.User, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockAuth) Subscribe() (<-chan domain.AuthEvent, func()) {
	return m.events, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.unsubscribed++
	}
}

func (m *mockAuth) unsubscribeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribed
}

// --- Mock Profile Repository ---

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *mockProfiles) Update(ctx context.Context, id string, u domain.ProfileUpdate, at time.Time) (*domain.Profile, error) {
	args := m.Called(ctx, id, u, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *mockProfiles) Create(ctx context.Context, p domain.ProfileInsert) (*domain.Profile, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

// --- Mock Auditor ---

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) PublishSignedIn(ctx context.Context, user domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockAuditor) PublishSignedOut(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockAuditor) PublishProfileUpdated(ctx context.Context, p *domain.Profile) error {
	return m.Called(ctx, p).Error(0)
}
