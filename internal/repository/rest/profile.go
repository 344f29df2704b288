// Package rest stores profiles through the backend's data API.
package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/Atulx21/SevaConnect/internal/backend"
	"github.com/Atulx21/SevaConnect/internal/domain"
)

// ProfileRepository implements repository.ProfileRepository over the data
// API. Row-level authorization on the server limits updates to the
// caller's own row.
type ProfileRepository struct {
	data *backend.DataClient
}

// NewProfileRepository creates a ProfileRepository.
func NewProfileRepository(data *backend.DataClient) *ProfileRepository {
	return &ProfileRepository{data: data}
}

// profilePatch is the wire body of a profile update.
type profilePatch struct {
	domain.ProfileUpdate
	UpdatedAt time.Time `json:"updated_at"`
}

// GetByID fetches the profile row for id.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := backend.FetchOne[domain.Profile](ctx, r.data, id)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Update patches the profile row for id.
func (r *ProfileRepository) Update(ctx context.Context, id string, u domain.ProfileUpdate, at time.Time) (*domain.Profile, error) {
	p, err := backend.UpdateOne[domain.Profile](ctx, r.data, id, profilePatch{ProfileUpdate: u, UpdatedAt: at.UTC()})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// Create inserts a profile row.
func (r *ProfileRepository) Create(ctx context.Context, in domain.ProfileInsert) (*domain.Profile, error) {
	p, err := backend.InsertOne[domain.Profile](ctx, r.data, in)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}
