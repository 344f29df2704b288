package repository

import (
	"context"
	"time"

	"github.com/Atulx21/SevaConnect/internal/domain"
)

// ProfileRepository defines persistence for profile rows. Implementations
// report a missing row with an error matching apperrors.ErrNotFound and a
// duplicate primary key with one matching apperrors.ErrAlreadyExists.
type ProfileRepository interface {
	// GetByID returns the profile keyed by the principal's id.
	GetByID(ctx context.Context, id string) (*domain.Profile, error)

	// Update applies the set fields of u to the profile keyed by id, stamps
	// updated_at with at, and returns the row as stored.
	Update(ctx context.Context, id string, u domain.ProfileUpdate, at time.Time) (*domain.Profile, error)

	// Create inserts a profile and returns the row as stored.
	Create(ctx context.Context, p domain.ProfileInsert) (*domain.Profile, error)
}
