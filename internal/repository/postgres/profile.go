// Package postgres stores profiles directly in PostgreSQL for self-hosted
// deployments.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Atulx21/SevaConnect/internal/domain"
	apperrors "github.com/Atulx21/SevaConnect/pkg/errors"
	"github.com/Atulx21/SevaConnect/pkg/database"
	"github.com/Atulx21/SevaConnect/pkg/httpclient"
)

// DBTX is the subset of pgxpool.Pool the repository uses.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const profileColumns = `id, full_name, phone, village, district, role, rating, total_ratings, created_at, updated_at`

// ProfileRepository implements repository.ProfileRepository using PostgreSQL.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new PostgreSQL-backed profile repository.
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID retrieves a profile by its principal id.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (_ *domain.Profile, err error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetProfile", query)
	defer func() { end(err) }()

	return r.scanProfile(ctx, id, query, id)
}

// Update modifies the set fields of a profile and returns the stored row.
func (r *ProfileRepository) Update(ctx context.Context, id string, u domain.ProfileUpdate, at time.Time) (_ *domain.Profile, err error) {
	query := `
		UPDATE profiles
		SET full_name = COALESCE($1, full_name),
		    phone = COALESCE($2, phone),
		    village = COALESCE($3, village),
		    district = COALESCE($4, district),
		    role = COALESCE($5, role),
		    updated_at = $6
		WHERE id = $7
		RETURNING ` + profileColumns

	ctx, end := database.TraceQuery(ctx, "UpdateProfile", query)
	defer func() { end(err) }()

	var role *string
	if u.Role != nil {
		s := string(*u.Role)
		role = &s
	}

	return r.scanProfile(ctx, id, query,
		u.FullName,
		u.Phone,
		u.Village,
		u.District,
		role,
		at.UTC(),
		id,
	)
}

// Create inserts a profile and returns the stored row.
func (r *ProfileRepository) Create(ctx context.Context, in domain.ProfileInsert) (_ *domain.Profile, err error) {
	query := `
		INSERT INTO profiles (id, full_name, phone, village, district, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + profileColumns

	ctx, end := database.TraceQuery(ctx, "CreateProfile", query)
	defer func() { end(err) }()

	p, err := r.scanProfile(ctx, in.ID, query,
		in.ID,
		in.FullName,
		in.Phone,
		in.Village,
		in.District,
		string(in.Role),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("profile", "id", in.ID).WithRemoteCode(httpclient.CodeUniqueViolation)
		}
		return nil, err
	}
	return p, nil
}

// scanProfile executes a query expected to return a single profile row.
func (r *ProfileRepository) scanProfile(ctx context.Context, id, query string, args ...any) (*domain.Profile, error) {
	var (
		p    domain.Profile
		role string
	)

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&p.ID,
		&p.FullName,
		&p.Phone,
		&p.Village,
		&p.District,
		&role,
		&p.Rating,
		&p.TotalRatings,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("profile", id).WithRemoteCode(httpclient.CodeNoRows)
		}
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.Role = domain.Role(role)

	return &p, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == httpclient.CodeUniqueViolation
	}
	return false
}
