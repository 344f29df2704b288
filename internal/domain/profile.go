package domain

import (
	"time"
)

// Role is the marketplace role of a profile.
type Role string

const (
	RoleWorker   Role = "worker"
	RoleProvider Role = "provider"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleWorker || r == RoleProvider
}

// ProfilesTable is the backend table holding profiles.
const ProfilesTable = "profiles"

// Profile is the application-level record of a principal, keyed by the
// principal's id. Rating and TotalRatings are maintained by the backend.
type Profile struct {
	ID           string    `json:"id" validate:"required"`
	FullName     string    `json:"full_name" validate:"max=120"`
	Phone        string    `json:"phone" validate:"max=20"`
	Village      string    `json:"village" validate:"max=120"`
	District     string    `json:"district,omitempty" validate:"max=120"`
	Role         Role      `json:"role" validate:"required,oneof=worker provider"`
	Rating       float64   `json:"rating" validate:"gte=0,lte=5"`
	TotalRatings int       `json:"total_ratings" validate:"gte=0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName implements Row.
func (Profile) TableName() string { return ProfilesTable }

// ProfileUpdate is a partial edit of the caller's own profile. Nil fields
// are left unchanged. The rating fields are not editable.
type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty" validate:"omitempty,min=2,max=120"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,mobile"`
	Village  *string `json:"village,omitempty" validate:"omitempty,min=2,max=120"`
	District *string `json:"district,omitempty" validate:"omitempty,max=120"`
	Role     *Role   `json:"role,omitempty" validate:"omitempty,oneof=worker provider"`
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Phone == nil && u.Village == nil && u.District == nil && u.Role == nil
}

// Apply merges u into p and stamps UpdatedAt with now. p is not modified.
func (u ProfileUpdate) Apply(p Profile, now time.Time) Profile {
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Village != nil {
		p.Village = *u.Village
	}
	if u.District != nil {
		p.District = *u.District
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	p.UpdatedAt = now
	return p
}

// NewProfile is the onboarding input for a principal that has no profile.
type NewProfile struct {
	FullName string `json:"full_name" validate:"required,min=2,max=120"`
	Phone    string `json:"phone" validate:"required,mobile"`
	Village  string `json:"village" validate:"required,min=2,max=120"`
	District string `json:"district,omitempty" validate:"omitempty,max=120"`
	Role     Role   `json:"role" validate:"required,oneof=worker provider"`
}

// ProfileInsert is the row written when onboarding userID.
type ProfileInsert struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Village  string `json:"village"`
	District string `json:"district,omitempty"`
	Role     Role   `json:"role"`
}

// ForUser builds the insert row for userID.
func (n NewProfile) ForUser(userID string) ProfileInsert {
	return ProfileInsert{
		ID:       userID,
		FullName: n.FullName,
		Phone:    n.Phone,
		Village:  n.Village,
		District: n.District,
		Role:     n.Role,
	}
}
