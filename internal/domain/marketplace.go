package domain

import "time"

// Row is a record type bound to one backend table.
//
// The marketplace rows in this file are not used by the session agent. They
// exist for the presentation shell, which reads and writes jobs,
// applications, equipment, bookings, ratings and skills through
// backend.FetchOne and backend.InsertOne.
type Row interface {
	TableName() string
}

// Job is a work posting created by a provider.
type Job struct {
	ID            string     `json:"id" validate:"required"`
	ProviderID    string     `json:"provider_id" validate:"required"`
	Title         string     `json:"title" validate:"required,max=200"`
	Description   string     `json:"description"`
	Village       string     `json:"village" validate:"required"`
	WagePerDay    float64    `json:"wage_per_day" validate:"gte=0"`
	WorkersNeeded int        `json:"workers_needed" validate:"gte=1"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	Status        string     `json:"status" validate:"required,oneof=open filled closed"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (Job) TableName() string { return "jobs" }

// Application is a worker's request to take a job.
type Application struct {
	ID        string    `json:"id" validate:"required"`
	JobID     string    `json:"job_id" validate:"required"`
	WorkerID  string    `json:"worker_id" validate:"required"`
	Status    string    `json:"status" validate:"required,oneof=pending accepted rejected withdrawn"`
	CreatedAt time.Time `json:"created_at"`
}

func (Application) TableName() string { return "applications" }

// Equipment is an agricultural machine or tool offered for rent.
type Equipment struct {
	ID         string    `json:"id" validate:"required"`
	OwnerID    string    `json:"owner_id" validate:"required"`
	Name       string    `json:"name" validate:"required,max=200"`
	Category   string    `json:"category"`
	RatePerDay float64   `json:"rate_per_day" validate:"gte=0"`
	Village    string    `json:"village"`
	Available  bool      `json:"available"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Equipment) TableName() string { return "equipment" }

// Booking reserves equipment for a date range.
type Booking struct {
	ID          string    `json:"id" validate:"required"`
	EquipmentID string    `json:"equipment_id" validate:"required"`
	RenterID    string    `json:"renter_id" validate:"required"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required,gtefield=StartDate"`
	TotalCost   float64   `json:"total_cost" validate:"gte=0"`
	Status      string    `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Booking) TableName() string { return "bookings" }

// Rating is one principal's score of another. The backend recomputes the
// ratee's profile aggregate on insert.
type Rating struct {
	ID        string    `json:"id" validate:"required"`
	RaterID   string    `json:"rater_id" validate:"required"`
	RateeID   string    `json:"ratee_id" validate:"required,nefield=RaterID"`
	JobID     *string   `json:"job_id,omitempty"`
	Score     int       `json:"score" validate:"gte=1,lte=5"`
	Comment   string    `json:"comment,omitempty" validate:"max=500"`
	CreatedAt time.Time `json:"created_at"`
}

func (Rating) TableName() string { return "ratings" }

// Skill is a capability listed on a worker's profile.
type Skill struct {
	ID              string `json:"id" validate:"required"`
	WorkerID        string `json:"worker_id" validate:"required"`
	Name            string `json:"name" validate:"required,max=80"`
	YearsExperience int    `json:"years_experience" validate:"gte=0,lte=80"`
}

func (Skill) TableName() string { return "skills" }
