// Package model defines the core domain types for the event
// registration system.
package model

import "time"

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusWaitlist  Status = "waitlist"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known registration statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusWaitlist, StatusCancelled:
		return true
	}
	return false
}

// Event represents a discoverable event created by an organizer.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Capacity    int       `json:"capacity"`
	IsFeatured  bool      `json:"is_featured"`
	OrganizerID string    `json:"organizer_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Registration represents one user's registration for one event.
//
// IDs are assigned by the ledger and increase monotonically with
// insertion order; together with RegisteredAt they define the
// waitlist ordering, so neither field is ever mutated after insert.
type Registration struct {
	ID           int64     `json:"id"`
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	UserEmail    string    `json:"user_email"`
	UserName     string    `json:"user_name"`
	Status       Status    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Counts summarises the registration occupancy of an event.
type Counts struct {
	Confirmed int `json:"confirmed"`
	Waitlist  int `json:"waitlist"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Date        string `json:"date" validate:"required"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	Capacity    int    `json:"capacity" validate:"required,gt=0"`
	IsFeatured  bool   `json:"is_featured"`
	OrganizerID string `json:"organizer_id" validate:"required"`
}

// UpdateEventRequest is the payload for editing an event. Nil fields
// are left unchanged.
type UpdateEventRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
	StartTime   *string `json:"start_time,omitempty"`
	EndTime     *string `json:"end_time,omitempty"`
	Location    *string `json:"location,omitempty"`
	Category    *string `json:"category,omitempty"`
	Capacity    *int    `json:"capacity,omitempty" validate:"omitempty,gt=0"`
	IsFeatured  *bool   `json:"is_featured,omitempty"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	UserEmail string `json:"user_email" validate:"required,email"`
	UserName  string `json:"user_name" validate:"required"`
}

// UserRegistrationResponse pairs a registration with the user's
// current waitlist position (0 when not waitlisted).
type UserRegistrationResponse struct {
	Registration     *Registration `json:"registration"`
	WaitlistPosition int           `json:"waitlist_position,omitempty"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
