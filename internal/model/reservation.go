package model

import "time"

// Status is the derived lifecycle state of a Reservation.  It is never
// set directly by callers: DeriveStatus recomputes it from occupancy and
// capacity after every write, and only Cancel moves it to Cancelled.
type Status string

const (
	StatusOpen      Status = "open"      // occupancy < capacity
	StatusFull      Status = "full"      // occupancy == capacity
	StatusCancelled Status = "cancelled" // terminal
)

// Visibility controls whether joining is self-service.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted"
	VisibilityPrivate    Visibility = "private"
)

// Valid reports whether v is one of the known visibility values.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityRestricted, VisibilityPrivate:
		return true
	}
	return false
}

// MinCapacity is the smallest group a reservation can be created for.
const MinCapacity = 2

// Reservation is a capacity-bounded tee time shared by a group of players.
//
// Fields:
//  ID          – opaque identifier (UUID).
//  OwnerID     – creator; immutable after creation.
//  Capacity    – maximum number of confirmed seats (>= 2).
//  Occupancy   – number of confirmed memberships, owner included.
//  Status      – derived from Occupancy/Capacity unless cancelled.
//  Visibility  – public reservations auto-confirm joins while seats remain.
//  Version     – optimistic concurrency token, bumped on every committed write.
type Reservation struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Capacity    int        `json:"capacity"`
	Occupancy   int        `json:"occupancy"`
	Status      Status     `json:"status"`
	Visibility  Visibility `json:"visibility"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DeriveStatus returns the status implied by occupancy and capacity.
// A cancelled reservation stays cancelled.
func DeriveStatus(current Status, occupancy, capacity int) Status {
	if current == StatusCancelled {
		return StatusCancelled
	}
	if occupancy >= capacity {
		return StatusFull
	}
	return StatusOpen
}

// IsCancelled reports whether the reservation reached its terminal state.
func (r Reservation) IsCancelled() bool { return r.Status == StatusCancelled }

// HasSeat reports whether another confirmed member fits.
func (r Reservation) HasSeat() bool { return r.Occupancy < r.Capacity }
