package model

import "time"

// MembershipStatus is a player's standing within a reservation.
type MembershipStatus string

const (
	MembershipPending   MembershipStatus = "pending"
	MembershipConfirmed MembershipStatus = "confirmed"
	MembershipDeclined  MembershipStatus = "declined"
)

// Membership links one user to one reservation.  There is at most one
// membership per (reservation, user) pair and the owner's membership is
// always confirmed.
type Membership struct {
	ReservationID string           `json:"reservation_id"`
	UserID        string           `json:"user_id"`
	Status        MembershipStatus `json:"status"`
	JoinedAt      time.Time        `json:"joined_at"`
	InvitedBy     *string          `json:"invited_by,omitempty"`
}

// Invited reports whether the membership originated from an invitation.
func (m Membership) Invited() bool { return m.InvitedBy != nil && *m.InvitedBy != "" }
