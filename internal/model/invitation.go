package model

import "time"

// InvitationStatus follows pending -> accepted | declined; resolved
// invitations never change again.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation records that InviterID asked InviteeID to join a
// reservation.  It exists alongside the invitee's pending Membership and
// drives notification fan-out and expiry.
type Invitation struct {
	ID            string           `json:"id"`
	ReservationID string           `json:"reservation_id"`
	InviterID     string           `json:"inviter_id"`
	InviteeID     string           `json:"invitee_id"`
	Status        InvitationStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	ResolvedAt    *time.Time       `json:"resolved_at,omitempty"`
}

// Resolve moves a pending invitation to its terminal status.  Calls on an
// already resolved invitation are ignored.
func (i *Invitation) Resolve(status InvitationStatus, at time.Time) bool {
	if i.Status != InvitationPending {
		return false
	}
	i.Status = status
	t := at.UTC()
	i.ResolvedAt = &t
	return true
}
