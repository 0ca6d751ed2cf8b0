package model

import "time"

// EventKind names a committed reservation change that is fanned out to
// notification consumers.
type EventKind string

const (
	EventReservationCreated EventKind = "reservation.created"
	EventJoinRequested      EventKind = "reservation.join_requested"
	EventRequestApproved    EventKind = "reservation.request_approved"
	EventPlayerRemoved      EventKind = "reservation.player_removed"
	EventCancelled          EventKind = "reservation.cancelled"
	EventInvitationSent     EventKind = "reservation.invitation_sent"
	EventInvitationAccepted EventKind = "reservation.invitation_accepted"
	EventInvitationDeclined EventKind = "reservation.invitation_declined"
	EventUpdated            EventKind = "reservation.updated"
)

// Event is emitted only after the change it describes has committed.  It
// carries enough of the reservation for consumers to render a message
// without reading the store.  Actor and Subject profiles are filled in on
// a best-effort basis and may be nil.
type Event struct {
	ID               string           `json:"id"`
	Kind             EventKind        `json:"kind"`
	ReservationID    string           `json:"reservation_id"`
	ActorID          string           `json:"actor_id"`
	SubjectID        string           `json:"subject_id,omitempty"`
	MembershipStatus MembershipStatus `json:"membership_status,omitempty"`
	InvitationID     string           `json:"invitation_id,omitempty"`
	Occupancy        int              `json:"occupancy"`
	Capacity         int              `json:"capacity"`
	Status           Status           `json:"status"`
	ScheduledAt      time.Time        `json:"scheduled_at"`
	Location         string           `json:"location"`
	OccurredAt       time.Time        `json:"occurred_at"`
	Actor            *ProfileSummary  `json:"actor,omitempty"`
	Subject          *ProfileSummary  `json:"subject,omitempty"`
}

// Recipients returns the distinct user ids an event concerns.
func (e Event) Recipients() []string {
	out := make([]string, 0, 2)
	if e.ActorID != "" {
		out = append(out, e.ActorID)
	}
	if e.SubjectID != "" && e.SubjectID != e.ActorID {
		out = append(out, e.SubjectID)
	}
	return out
}
