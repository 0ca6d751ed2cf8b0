// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

import (
	"time"

	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// ReservationEvent is published after a reservation change commits.  It
// contains enough information for downstream consumers to log or notify
// players without querying the primary database.  Timestamps are RFC 3339
// strings in UTC.
type ReservationEvent struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	ReservationID    string `json:"reservation_id"`
	ActorID          string `json:"actor_id"`
	ActorName        string `json:"actor_name,omitempty"`
	SubjectID        string `json:"subject_id,omitempty"`
	SubjectName      string `json:"subject_name,omitempty"`
	MembershipStatus string `json:"membership_status,omitempty"`
	InvitationID     string `json:"invitation_id,omitempty"`
	Occupancy        int    `json:"occupancy"`
	Capacity         int    `json:"capacity"`
	Status           string `json:"status"`
	Location         string `json:"location"`
	ScheduledAt      string `json:"scheduled_at"`
	OccurredAt       string `json:"occurred_at"`
}

// FromModel flattens a committed model.Event into its wire form.
func FromModel(e model.Event) ReservationEvent {
	out := ReservationEvent{
		ID:               e.ID,
		Kind:             string(e.Kind),
		ReservationID:    e.ReservationID,
		ActorID:          e.ActorID,
		SubjectID:        e.SubjectID,
		MembershipStatus: string(e.MembershipStatus),
		InvitationID:     e.InvitationID,
		Occupancy:        e.Occupancy,
		Capacity:         e.Capacity,
		Status:           string(e.Status),
		Location:         e.Location,
		ScheduledAt:      e.ScheduledAt.UTC().Format(time.RFC3339),
		OccurredAt:       e.OccurredAt.UTC().Format(time.RFC3339),
	}
	if e.Actor != nil {
		out.ActorName = e.Actor.DisplayName
	}
	if e.Subject != nil {
		out.SubjectName = e.Subject.DisplayName
	}
	return out
}
