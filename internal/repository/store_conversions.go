package repository

import (
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// Timestamps are stored as UTC epoch milliseconds so the same schema
// works unchanged on MySQL and SQLite.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil || strings.TrimSpace(*s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// reservationRow mirrors the reservations table.  Optional columns are
// nullable so rows written by older schema versions still scan.
type reservationRow struct {
	ID          string
	OwnerID     string
	Capacity    int
	Occupancy   int
	Status      string
	Visibility  sql.NullString
	ScheduledAt int64
	Location    sql.NullString
	Description sql.NullString
	Version     int64
	CreatedAt   int64
	UpdatedAt   int64
}

func (r *reservationRow) scanArgs() []any {
	return []any{
		&r.ID, &r.OwnerID, &r.Capacity, &r.Occupancy, &r.Status, &r.Visibility,
		&r.ScheduledAt, &r.Location, &r.Description, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	}
}

// toModel converts a row to the domain type, filling defaults for absent
// optional fields.
func (r reservationRow) toModel() model.Reservation {
	vis := model.Visibility(strings.TrimSpace(r.Visibility.String))
	if !vis.Valid() {
		vis = model.VisibilityPublic
	}
	created := fromMillis(r.CreatedAt)
	updated := fromMillis(r.UpdatedAt)
	if updated.IsZero() {
		updated = created
	}
	return model.Reservation{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Capacity:    r.Capacity,
		Occupancy:   r.Occupancy,
		Status:      model.Status(r.Status),
		Visibility:  vis,
		ScheduledAt: fromMillis(r.ScheduledAt),
		Location:    r.Location.String,
		Description: r.Description.String,
		Version:     r.Version,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
}

// membershipRow mirrors the reservation_members table.
type membershipRow struct {
	ReservationID string
	UserID        string
	Status        string
	InvitedBy     sql.NullString
	JoinedAt      int64
}

func (m membershipRow) toModel() model.Membership {
	out := model.Membership{
		ReservationID: m.ReservationID,
		UserID:        m.UserID,
		Status:        model.MembershipStatus(m.Status),
		JoinedAt:      fromMillis(m.JoinedAt),
	}
	if m.InvitedBy.Valid && m.InvitedBy.String != "" {
		by := m.InvitedBy.String
		out.InvitedBy = &by
	}
	return out
}

// invitationRow mirrors the reservation_invitations table.
type invitationRow struct {
	ID            string
	ReservationID string
	InviterID     string
	InviteeID     string
	Status        string
	CreatedAt     int64
	ResolvedAt    sql.NullInt64
}

func (i invitationRow) toModel() model.Invitation {
	out := model.Invitation{
		ID:            i.ID,
		ReservationID: i.ReservationID,
		InviterID:     i.InviterID,
		InviteeID:     i.InviteeID,
		Status:        model.InvitationStatus(i.Status),
		CreatedAt:     fromMillis(i.CreatedAt),
	}
	if i.ResolvedAt.Valid {
		at := fromMillis(i.ResolvedAt.Int64)
		out.ResolvedAt = &at
	}
	return out
}

func sameMembership(a, b model.Membership) bool {
	if a.Status != b.Status || !a.JoinedAt.Equal(b.JoinedAt) {
		return false
	}
	return nullString(a.InvitedBy) == nullString(b.InvitedBy)
}

func sameInvitation(a, b model.Invitation) bool {
	return a.Status == b.Status && nullMillis(a.ResolvedAt) == nullMillis(b.ResolvedAt)
}
