package reservation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// CreateSpec holds the caller-supplied fields of a new reservation.
type CreateSpec struct {
	Capacity    int
	ScheduledAt time.Time
	Location    string
	Description string
	Visibility  model.Visibility // defaults to public
}

// Patch lists the owner-editable fields; nil means unchanged.
type Patch struct {
	Capacity    *int
	ScheduledAt *time.Time
	Location    *string
	Description *string
	Visibility  *model.Visibility
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Capacity == nil && p.ScheduledAt == nil && p.Location == nil &&
		p.Description == nil && p.Visibility == nil
}

// Create writes a new open reservation with the owner as its only
// confirmed member.
func (c *Coordinator) Create(ctx context.Context, ownerID string, spec CreateSpec) (model.Reservation, error) {
	const op = "reservation.Coordinator.Create"
	log := c.log.With(slog.String("op", op), slog.String("owner_id", ownerID))

	ownerID = strings.TrimSpace(ownerID)
	spec.Location = strings.TrimSpace(spec.Location)
	switch {
	case ownerID == "":
		return model.Reservation{}, newError(KindInvalidArgument, op, "owner id is required")
	case spec.Capacity < model.MinCapacity:
		return model.Reservation{}, newError(KindInvalidArgument, op, "capacity must be at least 2")
	case spec.ScheduledAt.IsZero():
		return model.Reservation{}, newError(KindInvalidArgument, op, "scheduled time is required")
	case spec.Location == "":
		return model.Reservation{}, newError(KindInvalidArgument, op, "location is required")
	}
	if spec.Visibility == "" {
		spec.Visibility = model.VisibilityPublic
	}
	if !spec.Visibility.Valid() {
		return model.Reservation{}, newError(KindInvalidArgument, op, "unknown visibility")
	}

	now := c.opts.Now()
	id := c.opts.NewID()
	state := model.ReservationState{
		Reservation: model.Reservation{
			ID:          id,
			OwnerID:     ownerID,
			Capacity:    spec.Capacity,
			Visibility:  spec.Visibility,
			ScheduledAt: spec.ScheduledAt.UTC(),
			Location:    spec.Location,
			Description: strings.TrimSpace(spec.Description),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		Memberships: []model.Membership{{
			ReservationID: id,
			UserID:        ownerID,
			Status:        model.MembershipConfirmed,
			JoinedAt:      now,
		}},
	}
	state.Recompute()

	actx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()
	created, err := c.store.Create(actx, state)
	if err != nil {
		log.Error("failed to create reservation", sl.Err(err))
		return model.Reservation{}, c.translate(op, err)
	}

	log.Info("reservation created", slog.String("reservation_id", id), slog.Int("capacity", spec.Capacity))
	c.dispatch(created, outcome{
		event:      model.EventReservationCreated,
		actorID:    ownerID,
		membership: model.MembershipConfirmed,
		rosterAdd:  []string{ownerID},
	})
	return created.Reservation, nil
}

// RequestToJoin adds userID to the reservation.  On a public reservation
// with a free seat the membership is confirmed immediately; otherwise it
// waits for the owner as pending.
func (c *Coordinator) RequestToJoin(ctx context.Context, id, userID string) (model.Reservation, error) {
	const op = "reservation.Coordinator.RequestToJoin"
	if strings.TrimSpace(userID) == "" {
		return model.Reservation{}, newError(KindInvalidArgument, op, "user id is required")
	}

	st, _, err := c.mutate(ctx, op, id, func(s *model.ReservationState) (outcome, error) {
		res := s.Reservation
		if res.IsCancelled() {
			return outcome{}, newError(KindInvalidState, op, "reservation is cancelled")
		}
		if res.Status == model.StatusFull || !res.HasSeat() {
			return outcome{}, newError(KindFull, op, "reservation is full")
		}
		if _, ok := s.Membership(userID); ok {
			return outcome{}, newError(KindAlreadyMember, op, "user already belongs to the reservation")
		}

		status := model.MembershipPending
		if res.Visibility == model.VisibilityPublic {
			status = model.MembershipConfirmed
		}
		s.PutMembership(model.Membership{
			ReservationID: res.ID,
			UserID:        userID,
			Status:        status,
			JoinedAt:      c.opts.Now(),
		})
		s.Recompute()
		return outcome{
			event:      model.EventJoinRequested,
			actorID:    userID,
			subjectID:  userID,
			membership: status,
			rosterAdd:  []string{userID},
		}, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return st.Reservation, nil
}

// Approve confirms a pending member.  Approving an already confirmed
// member is a no-op.
func (c *Coordinator) Approve(ctx context.Context, id, playerID, approverID string) (model.Reservation, error) {
	const op = "reservation.Coordinator.Approve"

	st, _, err := c.mutate(ctx, op, id, func(s *model.ReservationState) (outcome, error) {
		res := s.Reservation
		if approverID != res.OwnerID {
			return outcome{}, newError(KindPermissionDenied, op, "only the owner can approve players")
		}
		if res.IsCancelled() {
			return outcome{}, newError(KindInvalidState, op, "reservation is cancelled")
		}
		m, ok := s.Membership(playerID)
		if ok && m.Status == model.MembershipConfirmed {
			return outcome{}, noChange()
		}
		if !res.HasSeat() {
			return outcome{}, newError(KindFull, op, "reservation is full")
		}
		if !ok || m.Status != model.MembershipPending {
			return outcome{}, newError(KindNotFound, op, "no pending request for this player")
		}

		now := c.opts.Now()
		m.Status = model.MembershipConfirmed
		s.PutMembership(m)
		var invitationID string
		if inv := s.PendingInvitation(playerID); inv != nil {
			inv.Resolve(model.InvitationAccepted, now)
			invitationID = inv.ID
		}
		s.Recompute()
		return outcome{
			event:      model.EventRequestApproved,
			actorID:    approverID,
			subjectID:  playerID,
			membership: model.MembershipConfirmed,
			invitation: invitationID,
		}, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return st.Reservation, nil
}

// Remove deletes playerID's membership.  The owner may remove anyone but
// themself; any other player may only remove themself.  Removing an
// absent player is a no-op.
func (c *Coordinator) Remove(ctx context.Context, id, playerID, actorID string) (model.Reservation, error) {
	const op = "reservation.Coordinator.Remove"

	st, _, err := c.mutate(ctx, op, id, func(s *model.ReservationState) (outcome, error) {
		res := s.Reservation
		if playerID == res.OwnerID {
			return outcome{}, newError(KindPermissionDenied, op, "the owner cannot be removed")
		}
		if actorID != res.OwnerID && actorID != playerID {
			return outcome{}, newError(KindPermissionDenied, op, "only the owner or the player can remove a player")
		}
		if res.IsCancelled() {
			return outcome{}, newError(KindInvalidState, op, "reservation is cancelled")
		}
		m, ok := s.DeleteMembership(playerID)
		if !ok {
			return outcome{}, noChange()
		}
		if inv := s.PendingInvitation(playerID); inv != nil {
			inv.Resolve(model.InvitationDeclined, c.opts.Now())
		}
		s.Recompute()
		return outcome{
			event:        model.EventPlayerRemoved,
			actorID:      actorID,
			subjectID:    playerID,
			membership:   m.Status,
			rosterRemove: []string{playerID},
		}, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return st.Reservation, nil
}

// Cancel moves the reservation to its terminal state.  Memberships and
// occupancy are kept for history; pending invitations are declined.
func (c *Coordinator) Cancel(ctx context.Context, id, actorID string) (model.Reservation, error) {
	const op = "reservation.Coordinator.Cancel"

	st, changed, err := c.mutate(ctx, op, id, func(s *model.ReservationState) (outcome, error) {
		if actorID != s.Reservation.OwnerID {
			return outcome{}, newError(KindPermissionDenied, op, "only the owner can cancel")
		}
		if s.Reservation.IsCancelled() {
			return outcome{}, noChange()
		}
		now := c.opts.Now()
		s.Reservation.Status = model.StatusCancelled
		for i := range s.Invitations {
			s.Invitations[i].Resolve(model.InvitationDeclined, now)
		}
		return outcome{event: model.EventCancelled, actorID: actorID}, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	if changed {
		c.log.Info("reservation cancelled", slog.String("op", op), slog.String("reservation_id", id))
	}
	return st.Reservation, nil
}

// Invite creates a pending membership for inviteeID tagged with the
// inviter, plus an Invitation record.  The invitee resolves it with
// Accept or Decline, or the owner with Approve.
func (c *Coordinator) Invite(ctx context.Context, id, inviteeID, inviterID string) (model.Reservation, error) {
	const op = "reservation.Coordinator.Invite"
	inviteeID = strings.TrimSpace(inviteeID)
	if inviteeID == "" {
		return model.Reservation{}, newError(KindInvalidArgument, op, "invitee id is required")
	}

	st, _, err := c.mutate(ctx, op, id, func(s *model.ReservationState) (outcome, error) {
		res := s.Reservation
		if inviterID != res.OwnerID {
			return outcome{}, newError(KindPermissionDenied, op, "only the owner can invite players")
		}
		if res.IsCancelled() {
			return outcome{}, newError(KindInvalidState, op, "reservation is cancelled")
		}
		if res.Status == model.StatusFull {
			return outcome{}, newError(KindFull, op, "reservation is full")
		}
		if _, ok := s.Membership(inviteeID); ok {
			return outcome{}, newError(KindAlreadyMember, op, "user already belongs to the reservation")
		}

		now := c.opts.Now()
		inviter := inviterID
		s.PutMembership(model.Membership{
			ReservationID: res.ID,
			UserID:        inviteeID,
			Status:        model.MembershipPending,
			JoinedAt:      now,
			InvitedBy:     &inviter,
		})
		inv := model.Invitation{
			ID:            c.opts.NewID(),
			ReservationID: res.ID,
			InviterID:     inviterID,
			InviteeID:     inviteeID,
			Status:        model.InvitationPending,
			CreatedAt:     now,
		}
		s.Invitations = append(s.Invitations, inv)
		return outcome{
			event:      model.EventInvitationSent,
			actorID:    inviterID,
			subjectID:  inviteeID,
			membership: model.MembershipPending,
			invitation: inv.ID,
			rosterAdd:  []string{inviteeID},
		}, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return st.Reservation, nil
}

// Update applies an owner's edit.  Capacity may not drop below the
// current occupancy; status is recomputed against the new capacity.
func (c *Coordinator) Update(ctx context.Context, id, actorID string, patch Patch) (model.Reservation, error) {
	const op = "reservation.Coordinator.Update"
	if err := validatePatch(op, patch); err != nil {
		return model.Reservation{}, err
	}

	st, _, err := c.mutate(ctx, op, id, func(s *model.ReservationState) (outcome, error) {
		res := s.Reservation
		if actorID != res.OwnerID {
			return outcome{}, newError(KindPermissionDenied, op, "only the owner can edit the reservation")
		}
		if res.IsCancelled() {
			return outcome{}, newError(KindInvalidState, op, "reservation is cancelled")
		}
		if patch.Capacity != nil && *patch.Capacity < res.Occupancy {
			return outcome{}, newError(KindInvalidArgument, op, "cannot shrink below current membership")
		}

		next := res
		if patch.Capacity != nil {
			next.Capacity = *patch.Capacity
		}
		if patch.ScheduledAt != nil {
			next.ScheduledAt = patch.ScheduledAt.UTC()
		}
		if patch.Location != nil {
			next.Location = strings.TrimSpace(*patch.Location)
		}
		if patch.Description != nil {
			next.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Visibility != nil {
			next.Visibility = *patch.Visibility
		}
		if sameEditable(res, next) {
			return outcome{}, noChange()
		}
		s.Reservation = next
		s.Recompute()
		return outcome{event: model.EventUpdated, actorID: actorID}, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return st.Reservation, nil
}

func validatePatch(op string, p Patch) error {
	if p.Capacity != nil && *p.Capacity < model.MinCapacity {
		return newError(KindInvalidArgument, op, "capacity must be at least 2")
	}
	if p.ScheduledAt != nil && p.ScheduledAt.IsZero() {
		return newError(KindInvalidArgument, op, "scheduled time is required")
	}
	if p.Location != nil && strings.TrimSpace(*p.Location) == "" {
		return newError(KindInvalidArgument, op, "location is required")
	}
	if p.Visibility != nil && !p.Visibility.Valid() {
		return newError(KindInvalidArgument, op, "unknown visibility")
	}
	return nil
}

func sameEditable(a, b model.Reservation) bool {
	return a.Capacity == b.Capacity && a.ScheduledAt.Equal(b.ScheduledAt) &&
		a.Location == b.Location && a.Description == b.Description && a.Visibility == b.Visibility
}
