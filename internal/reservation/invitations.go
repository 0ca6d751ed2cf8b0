package reservation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// Accept lets an invitee confirm their invited membership.  It follows
// the same capacity rules as Approve.
func (c *Coordinator) Accept(ctx context.Context, id, userID string) (model.Reservation, error) {
	const op = "reservation.Coordinator.Accept"

	st, _, err := c.mutate(ctx, op, id, func(s *model.ReservationState) (outcome, error) {
		res := s.Reservation
		if res.IsCancelled() {
			return outcome{}, newError(KindInvalidState, op, "reservation is cancelled")
		}
		m, ok := s.Membership(userID)
		if ok && m.Status == model.MembershipConfirmed {
			return outcome{}, noChange()
		}
		if !res.HasSeat() {
			return outcome{}, newError(KindFull, op, "reservation is full")
		}
		if !ok || m.Status != model.MembershipPending || !m.Invited() {
			return outcome{}, newError(KindNotFound, op, "no pending invitation for this user")
		}

		m.Status = model.MembershipConfirmed
		s.PutMembership(m)
		var invitationID string
		if inv := s.PendingInvitation(userID); inv != nil {
			inv.Resolve(model.InvitationAccepted, c.opts.Now())
			invitationID = inv.ID
		}
		s.Recompute()
		return outcome{
			event:      model.EventInvitationAccepted,
			actorID:    userID,
			subjectID:  userID,
			membership: model.MembershipConfirmed,
			invitation: invitationID,
		}, nil
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return st.Reservation, nil
}

// Decline rejects a pending membership, either by the player themself or
// by the owner.  The membership is kept as declined so the player cannot
// re-request; occupancy is untouched.
func (c *Coordinator) Decline(ctx context.Context, id, userID, actorID string) (model.Reservation, error) {
	const op = "reservation.Coordinator.Decline"

	st, _, err := c.mutate(ctx, op, id, func(s *model.ReservationState) (outcome, error) {
		return c.decline(op, s, userID, actorID, "")
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return st.Reservation, nil
}

// decline is shared by Decline and invitation expiry.  When invitationID
// is set only that invitation may be resolved.
func (c *Coordinator) decline(op string, s *model.ReservationState, userID, actorID, invitationID string) (outcome, error) {
	res := s.Reservation
	if userID == res.OwnerID {
		return outcome{}, newError(KindPermissionDenied, op, "the owner cannot decline")
	}
	if actorID != SystemActor && actorID != res.OwnerID && actorID != userID {
		return outcome{}, newError(KindPermissionDenied, op, "only the owner or the player can decline")
	}
	if res.IsCancelled() {
		if actorID == SystemActor {
			return outcome{}, noChange()
		}
		return outcome{}, newError(KindInvalidState, op, "reservation is cancelled")
	}

	inv := s.PendingInvitation(userID)
	if invitationID != "" && (inv == nil || inv.ID != invitationID) {
		return outcome{}, noChange()
	}

	m, ok := s.Membership(userID)
	switch {
	case !ok && inv == nil:
		return outcome{}, newError(KindNotFound, op, "no pending request for this player")
	case ok && m.Status == model.MembershipDeclined && inv == nil:
		return outcome{}, noChange()
	case ok && m.Status == model.MembershipConfirmed:
		if actorID == SystemActor {
			return outcome{}, noChange()
		}
		return outcome{}, newError(KindInvalidState, op, "player is already confirmed")
	}

	if ok {
		m.Status = model.MembershipDeclined
		s.PutMembership(m)
	}
	var resolved string
	if inv != nil {
		inv.Resolve(model.InvitationDeclined, c.opts.Now())
		resolved = inv.ID
	}
	s.Recompute()
	return outcome{
		event:        model.EventInvitationDeclined,
		actorID:      actorID,
		subjectID:    userID,
		membership:   model.MembershipDeclined,
		invitation:   resolved,
		rosterRemove: []string{userID},
	}, nil
}

// ExpireInvitations declines every invitation still pending that was
// created before cutoff.  Each invitation is expired in its own
// transaction; failures are logged and the sweep continues.  It returns
// the number of invitations that were declined.
func (c *Coordinator) ExpireInvitations(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	const op = "reservation.Coordinator.ExpireInvitations"
	log := c.log.With(slog.String("op", op))

	if batch <= 0 {
		batch = 100
	}
	actx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	pending, err := c.store.ListPendingInvitations(actx, cutoff, batch)
	cancel()
	if err != nil {
		return 0, c.translate(op, err)
	}

	var (
		expired int
		errs    []error
	)
	for _, inv := range pending {
		if ctx.Err() != nil {
			errs = append(errs, c.translate(op, ctx.Err()))
			break
		}
		changed, err := c.expireInvitation(ctx, inv)
		if err != nil {
			log.Warn("failed to expire invitation",
				slog.String("invitation_id", inv.ID), slog.String("reservation_id", inv.ReservationID), sl.Err(err))
			errs = append(errs, err)
			continue
		}
		if changed {
			expired++
		}
	}
	if expired > 0 {
		log.Info("invitations expired", slog.Int("count", expired))
	}
	return expired, errors.Join(errs...)
}

func (c *Coordinator) expireInvitation(ctx context.Context, inv model.Invitation) (bool, error) {
	const op = "reservation.Coordinator.expireInvitation"
	_, changed, err := c.mutate(ctx, op, inv.ReservationID, func(s *model.ReservationState) (outcome, error) {
		return c.decline(op, s, inv.InviteeID, SystemActor, inv.ID)
	})
	return changed, err
}
