package reservation

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
	"github.com/iliyamo/tee-time-reservation/internal/model"
	"github.com/iliyamo/tee-time-reservation/internal/repository"
)

// View is a reservation together with its memberships.
type View struct {
	Reservation model.Reservation  `json:"reservation"`
	Memberships []model.Membership `json:"memberships"`
}

// Get returns the reservation and its memberships.
func (c *Coordinator) Get(ctx context.Context, id string) (View, error) {
	const op = "reservation.Coordinator.Get"
	ctx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	res, err := c.store.Get(ctx, id)
	if err != nil {
		return View{}, c.translate(op, err)
	}
	members, err := c.store.ListMemberships(ctx, id)
	if err != nil {
		return View{}, c.translate(op, err)
	}
	return View{Reservation: res, Memberships: members}, nil
}

// ListMemberships returns every membership of the reservation.
func (c *Coordinator) ListMemberships(ctx context.Context, id string) ([]model.Membership, error) {
	const op = "reservation.Coordinator.ListMemberships"
	ctx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	members, err := c.store.ListMemberships(ctx, id)
	if err != nil {
		return nil, c.translate(op, err)
	}
	return members, nil
}

// ListInvitations returns every invitation of the reservation, resolved
// ones included.
func (c *Coordinator) ListInvitations(ctx context.Context, id string) ([]model.Invitation, error) {
	const op = "reservation.Coordinator.ListInvitations"
	ctx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	invites, err := c.store.ListInvitations(ctx, id)
	if err != nil {
		return nil, c.translate(op, err)
	}
	return invites, nil
}

// ListForUser returns the reservations userID belongs to, soonest first.
// Ids the roster still lists for reservations that no longer exist are
// skipped.
func (c *Coordinator) ListForUser(ctx context.Context, userID string) ([]model.Reservation, error) {
	const op = "reservation.Coordinator.ListForUser"
	log := c.log.With(slog.String("op", op), slog.String("user_id", userID))

	ctx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	ids, err := c.collab.Roster.ReservationsFor(ctx, userID)
	if err != nil {
		log.Error("roster lookup failed", sl.Err(err))
		return nil, wrapError(KindUnavailable, op, "roster unavailable", err)
	}
	out := make([]model.Reservation, 0, len(ids))
	for _, id := range ids {
		res, err := c.store.Get(ctx, id)
		if err != nil {
			if isNotFound(err) {
				log.Debug("stale roster entry", slog.String("reservation_id", id))
				continue
			}
			return nil, c.translate(op, err)
		}
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, repository.ErrNotFound)
}
