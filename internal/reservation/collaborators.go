package reservation

import (
	"context"
	"time"

	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// Store is the persistence contract the coordinator runs on.  AtomicUpdate
// must call fn with a private copy of the current state and commit the
// mutated copy only if no other write to the same reservation happened in
// between, returning repository.ErrConflict otherwise.  When fn returns an
// error the store writes nothing and returns that error.
type Store interface {
	Create(ctx context.Context, state model.ReservationState) (model.ReservationState, error)
	Get(ctx context.Context, id string) (model.Reservation, error)
	GetMembership(ctx context.Context, id, userID string) (model.Membership, error)
	ListMemberships(ctx context.Context, id string) ([]model.Membership, error)
	ListInvitations(ctx context.Context, id string) ([]model.Invitation, error)
	ListPendingInvitations(ctx context.Context, before time.Time, limit int) ([]model.Invitation, error)
	AtomicUpdate(ctx context.Context, id string, fn func(*model.ReservationState) error) (model.ReservationState, error)
}

// NotificationEmitter delivers committed events to users.
type NotificationEmitter interface {
	Notify(ctx context.Context, event model.Event) error
}

// CacheInvalidator drops read caches that may hold a reservation or a
// user's reservation list.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, reservationID string, userIDs []string) error
}

// UserProfileResolver enriches outgoing events.  It is never consulted
// inside a transaction.
type UserProfileResolver interface {
	Resolve(ctx context.Context, userID string) (model.ProfileSummary, error)
}

// RosterIndex answers "which reservations is this user part of" without
// scanning every reservation.
type RosterIndex interface {
	Add(ctx context.Context, userID, reservationID string) error
	Remove(ctx context.Context, userID, reservationID string) error
	ReservationsFor(ctx context.Context, userID string) ([]string, error)
}

// Collaborators groups the optional post-commit dependencies.  Nil
// fields are replaced by no-op implementations.
type Collaborators struct {
	Notifier NotificationEmitter
	Cache    CacheInvalidator
	Profiles UserProfileResolver
	Roster   RosterIndex
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Event) error { return nil }

type nopCache struct{}

func (nopCache) Invalidate(context.Context, string, []string) error { return nil }

type nopProfiles struct{}

func (nopProfiles) Resolve(_ context.Context, userID string) (model.ProfileSummary, error) {
	return model.ProfileSummary{UserID: userID, DisplayName: userID}, nil
}

type nopRoster struct{}

func (nopRoster) Add(context.Context, string, string) error    { return nil }
func (nopRoster) Remove(context.Context, string, string) error { return nil }
func (nopRoster) ReservationsFor(context.Context, string) ([]string, error) {
	return nil, nil
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Notifier == nil {
		c.Notifier = nopNotifier{}
	}
	if c.Cache == nil {
		c.Cache = nopCache{}
	}
	if c.Profiles == nil {
		c.Profiles = nopProfiles{}
	}
	if c.Roster == nil {
		c.Roster = nopRoster{}
	}
	return c
}
