package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// MemoryStore keeps reservation state in process memory.  It follows the
// same optimistic contract as ReservationRepo: the transaction body runs
// on a private copy outside the lock and the write is rejected with
// ErrConflict when the version moved underneath it.  It backs the
// coordinator in tests and in single-node deployments without MySQL.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]model.ReservationState
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]model.ReservationState),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new reservation with its initial memberships.  The
// stored version starts at 1.
func (s *MemoryStore) Create(ctx context.Context, state model.ReservationState) (model.ReservationState, error) {
	if err := ctx.Err(); err != nil {
		return model.ReservationState{}, errors.Join(ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[state.Reservation.ID]; ok {
		return model.ReservationState{}, ErrConflict
	}
	out := state.Clone()
	out.Reservation.Version = 1
	s.items[out.Reservation.ID] = out.Clone()
	return out, nil
}

// Get returns the reservation without its memberships.
func (s *MemoryStore) Get(ctx context.Context, id string) (model.Reservation, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	return st.Reservation, nil
}

// GetMembership returns the membership of userID in reservation id.
func (s *MemoryStore) GetMembership(ctx context.Context, id, userID string) (model.Membership, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return model.Membership{}, err
	}
	m, ok := st.Membership(userID)
	if !ok {
		return model.Membership{}, ErrNotFound
	}
	return m, nil
}

// ListMemberships returns every membership of the reservation ordered by join time.
func (s *MemoryStore) ListMemberships(ctx context.Context, id string) ([]model.Membership, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	out := st.Memberships
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// ListInvitations returns every invitation of the reservation ordered by creation time.
func (s *MemoryStore) ListInvitations(ctx context.Context, id string) ([]model.Invitation, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	out := st.Invitations
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListPendingInvitations returns up to limit pending invitations created
// before the cutoff, oldest first.
func (s *MemoryStore) ListPendingInvitations(ctx context.Context, before time.Time, limit int) ([]model.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	s.mu.RLock()
	var out []model.Invitation
	for _, st := range s.items {
		for _, inv := range st.Invitations {
			if inv.Status == model.InvitationPending && inv.CreatedAt.Before(before) {
				out = append(out, inv)
			}
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListUserReservationIDs returns the ids of every reservation userID
// holds a pending or confirmed membership in.
func (s *MemoryStore) ListUserReservationIDs(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, st := range s.items {
		if m, ok := st.Membership(userID); ok && m.Status != model.MembershipDeclined {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// AtomicUpdate runs fn against a private copy of the reservation state
// and commits the result if no other writer got there first.  When fn
// returns an error nothing is written and the unchanged snapshot is
// returned alongside the error.
func (s *MemoryStore) AtomicUpdate(ctx context.Context, id string, fn func(*model.ReservationState) error) (model.ReservationState, error) {
	snapshot, err := s.load(ctx, id)
	if err != nil {
		return model.ReservationState{}, err
	}
	next := snapshot.Clone()
	if err := fn(&next); err != nil {
		return snapshot, err
	}
	if err := ctx.Err(); err != nil {
		return snapshot, errors.Join(ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[id]
	if !ok {
		return model.ReservationState{}, ErrNotFound
	}
	if cur.Reservation.Version != snapshot.Reservation.Version {
		return snapshot, ErrConflict
	}
	// identity fields are not writable from a transaction body
	next.Reservation.ID = cur.Reservation.ID
	next.Reservation.OwnerID = cur.Reservation.OwnerID
	next.Reservation.CreatedAt = cur.Reservation.CreatedAt
	next.Reservation.Version = cur.Reservation.Version + 1
	next.Reservation.UpdatedAt = s.now()
	s.items[id] = next.Clone()
	return next, nil
}

func (s *MemoryStore) load(ctx context.Context, id string) (model.ReservationState, error) {
	if err := ctx.Err(); err != nil {
		return model.ReservationState{}, errors.Join(ErrUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.items[id]
	if !ok {
		return model.ReservationState{}, ErrNotFound
	}
	return st.Clone(), nil
}
