package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tee-time-reservation/internal/database"
	"github.com/iliyamo/tee-time-reservation/internal/model"
	"github.com/iliyamo/tee-time-reservation/internal/repository"
)

type store interface {
	Create(ctx context.Context, state model.ReservationState) (model.ReservationState, error)
	Get(ctx context.Context, id string) (model.Reservation, error)
	GetMembership(ctx context.Context, id, userID string) (model.Membership, error)
	ListMemberships(ctx context.Context, id string) ([]model.Membership, error)
	ListInvitations(ctx context.Context, id string) ([]model.Invitation, error)
	ListPendingInvitations(ctx context.Context, before time.Time, limit int) ([]model.Invitation, error)
	ListUserReservationIDs(ctx context.Context, userID string) ([]string, error)
	AtomicUpdate(ctx context.Context, id string, fn func(*model.ReservationState) error) (model.ReservationState, error)
}

var (
	_ store = (*repository.MemoryStore)(nil)
	_ store = (*repository.ReservationRepo)(nil)
)

var base = time.UnixMilli(1_760_000_000_000).UTC()

func openSQLite(t *testing.T) *repository.ReservationRepo {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:repo_%d?mode=memory&cache=shared", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return repository.NewReservationRepo(db)
}

func forEachStore(t *testing.T, fn func(t *testing.T, s store)) {
	t.Run("memory", func(t *testing.T) { fn(t, repository.NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, openSQLite(t)) })
}

func newState(id, owner string) model.ReservationState {
	return model.ReservationState{
		Reservation: model.Reservation{
			ID:          id,
			OwnerID:     owner,
			Capacity:    4,
			Occupancy:   1,
			Status:      model.StatusOpen,
			Visibility:  model.VisibilityPublic,
			ScheduledAt: base.Add(48 * time.Hour),
			Location:    "Pebble Beach, hole 1",
			Description: "morning round",
			CreatedAt:   base,
			UpdatedAt:   base,
		},
		Memberships: []model.Membership{{
			ReservationID: id,
			UserID:        owner,
			Status:        model.MembershipConfirmed,
			JoinedAt:      base,
		}},
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		created, err := s.Create(ctx, newState("r1", "owner"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), created.Reservation.Version)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "owner", got.OwnerID)
		assert.Equal(t, 4, got.Capacity)
		assert.Equal(t, 1, got.Occupancy)
		assert.Equal(t, model.StatusOpen, got.Status)
		assert.Equal(t, model.VisibilityPublic, got.Visibility)
		assert.True(t, base.Add(48*time.Hour).Equal(got.ScheduledAt))
		assert.Equal(t, "Pebble Beach, hole 1", got.Location)

		m, err := s.GetMembership(ctx, "r1", "owner")
		require.NoError(t, err)
		assert.Equal(t, model.MembershipConfirmed, m.Status)

		_, err = s.Create(ctx, newState("r1", "other"))
		assert.ErrorIs(t, err, repository.ErrConflict)
	})
}

func TestStoreNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		_, err = s.ListMemberships(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		_, err = s.AtomicUpdate(ctx, "missing", func(*model.ReservationState) error { return nil })
		assert.ErrorIs(t, err, repository.ErrNotFound)

		_, err = s.Create(ctx, newState("r1", "owner"))
		require.NoError(t, err)
		_, err = s.GetMembership(ctx, "r1", "nobody")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestStoreAtomicUpdateWritesDiff(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		_, err := s.Create(ctx, newState("r1", "owner"))
		require.NoError(t, err)

		inviter := "owner"
		next, err := s.AtomicUpdate(ctx, "r1", func(st *model.ReservationState) error {
			st.PutMembership(model.Membership{ReservationID: "r1", UserID: "alice", Status: model.MembershipConfirmed, JoinedAt: base.Add(time.Minute)})
			st.PutMembership(model.Membership{ReservationID: "r1", UserID: "bob", Status: model.MembershipPending, JoinedAt: base.Add(2 * time.Minute), InvitedBy: &inviter})
			st.Invitations = append(st.Invitations, model.Invitation{
				ID: "inv-1", ReservationID: "r1", InviterID: "owner", InviteeID: "bob",
				Status: model.InvitationPending, CreatedAt: base.Add(2 * time.Minute),
			})
			st.Recompute()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), next.Reservation.Version)
		assert.Equal(t, 2, next.Reservation.Occupancy)

		members, err := s.ListMemberships(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, members, 3)
		assert.Equal(t, []string{"owner", "alice", "bob"}, []string{members[0].UserID, members[1].UserID, members[2].UserID})
		require.NotNil(t, members[2].InvitedBy)
		assert.Equal(t, "owner", *members[2].InvitedBy)

		ids, err := s.ListUserReservationIDs(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, []string{"r1"}, ids)

		_, err = s.AtomicUpdate(ctx, "r1", func(st *model.ReservationState) error {
			st.DeleteMembership("alice")
			st.PendingInvitation("bob").Resolve(model.InvitationDeclined, base.Add(time.Hour))
			m, _ := st.Membership("bob")
			m.Status = model.MembershipDeclined
			st.PutMembership(m)
			st.Recompute()
			return nil
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Occupancy)
		assert.Equal(t, int64(3), got.Version)

		_, err = s.GetMembership(ctx, "r1", "alice")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		bob, err := s.GetMembership(ctx, "r1", "bob")
		require.NoError(t, err)
		assert.Equal(t, model.MembershipDeclined, bob.Status)

		invites, err := s.ListInvitations(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, invites, 1)
		assert.Equal(t, model.InvitationDeclined, invites[0].Status)
		require.NotNil(t, invites[0].ResolvedAt)
		assert.True(t, base.Add(time.Hour).Equal(*invites[0].ResolvedAt))

		ids, err = s.ListUserReservationIDs(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, ids, "declined memberships are not on the roster")
	})
}

func TestStoreAtomicUpdateBodyErrorWritesNothing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		_, err := s.Create(ctx, newState("r1", "owner"))
		require.NoError(t, err)

		boom := errors.New("boom")
		snap, err := s.AtomicUpdate(ctx, "r1", func(st *model.ReservationState) error {
			st.Reservation.Capacity = 10
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 4, snap.Reservation.Capacity)

		_, err = s.AtomicUpdate(ctx, "r1", func(*model.ReservationState) error { return repository.ErrNoChange })
		assert.ErrorIs(t, err, repository.ErrNoChange)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 4, got.Capacity)
		assert.Equal(t, int64(1), got.Version)
	})
}

func TestStoreAtomicUpdateKeepsIdentity(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		_, err := s.Create(ctx, newState("r1", "owner"))
		require.NoError(t, err)

		next, err := s.AtomicUpdate(ctx, "r1", func(st *model.ReservationState) error {
			st.Reservation.OwnerID = "mallory"
			st.Reservation.Description = "changed"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "owner", next.Reservation.OwnerID)
		assert.Equal(t, "changed", next.Reservation.Description)
	})
}

func TestStoreConflictOnStaleVersion(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		_, err := s.Create(ctx, newState("r1", "owner"))
		require.NoError(t, err)

		// The memory store runs the body outside its lock, so a write made
		// from inside the body lands first and the outer one must lose.
		mem, ok := s.(*repository.MemoryStore)
		if !ok {
			t.Skip("sqlite serialises writers on a single connection")
		}
		_, err = mem.AtomicUpdate(ctx, "r1", func(st *model.ReservationState) error {
			_, innerErr := mem.AtomicUpdate(ctx, "r1", func(inner *model.ReservationState) error {
				inner.Reservation.Description = "inner"
				return nil
			})
			require.NoError(t, innerErr)
			st.Reservation.Description = "outer"
			return nil
		})
		assert.ErrorIs(t, err, repository.ErrConflict)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "inner", got.Description)
	})
}

func TestStoreConcurrentIncrementsNeverLoseWrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		st := newState("r1", "owner")
		st.Reservation.Capacity = 100
		_, err := s.Create(ctx, st)
		require.NoError(t, err)

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for attempt := 0; attempt < 50; attempt++ {
					_, err := s.AtomicUpdate(ctx, "r1", func(st *model.ReservationState) error {
						st.PutMembership(model.Membership{
							ReservationID: "r1", UserID: fmt.Sprintf("u%d", i),
							Status: model.MembershipConfirmed, JoinedAt: base.Add(time.Duration(i) * time.Second),
						})
						st.Recompute()
						return nil
					})
					if err == nil {
						mu.Lock()
						committed++
						mu.Unlock()
						return
					}
					if !errors.Is(err, repository.ErrConflict) {
						t.Errorf("unexpected error: %v", err)
						return
					}
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, workers, committed)
		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, workers+1, got.Occupancy)
		assert.Equal(t, int64(workers+1), got.Version)
	})
}

func TestStoreListPendingInvitations(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		_, err := s.Create(ctx, newState("r1", "owner"))
		require.NoError(t, err)
		_, err = s.AtomicUpdate(ctx, "r1", func(st *model.ReservationState) error {
			for i, invitee := range []string{"a", "b", "c"} {
				st.Invitations = append(st.Invitations, model.Invitation{
					ID: "inv-" + invitee, ReservationID: "r1", InviterID: "owner", InviteeID: invitee,
					Status: model.InvitationPending, CreatedAt: base.Add(time.Duration(i) * time.Hour),
				})
			}
			return nil
		})
		require.NoError(t, err)

		got, err := s.ListPendingInvitations(ctx, base.Add(90*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "inv-a", got[0].ID)
		assert.Equal(t, "inv-b", got[1].ID)

		got, err = s.ListPendingInvitations(ctx, base.Add(24*time.Hour), 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "inv-a", got[0].ID)
	})
}
