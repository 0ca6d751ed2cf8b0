package reservation_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/tee-time-reservation/internal/model"
	"github.com/iliyamo/tee-time-reservation/internal/repository"
	"github.com/iliyamo/tee-time-reservation/internal/reservation"
)

type recorder struct {
	mu          sync.Mutex
	events      []model.Event
	invalidated map[string][]string
	roster      map[string]map[string]struct{}
	failNotify  bool
	failCache   bool
}

func newRecorder() *recorder {
	return &recorder{
		invalidated: make(map[string][]string),
		roster:      make(map[string]map[string]struct{}),
	}
}

func (r *recorder) Notify(_ context.Context, e model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if r.failNotify {
		return errors.New("broker down")
	}
	return nil
}

func (r *recorder) Invalidate(_ context.Context, id string, users []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated[id] = append(r.invalidated[id], users...)
	if r.failCache {
		return errors.New("redis down")
	}
	return nil
}

func (r *recorder) Resolve(_ context.Context, userID string) (model.ProfileSummary, error) {
	return model.ProfileSummary{UserID: userID, DisplayName: "Player " + userID}, nil
}

func (r *recorder) Add(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roster[userID] == nil {
		r.roster[userID] = make(map[string]struct{})
	}
	r.roster[userID][id] = struct{}{}
	return nil
}

func (r *recorder) Remove(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roster[userID], id)
	return nil
}

func (r *recorder) ReservationsFor(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.roster[userID]))
	for id := range r.roster[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *recorder) kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) lastEvent() model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// conflictStore loses every optimistic race.
type conflictStore struct {
	*repository.MemoryStore
	attempts atomic.Int32
}

func (s *conflictStore) AtomicUpdate(ctx context.Context, id string, fn func(*model.ReservationState) error) (model.ReservationState, error) {
	s.attempts.Add(1)
	st, err := s.MemoryStore.AtomicUpdate(ctx, id, func(st *model.ReservationState) error {
		if err := fn(st); err != nil {
			return err
		}
		return repository.ErrConflict
	})
	return st, err
}

// slowStore blocks every write until the attempt deadline passes.
type slowStore struct {
	*repository.MemoryStore
}

func (s *slowStore) AtomicUpdate(ctx context.Context, _ string, _ func(*model.ReservationState) error) (model.ReservationState, error) {
	<-ctx.Done()
	return model.ReservationState{}, errors.Join(repository.ErrUnavailable, ctx.Err())
}

var clockBase = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func testOptions() reservation.Options {
	var (
		mu  sync.Mutex
		n   int
		now = clockBase
	)
	return reservation.Options{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		AttemptTimeout: time.Second,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Second)
			return now
		},
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%03d", n)
		},
	}
}

func newCoordinator(t *testing.T, store reservation.Store) (*reservation.Coordinator, *recorder) {
	t.Helper()
	rec := newRecorder()
	c := reservation.New(slog.New(slog.DiscardHandler), store, reservation.Collaborators{
		Notifier: rec,
		Cache:    rec,
		Profiles: rec,
		Roster:   rec,
	}, testOptions())
	t.Cleanup(c.Wait)
	return c, rec
}

func createReservation(t *testing.T, c *reservation.Coordinator, owner string, capacity int, vis model.Visibility) model.Reservation {
	t.Helper()
	res, err := c.Create(context.Background(), owner, reservation.CreateSpec{
		Capacity:    capacity,
		ScheduledAt: clockBase.Add(72 * time.Hour),
		Location:    "Augusta National",
		Description: "Saturday foursome",
		Visibility:  vis,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res
}
