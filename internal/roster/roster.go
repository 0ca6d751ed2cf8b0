// Package roster keeps the per-user list of reservations a user belongs
// to, so "my reservations" never scans the reservations table.
package roster

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is an in-process roster for tests and single-node setups.
type MemoryIndex struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{users: make(map[string]map[string]struct{})}
}

// Add records that userID belongs to reservationID.
func (m *MemoryIndex) Add(_ context.Context, userID, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.users[userID]
	if !ok {
		set = make(map[string]struct{})
		m.users[userID] = set
	}
	set[reservationID] = struct{}{}
	return nil
}

// Remove forgets the pair.  Unknown pairs are ignored.
func (m *MemoryIndex) Remove(_ context.Context, userID, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.users[userID]
	if !ok {
		return nil
	}
	delete(set, reservationID)
	if len(set) == 0 {
		delete(m.users, userID)
	}
	return nil
}

// ReservationsFor returns the reservation ids of userID, sorted.
func (m *MemoryIndex) ReservationsFor(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.users[userID]))
	for id := range m.users[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MembershipLister is the slice of the reservation store StoreIndex reads.
type MembershipLister interface {
	ListUserReservationIDs(ctx context.Context, userID string) ([]string, error)
}

// StoreIndex answers roster queries straight from the membership table.
// Add and Remove are no-ops because the table is already the source of
// truth; it is the fallback when Redis is not configured.
type StoreIndex struct {
	store MembershipLister
}

// NewStoreIndex wraps store.
func NewStoreIndex(store MembershipLister) *StoreIndex { return &StoreIndex{store: store} }

func (s *StoreIndex) Add(context.Context, string, string) error    { return nil }
func (s *StoreIndex) Remove(context.Context, string, string) error { return nil }

// ReservationsFor lists the reservations userID holds a pending or
// confirmed membership in.
func (s *StoreIndex) ReservationsFor(ctx context.Context, userID string) ([]string, error) {
	return s.store.ListUserReservationIDs(ctx, userID)
}
