package roster

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisIndex stores each user's roster as a Redis set
// "<prefix>:roster:user:<userID>" of reservation ids.
type RedisIndex struct {
	rdb      redis.UniversalClient
	prefix   string
	fallback MembershipLister
}

// NewRedisIndex returns a roster backed by rdb.  An empty prefix defaults
// to "teetime".
func NewRedisIndex(rdb redis.UniversalClient, prefix string) *RedisIndex {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "teetime"
	}
	return &RedisIndex{rdb: rdb, prefix: prefix}
}

// WithFallback makes ReservationsFor repopulate an empty set from store,
// so a flushed Redis heals on first read.
func (r *RedisIndex) WithFallback(store MembershipLister) *RedisIndex {
	r.fallback = store
	return r
}

func (r *RedisIndex) key(userID string) string {
	return fmt.Sprintf("%s:roster:user:%s", r.prefix, userID)
}

// Add puts reservationID into userID's set.
func (r *RedisIndex) Add(ctx context.Context, userID, reservationID string) error {
	if err := r.rdb.SAdd(ctx, r.key(userID), reservationID).Err(); err != nil {
		return fmt.Errorf("roster.RedisIndex.Add: %w", err)
	}
	return nil
}

// Remove takes reservationID out of userID's set.
func (r *RedisIndex) Remove(ctx context.Context, userID, reservationID string) error {
	if err := r.rdb.SRem(ctx, r.key(userID), reservationID).Err(); err != nil {
		return fmt.Errorf("roster.RedisIndex.Remove: %w", err)
	}
	return nil
}

// ReservationsFor returns the members of userID's set, sorted.  An empty
// set is refilled from the fallback store when one is configured.
func (r *RedisIndex) ReservationsFor(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, r.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("roster.RedisIndex.ReservationsFor: %w", err)
	}
	if len(ids) == 0 && r.fallback != nil {
		ids, err = r.fallback.ListUserReservationIDs(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("roster.RedisIndex.ReservationsFor: fallback: %w", err)
		}
		if len(ids) > 0 {
			if err := r.Rebuild(ctx, userID, ids); err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Rebuild replaces userID's roster with ids.  It is used to repair the
// index from the membership table.
func (r *RedisIndex) Rebuild(ctx context.Context, userID string, ids []string) error {
	key := r.key(userID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(ids) > 0 {
			members := make([]any, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("roster.RedisIndex.Rebuild: %w", err)
	}
	return nil
}
