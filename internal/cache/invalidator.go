package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Invalidator bumps generation counters after reservation commits.  It
// satisfies reservation.CacheInvalidator.
type Invalidator struct {
	log  *slog.Logger
	rdb  redis.UniversalClient
	keys Keys
}

// NewInvalidator returns an Invalidator writing counters under prefix.
func NewInvalidator(log *slog.Logger, rdb redis.UniversalClient, prefix string) *Invalidator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Invalidator{log: log, rdb: rdb, keys: Keys{Prefix: prefix}}
}

// Invalidate increments the reservation counter and one counter per user in
// a single round trip.
func (i *Invalidator) Invalidate(ctx context.Context, reservationID string, userIDs []string) error {
	const op = "cache.Invalidator.Invalidate"

	_, err := i.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, i.keys.ReservationGen(reservationID))
		for _, uid := range userIDs {
			p.Incr(ctx, i.keys.UserGen(uid))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	i.log.Debug("generations bumped",
		slog.String("op", op),
		slog.String("reservation_id", reservationID),
		slog.Int("users", len(userIDs)))
	return nil
}

// Generations reads the current counters for a reservation and a user.
// Either id may be empty, in which case its generation is reported as 0.
// Counters that were never bumped also read as 0.
func (i *Invalidator) Generations(ctx context.Context, reservationID, userID string) (resGen, userGen int64, err error) {
	return Generations(ctx, i.rdb, i.keys, reservationID, userID)
}

// Generations is the read half of the scheme, shared with the response
// cache middleware which holds only a client.
func Generations(ctx context.Context, rdb redis.UniversalClient, keys Keys, reservationID, userID string) (int64, int64, error) {
	const op = "cache.Generations"
	if reservationID == "" && userID == "" {
		return 0, 0, nil
	}
	vals, err := rdb.MGet(ctx, keys.ReservationGen(reservationID), keys.UserGen(userID)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	var gens [2]int64
	for n, v := range vals {
		if n > 1 {
			break
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		g, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%s: parse generation: %w", op, err)
		}
		gens[n] = g
	}
	if reservationID == "" {
		gens[0] = 0
	}
	if userID == "" {
		gens[1] = 0
	}
	return gens[0], gens[1], nil
}
