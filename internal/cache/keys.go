// Package cache keeps the Redis generation counters that version every
// cached read.  Bumping a counter makes all response-cache entries built on
// the previous value unreachable; they then age out by TTL.
package cache

import "strings"

const defaultPrefix = "cache"

// Keys names the counters.  The HTTP response cache and the invalidator
// must agree on Prefix.
type Keys struct {
	Prefix string
}

func (k Keys) prefix() string {
	if p := strings.TrimSpace(k.Prefix); p != "" {
		return p
	}
	return defaultPrefix
}

// ReservationGen is the counter bumped on every committed change to a
// reservation.
func (k Keys) ReservationGen(reservationID string) string {
	return k.prefix() + ":gen:reservation:" + reservationID
}

// UserGen is the counter bumped whenever a reservation the user belongs to
// (or just left) changes.
func (k Keys) UserGen(userID string) string {
	return k.prefix() + ":gen:user:" + userID
}
