package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// ReservationChannel is the pub/sub channel carrying live events of one
// reservation.
func ReservationChannel(reservationID string) string {
	return "reservation:" + reservationID
}

// UserChannel carries events that name the user as actor or subject.
func UserChannel(userID string) string {
	return "user:" + userID
}

// Broadcaster publishes events on Redis pub/sub for live subscribers.
// Delivery is fire-and-forget: nobody listening is not an error.
type Broadcaster struct {
	rdb redis.UniversalClient
}

func NewBroadcaster(rdb redis.UniversalClient) *Broadcaster {
	return &Broadcaster{rdb: rdb}
}

// Notify publishes e on the reservation channel and on the channel of
// every user it concerns.
func (b *Broadcaster) Notify(ctx context.Context, e model.Event) error {
	const op = "notify.Broadcaster.Notify"

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%s: marshal event: %w", op, err)
	}
	_, err = b.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, ReservationChannel(e.ReservationID), body)
		for _, uid := range e.Recipients() {
			p.Publish(ctx, UserChannel(uid), body)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
