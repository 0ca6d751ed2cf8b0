// Package scheduler runs periodic maintenance jobs on a gocron scheduler.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
)

// InvitationExpirer declines pending invitations created before cutoff and
// reports how many it resolved.
type InvitationExpirer interface {
	ExpireInvitations(ctx context.Context, cutoff time.Time, batch int) (int, error)
}

// Sweeper expires invitations that stayed unanswered for longer than TTL.
type Sweeper struct {
	log     *slog.Logger
	expirer InvitationExpirer
	ttl     time.Duration
	batch   int
	timeout time.Duration
	now     func() time.Time
}

func NewSweeper(log *slog.Logger, expirer InvitationExpirer, ttl time.Duration, batch int) *Sweeper {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{
		log:     log,
		expirer: expirer,
		ttl:     ttl,
		batch:   batch,
		timeout: time.Minute,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs one pass.  A full batch is followed by another pass until the
// backlog is drained or a pass fails.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	const op = "scheduler.Sweeper.Sweep"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cutoff := s.now().Add(-s.ttl)
	total := 0
	for {
		n, err := s.expirer.ExpireInvitations(ctx, cutoff, s.batch)
		total += n
		if err != nil {
			return total, fmt.Errorf("%s: %w", op, err)
		}
		if s.batch <= 0 || n < s.batch {
			return total, nil
		}
	}
}

// Start schedules Sweep every interval on a new scheduler and starts it.
// The caller owns the returned scheduler and must Shutdown it.
func (s *Sweeper) Start(interval time.Duration) (gocron.Scheduler, error) {
	const op = "scheduler.Sweeper.Start"
	log := s.log.With(slog.String("op", op))

	sch, err := gocron.NewScheduler(gocron.WithLogger(log), gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("%s: new scheduler: %w", op, err)
	}
	_, err = sch.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Error("invitation sweep failed", slog.Int("expired", n), sl.Err(err))
				return
			}
			if n > 0 {
				log.Info("invitation sweep finished", slog.Int("expired", n))
			}
		}),
		gocron.WithName("expire-invitations"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sch.Shutdown()
		return nil, fmt.Errorf("%s: new job: %w", op, err)
	}
	sch.Start()
	log.Info("invitation sweeper started", slog.Duration("interval", interval), slog.Duration("ttl", s.ttl))
	return sch, nil
}
