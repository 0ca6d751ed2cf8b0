// Package reservation implements the coordinator that owns every write to
// a reservation.  Each operation runs as one optimistic read-compute-write
// cycle against the Store; lost races are retried with jittered backoff
// and committed changes are fanned out to collaborators afterwards.
package reservation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
	"github.com/iliyamo/tee-time-reservation/internal/model"
	"github.com/iliyamo/tee-time-reservation/internal/repository"
)

// SystemActor is the actor id recorded on changes made by background jobs.
const SystemActor = "system"

// Options tunes retries and timeouts.  Zero values fall back to defaults.
type Options struct {
	MaxAttempts     int           // attempts per operation, first one included (5)
	InitialBackoff  time.Duration // first retry delay before jitter (20ms)
	MaxBackoff      time.Duration // retry delay cap (250ms)
	AttemptTimeout  time.Duration // deadline of one store round trip (3s)
	DispatchTimeout time.Duration // deadline of post-commit fan-out (5s)

	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 20 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 250 * time.Millisecond
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 3 * time.Second
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Coordinator is stateless apart from its collaborators; any number of
// instances may serve the same store concurrently.
type Coordinator struct {
	log    *slog.Logger
	store  Store
	collab Collaborators
	opts   Options

	wg  sync.WaitGroup
	seq sequencer
}

// New builds a Coordinator.  Nil collaborators are replaced by no-ops.
func New(log *slog.Logger, store Store, collab Collaborators, opts Options) *Coordinator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		log:    log,
		store:  store,
		collab: collab.withDefaults(),
		opts:   opts.withDefaults(),
	}
}

// Wait blocks until every post-commit dispatch started so far returned.
func (c *Coordinator) Wait() { c.wg.Wait() }

// outcome describes what a committed transaction body did, so the
// matching side effects can run after commit.
type outcome struct {
	event      model.EventKind
	actorID    string
	subjectID  string
	membership model.MembershipStatus
	invitation string

	rosterAdd    []string
	rosterRemove []string
}

// noChange is returned by a body when the request is already satisfied.
func noChange() error { return repository.ErrNoChange }

// mutate runs body inside Store.AtomicUpdate, retrying the whole cycle
// while the store reports a conflicting writer.  It returns the committed
// state and whether anything was written.
func (c *Coordinator) mutate(ctx context.Context, op, id string, body func(*model.ReservationState) (outcome, error)) (model.ReservationState, bool, error) {
	log := c.log.With(slog.String("op", op), slog.String("reservation_id", id))

	var (
		committed model.ReservationState
		result    outcome
		changed   bool
	)
	attempt := func() (struct{}, error) {
		actx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()

		var out outcome
		st, err := c.store.AtomicUpdate(actx, id, func(s *model.ReservationState) error {
			var err error
			out, err = body(s)
			return err
		})
		switch {
		case err == nil:
			committed, result, changed = st, out, true
			return struct{}{}, nil
		case errors.Is(err, repository.ErrNoChange):
			committed, changed = st, false
			return struct{}{}, nil
		case errors.Is(err, repository.ErrConflict):
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(c.translate(op, err))
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug("write conflict, retrying", slog.Duration("backoff", next), sl.Err(err))
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if errors.Is(err, repository.ErrConflict) {
			log.Warn("retry budget exhausted", slog.Int("attempts", c.opts.MaxAttempts))
			return model.ReservationState{}, false, wrapError(KindConcurrentModification, op,
				"reservation is being modified concurrently, try again", err)
		}
		if KindOf(err) == "" {
			err = c.translate(op, err)
		}
		return model.ReservationState{}, false, err
	}

	if changed {
		log.Debug("committed", slog.Int64("version", committed.Reservation.Version),
			slog.String("event", string(result.event)))
		c.dispatch(committed, result)
	}
	return committed, changed, nil
}

func (c *Coordinator) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	return b
}

// translate maps store and context errors onto coordinator kinds.
// Errors that already carry a kind pass through.
func (c *Coordinator) translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return wrapError(KindNotFound, op, "reservation not found", err)
	case errors.Is(err, repository.ErrConflict):
		return wrapError(KindConcurrentModification, op, "reservation is being modified concurrently, try again", err)
	case errors.Is(err, repository.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return wrapError(KindUnavailable, op, "reservation store unavailable", err)
	}
	c.log.Error("unexpected store error", slog.String("op", op), sl.Err(err))
	return wrapError(KindUnavailable, op, "reservation store unavailable", err)
}

// dispatch runs the post-commit side effects in the background.  Nothing
// here can fail the operation that triggered it.
func (c *Coordinator) dispatch(st model.ReservationState, out outcome) {
	const op = "reservation.Coordinator.dispatch"
	res := st.Reservation
	log := c.log.With(slog.String("op", op), slog.String("reservation_id", res.ID))

	affected := affectedUsers(st, out)
	prev, done := c.seq.next(res.ID)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer done()
		if prev != nil {
			<-prev
		}
		defer func() {
			if r := recover(); r != nil {
				log.Error("collaborator panicked", slog.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.DispatchTimeout)
		defer cancel()

		for _, userID := range out.rosterAdd {
			if err := c.collab.Roster.Add(ctx, userID, res.ID); err != nil {
				log.Warn("roster add failed", slog.String("user_id", userID), sl.Err(err))
			}
		}
		for _, userID := range out.rosterRemove {
			if err := c.collab.Roster.Remove(ctx, userID, res.ID); err != nil {
				log.Warn("roster remove failed", slog.String("user_id", userID), sl.Err(err))
			}
		}
		if err := c.collab.Cache.Invalidate(ctx, res.ID, affected); err != nil {
			log.Warn("cache invalidation failed", sl.Err(err))
		}
		if out.event == "" {
			return
		}
		event := c.buildEvent(ctx, log, res, out)
		if err := c.collab.Notifier.Notify(ctx, event); err != nil {
			log.Warn("notification failed", slog.String("event", string(event.Kind)), sl.Err(err))
		}
	}()
}

func (c *Coordinator) buildEvent(ctx context.Context, log *slog.Logger, res model.Reservation, out outcome) model.Event {
	event := model.Event{
		ID:               c.opts.NewID(),
		Kind:             out.event,
		ReservationID:    res.ID,
		ActorID:          out.actorID,
		SubjectID:        out.subjectID,
		MembershipStatus: out.membership,
		InvitationID:     out.invitation,
		Occupancy:        res.Occupancy,
		Capacity:         res.Capacity,
		Status:           res.Status,
		ScheduledAt:      res.ScheduledAt,
		Location:         res.Location,
		OccurredAt:       c.opts.Now(),
	}
	event.Actor = c.profile(ctx, log, out.actorID)
	if out.subjectID != "" && out.subjectID != out.actorID {
		event.Subject = c.profile(ctx, log, out.subjectID)
	}
	return event
}

func (c *Coordinator) profile(ctx context.Context, log *slog.Logger, userID string) *model.ProfileSummary {
	if userID == "" || userID == SystemActor {
		return nil
	}
	p, err := c.collab.Profiles.Resolve(ctx, userID)
	if err != nil {
		log.Warn("profile lookup failed", slog.String("user_id", userID), sl.Err(err))
		return nil
	}
	return &p
}

// affectedUsers lists every user whose cached view may have changed.
func affectedUsers(st model.ReservationState, out outcome) []string {
	seen := make(map[string]struct{})
	var users []string
	add := func(id string) {
		if id == "" || id == SystemActor {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	for _, m := range st.Memberships {
		add(m.UserID)
	}
	add(out.subjectID)
	for _, id := range out.rosterRemove {
		add(id)
	}
	return users
}

// sequencer keeps post-commit side effects of one reservation in commit
// order while different reservations proceed in parallel.
type sequencer struct {
	mu   sync.Mutex
	tail map[string]chan struct{}
}

func (s *sequencer) next(key string) (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tail == nil {
		s.tail = make(map[string]chan struct{})
	}
	prev, ok := s.tail[key]
	ch := make(chan struct{})
	s.tail[key] = ch
	done := func() {
		close(ch)
		s.mu.Lock()
		if s.tail[key] == ch {
			delete(s.tail, key)
		}
		s.mu.Unlock()
	}
	if !ok {
		return nil, done
	}
	return prev, done
}
