package notify

import (
	"context"
	"errors"

	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// Emitter is the subset of reservation.NotificationEmitter this package
// fans out to.
type Emitter interface {
	Notify(ctx context.Context, e model.Event) error
}

// Multi delivers each event to every emitter in order.  A failing emitter
// does not stop the others; all failures are joined.
type Multi []Emitter

// Notify implements Emitter.
func (m Multi) Notify(ctx context.Context, e model.Event) error {
	var errs []error
	for _, em := range m {
		if em == nil {
			continue
		}
		if err := em.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
