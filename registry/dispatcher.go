package registry

import (
	"context"

	"tileworld.dev/server/track"
)

// Flusher is implemented by Store[T] for every registered persistent
// class; it is the type-erased half of TryFlush so a Dispatcher can hold
// heterogeneous stores in one slice.
type Flusher interface {
	TryFlush(ctx context.Context, ec *track.EntityChanges) (bool, error)
}

// Dispatcher fans the change tracker's drained flush set out across every
// registered class's Store, in the spec's documented order: each entity's
// own change is applied by whichever store claims its concrete type.
type Dispatcher struct {
	flushers []Flusher
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Register(f Flusher) {
	d.flushers = append(d.flushers, f)
}

// Flush drains tracker's flush set and applies every entry to storage.
func (d *Dispatcher) Flush(ctx context.Context, tracker *track.Tracker) error {
	for _, ec := range tracker.DrainFlush() {
		for _, f := range d.flushers {
			handled, err := f.TryFlush(ctx, ec)
			if err != nil {
				return err
			}
			if handled {
				break
			}
		}
	}
	return nil
}
