package simulation

import (
	"context"
	"fmt"

	"github.com/oomph-ac/turtle/oerror"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/semaphore"
)

// Lock is the pair of locks guarding a single entity. The writer lock is held for the full duration of
// an invocation so that two actions on one entity never interleave. The state lock guards the entity's
// state itself and is only held for the length of a single step or read.
type Lock struct {
	writer *semaphore.Weighted
	state  deadlock.RWMutex
}

func newLock() *Lock {
	return &Lock{writer: semaphore.NewWeighted(1)}
}

// acquire takes the writer lock, giving up when the context is done.
func (l *Lock) acquire(ctx context.Context) error {
	if err := l.writer.Acquire(ctx, 1); err != nil {
		return cancelled(ctx)
	}
	return nil
}

func (l *Lock) release() {
	l.writer.Release(1)
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", oerror.ErrCancelled, context.Cause(ctx))
}
