// Package simulation drives entity actions through simulated time. Callers block in InvokeAndWait until
// their action has fully been applied, while a render loop may read entity state at any time.
package simulation

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oomph-ac/turtle/action"
	"github.com/oomph-ac/turtle/assert"
	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/worker"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Simulator owns the registered entities and advances their actions. A Simulator must be created with
// Config.New.
type Simulator struct {
	conf     Config
	log      *logrus.Logger
	settings *Settings
	renderer Renderer

	pool *worker.Pool
	reg  *registry

	// seq is the simulator-wide step counter used to key history samples.
	seq     atomic.Uint64
	counter counters
	jitter  jitter

	closed  atomic.Bool
	closing chan struct{}
}

// Settings returns the global simulation controls.
func (s *Simulator) Settings() *Settings {
	return s.settings
}

// Register allocates a handle for a new entity. Its state is created the first time it is used.
func (s *Simulator) Register() entity.Handle {
	h := s.reg.register()
	s.log.Debugf("registered entity %d", h)
	return h
}

// Deregister removes the entity with the handle passed. Actions in flight on the entity complete, but
// further use of the handle returns oerror.ErrUnknownEntity.
func (s *Simulator) Deregister(h entity.Handle) error {
	if !s.reg.deregister(h) {
		return oerror.ErrUnknownEntity
	}
	s.log.Debugf("deregistered entity %d", h)
	return nil
}

// Registered returns true if the handle passed is currently registered.
func (s *Simulator) Registered(h entity.Handle) bool {
	return s.reg.registered(h)
}

// Handles returns every registered handle in ascending order.
func (s *Simulator) Handles() []entity.Handle {
	return s.reg.handles()
}

// View calls fn with the state of the entity while holding its state read lock. fn must not retain the
// state or invoke actions.
func (s *Simulator) View(h entity.Handle, fn func(st *entity.State)) error {
	e, err := s.reg.load(h, s.conf.NewState)
	if err != nil {
		return err
	}
	e.lock.state.RLock()
	defer e.lock.state.RUnlock()
	fn(e.state)
	return nil
}

// Snapshot returns a copy of the state of the entity.
func (s *Simulator) Snapshot(h entity.Handle) (entity.State, error) {
	var snap entity.State
	err := s.View(h, func(st *entity.State) {
		snap.CopyFrom(st)
	})
	return snap, err
}

// Update calls fn with the state of the entity while holding its state write lock. It is used for
// changes that take no simulated time, such as changing the colour of the pen.
func (s *Simulator) Update(h entity.Handle, fn func(st *entity.State) error) error {
	e, err := s.reg.load(h, s.conf.NewState)
	if err != nil {
		return err
	}

	var from, to mgl64.Vec2
	func() {
		e.lock.state.Lock()
		defer e.lock.state.Unlock()
		from = e.state.Location
		err = fn(e.state)
		to = e.state.Location
	}()

	s.renderer.RequestRedraw(h, from, to)
	return err
}

// Reset restores the state of the entity to its defaults.
func (s *Simulator) Reset(h entity.Handle) error {
	return s.Update(h, func(st *entity.State) error {
		st.Reset()
		return nil
	})
}

// InvokeAndWait performs the action passed on the entity and blocks until it has been fully applied. Short
// actions are applied at once and the caller is held for their duration; longer ones are interpolated over
// several steps on the worker pool. If ctx is cancelled first, oerror.ErrCancelled is returned and the part
// of the action already applied is kept. Actions built from NaN or infinite values are rejected with
// oerror.ErrInvalidArgument. InvokeAndWait must never be called from the render loop.
func (s *Simulator) InvokeAndWait(ctx context.Context, a action.Action, h entity.Handle) error {
	assert.IsTrue(!IsRenderContext(ctx), "actions cannot be invoked from the render loop (entity %d)", h)
	if s.closed.Load() {
		return oerror.ErrClosed
	}
	if err := action.Validate(a); err != nil {
		return err
	}

	e, err := s.reg.load(h, s.conf.NewState)
	if err != nil {
		return err
	}
	if err := e.lock.acquire(ctx); err != nil {
		s.counter.cancelled.Inc()
		return err
	}
	defer e.lock.release()

	start := time.Now()
	wall, done, err := s.performNow(h, e, a)
	if err != nil {
		return err
	}
	if done {
		s.counter.fastPath.Inc()
		return s.spin(ctx, start, wall)
	}

	s.counter.slowPath.Inc()
	task := newInterpolation(s, h, e, a)
	task.schedule()

	select {
	case <-task.done:
		return task.err
	case <-s.closing:
		task.stop()
		return oerror.ErrClosed
	case <-ctx.Done():
		task.stop()
		select {
		case <-task.done:
			return task.err
		default:
		}
		s.counter.cancelled.Inc()
		return cancelled(ctx)
	}
}

// performNow estimates the wall time the action needs and applies it completely if that is short enough.
// It returns the wall time and whether the action was applied.
func (s *Simulator) performNow(h entity.Handle, e *entry, a action.Action) (wall float64, done bool, err error) {
	var from, to mgl64.Vec2
	func() {
		e.lock.state.Lock()
		defer e.lock.state.Unlock()
		defer s.recoverAction(h, a, &err)

		wall = s.wallTime(action.EstimatedCompletion(a, e.state))
		if math.IsNaN(wall) {
			err = fmt.Errorf("%w: %s has no completion estimate", oerror.ErrInvalidArgument, action.Describe(a))
			return
		}
		if wall > 0 && wall >= s.conf.MaxBlocking.Seconds() {
			return
		}
		from = e.state.Location
		action.Perform(a, e.state, math.MaxFloat64)
		if wall > 0 {
			e.state.Record(s.seq.Inc())
		}
		to, done = e.state.Location, true
	}()
	if done && wall > 0 {
		s.renderer.RequestRedraw(h, from, to)
	}
	return wall, done, err
}

// wallTime converts an estimate in simulated seconds to wall clock seconds.
func (s *Simulator) wallTime(estimate float64) float64 {
	switch {
	case math.IsNaN(estimate):
		return estimate
	case estimate <= 0:
		return 0
	case s.settings.Paused():
		return math.Inf(1)
	}
	return estimate / s.settings.AnimationSpeed()
}

// spin holds the caller until the wall time of an action applied at once has passed. It busy-waits
// without yielding, as the wait is bounded by maxSpin.
func (s *Simulator) spin(ctx context.Context, start time.Time, wall float64) error {
	if wall <= 0 {
		return nil
	}
	deadline := start.Add(min(time.Duration(wall*float64(time.Second)), maxSpin))
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			s.counter.cancelled.Inc()
			return cancelled(ctx)
		}
	}
	return nil
}

// perform runs a single step of the action, turning a panic into an error.
func (s *Simulator) perform(h entity.Handle, st *entity.State, a action.Action, seconds float64) (left float64, err error) {
	defer s.recoverAction(h, a, &err)
	return action.Perform(a, st, seconds), nil
}

// recoverAction must be deferred directly. It converts a panic raised by an action into an
// *oerror.PanicError and reports it.
func (s *Simulator) recoverAction(h entity.Handle, a action.Action, err *error) {
	v := recover()
	if v == nil {
		return
	}
	s.counter.panics.Inc()

	pe := &oerror.PanicError{Value: v, Stack: debug.Stack()}
	*err = pe
	s.log.Errorf("action %s on entity %d panicked: %v\n%s", action.Describe(a), h, v, pe.Stack)

	hub := sentry.CurrentHub().Clone()
	hub.Recover(oerror.New("action %s on entity %d panicked: %v", action.Describe(a), h, v))
	hub.Flush(time.Second * 5)
}

// Close stops the worker pool. Callers blocked on interpolated actions return oerror.ErrClosed. Close may
// be called more than once.
func (s *Simulator) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.closing)
	s.pool.Close()
	s.log.Debugf("simulator closed")
}
