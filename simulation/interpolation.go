package simulation

import (
	"sync"
	"time"

	"github.com/oomph-ac/turtle/action"
	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/worker"
	"go.uber.org/atomic"
)

// interpolation advances one action by a step at a time on the worker pool until the action reports it
// has completed.
type interpolation struct {
	sim    *Simulator
	handle entity.Handle
	entry  *entry
	action action.Action

	// last is the time of the previous step. It is only accessed with the entity's state lock held.
	last time.Time

	timer   atomic.Pointer[worker.Timer]
	stopped atomic.Bool

	done chan struct{}
	once sync.Once
	err  error
}

func newInterpolation(s *Simulator, h entity.Handle, e *entry, a action.Action) *interpolation {
	return &interpolation{
		sim:    s,
		handle: h,
		entry:  e,
		action: a,
		last:   time.Now(),
		done:   make(chan struct{}),
	}
}

func (t *interpolation) schedule() {
	if t.stopped.Load() {
		return
	}
	t.timer.Store(t.sim.pool.Schedule(t.step, t.sim.conf.Step))
}

// stop prevents any further steps. A step already running finishes.
func (t *interpolation) stop() {
	t.stopped.Store(true)
	if timer := t.timer.Load(); timer != nil {
		timer.Stop()
	}
}

// finish releases the waiting caller. Only the first call has an effect.
func (t *interpolation) finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *interpolation) step() {
	s, l, st := t.sim, t.entry.lock, t.entry.state

	l.state.Lock()
	if t.stopped.Load() {
		l.state.Unlock()
		return
	}

	now := time.Now()
	elapsed := now.Sub(t.last)
	t.last = now
	s.jitter.add(elapsed)
	elapsed = min(elapsed, s.conf.MaxStutter)

	var seconds float64
	if !s.settings.Paused() {
		seconds = elapsed.Seconds() * s.settings.AnimationSpeed()
	}

	from := st.Location
	left, err := s.perform(t.handle, st, t.action, seconds)
	if err == nil && seconds > 0 {
		st.Record(s.seq.Inc())
	}
	to := st.Location
	l.state.Unlock()

	s.counter.ticks.Inc()
	if err != nil {
		t.finish(err)
		return
	}
	if seconds > 0 {
		s.renderer.RequestRedraw(t.handle, from, to)
	}
	if left > 0 {
		t.finish(nil)
		return
	}
	t.schedule()
}
