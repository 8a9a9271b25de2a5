// Package worker provides a fixed pool of goroutines that run short jobs, either immediately or after a
// delay. The simulator drives every interpolation step through a pool.
package worker

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Pool is a fixed set of worker goroutines fed by a shared queue.
type Pool struct {
	log *logrus.Logger

	queue chan func()
	stop  chan struct{}

	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	panics atomic.Uint64
}

// New creates a pool with the amount of workers passed and starts them. If workers is zero or less, one
// worker per CPU is started.
func New(workers int, log *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Pool{
		log:   log,
		queue: make(chan func(), workers*4),
		stop:  make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case f := <-p.queue:
			p.run(f)
		}
	}
}

// run executes a single job. A panicking job is reported and does not take its worker down with it.
func (p *Pool) run(f func()) {
	defer func() {
		if err := recover(); err != nil {
			p.panics.Inc()
			p.log.Errorf("worker job crashed: %v\n%s", err, debug.Stack())

			hub := sentry.CurrentHub().Clone()
			hub.Recover(oerror.New("worker job crashed: %v", err))
			hub.Flush(time.Second * 5)
		}
	}()
	f()
}

// Submit queues f to be run on one of the workers. It blocks while the queue is full and returns false
// if the pool has been closed.
func (p *Pool) Submit(f func()) bool {
	if p.closed.Load() {
		return false
	}
	select {
	case p.queue <- f:
		return true
	case <-p.stop:
		return false
	}
}

// Timer is a pending delayed submission created by Schedule.
type Timer struct {
	t       *time.Timer
	stopped atomic.Bool
}

// Stop prevents the job from being submitted. It returns false if the job was already handed to the pool
// or the timer was stopped before.
func (t *Timer) Stop() bool {
	if !t.stopped.CompareAndSwap(false, true) {
		return false
	}
	return t.t.Stop()
}

// Schedule submits f to the pool once delay has passed.
func (p *Pool) Schedule(f func(), delay time.Duration) *Timer {
	timer := &Timer{}
	timer.t = time.AfterFunc(delay, func() {
		if timer.stopped.Load() {
			return
		}
		p.Submit(f)
	})
	return timer
}

// Panics returns the amount of jobs that panicked since the pool was created.
func (p *Pool) Panics() uint64 {
	return p.panics.Load()
}

// Close stops the workers and waits for running jobs to return. Jobs still queued are dropped and later
// submissions are rejected. Close may be called more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.stop)
	})
	p.wg.Wait()
}
