package simulation

import (
	"time"

	"github.com/oomph-ac/turtle/omath"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/atomic"
)

// Stats is a snapshot of the counters of a Simulator.
type Stats struct {
	// Entities is the amount of registered entities.
	Entities int
	// FastPath is the amount of actions that were applied at once.
	FastPath uint64
	// SlowPath is the amount of actions that were interpolated on the worker pool.
	SlowPath uint64
	// Ticks is the amount of interpolation steps that ran.
	Ticks uint64
	// Cancelled is the amount of invocations that returned because their context was done.
	Cancelled uint64
	// Panics is the amount of actions that panicked.
	Panics uint64

	// MeanTickInterval and TickJitter are the mean and standard deviation of the wall time between
	// recent interpolation steps, in milliseconds.
	MeanTickInterval float64
	TickJitter       float64
}

type counters struct {
	fastPath, slowPath, ticks, cancelled, panics atomic.Uint64
}

const jitterSamples = 128

// jitter keeps the most recent intervals between interpolation steps.
type jitter struct {
	mu      deadlock.Mutex
	samples []float64
	next    int
}

func (j *jitter) add(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.samples) < jitterSamples {
		j.samples = append(j.samples, ms)
		return
	}
	j.samples[j.next] = ms
	j.next = (j.next + 1) % jitterSamples
}

func (j *jitter) stats() (mean, deviation float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return omath.Mean(j.samples), omath.StandardDeviation(j.samples)
}

// Stats returns the current counters of the simulator.
func (s *Simulator) Stats() Stats {
	mean, deviation := s.jitter.stats()
	return Stats{
		Entities:         s.reg.len(),
		FastPath:         s.counter.fastPath.Load(),
		SlowPath:         s.counter.slowPath.Load(),
		Ticks:            s.counter.ticks.Load(),
		Cancelled:        s.counter.cancelled.Load(),
		Panics:           s.counter.panics.Load(),
		MeanTickInterval: mean,
		TickJitter:       deviation,
	}
}
