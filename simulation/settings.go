package simulation

import (
	"math"

	"github.com/oomph-ac/turtle/oerror"
	"go.uber.org/atomic"
)

// Settings holds the global simulation controls shared by every entity. All methods are safe to call
// from any goroutine.
type Settings struct {
	paused atomic.Bool
	speed  atomic.Float64
}

func newSettings(paused bool, speed float64) *Settings {
	s := &Settings{}
	s.paused.Store(paused)
	s.speed.Store(speed)
	return s
}

// Paused returns true if simulated time is currently frozen.
func (s *Settings) Paused() bool {
	return s.paused.Load()
}

// Pause freezes simulated time.
func (s *Settings) Pause() {
	s.paused.Store(true)
}

// Unpause resumes simulated time.
func (s *Settings) Unpause() {
	s.paused.Store(false)
}

// TogglePause flips the paused state and returns the new value.
func (s *Settings) TogglePause() bool {
	for {
		old := s.paused.Load()
		if s.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// AnimationSpeed returns the multiplier of simulated time over wall time.
func (s *Settings) AnimationSpeed() float64 {
	return s.speed.Load()
}

// SetAnimationSpeed sets the multiplier of simulated time over wall time. It must be strictly positive.
func (s *Settings) SetAnimationSpeed(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return oerror.ErrInvalidAnimationSpeed
	}
	s.speed.Store(v)
	return nil
}
