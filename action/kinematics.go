package action

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/omath"
)

// unused returns the part of the budget left after a goal that needed the amount of seconds passed was
// reached. Reaching a goal always leaves a positive remainder, even if the budget was spent exactly.
func unused(seconds, needed float64) float64 {
	return math.Max(seconds-needed, math.SmallestNonzeroFloat64)
}

// rotate turns the state by at most delta radians within the budget passed. It returns the rotation that
// was applied and the unused budget. Rotations smaller than omath.Epsilon are applied instantly, and so is
// the rest of a rotation that the budget falls short of by less than omath.Epsilon.
func rotate(s *entity.State, delta, seconds float64) (applied, left float64) {
	if omath.ApproxZero(delta) {
		s.Heading = omath.NormalizeAngle(s.Heading + delta)
		return delta, seconds
	}
	if math.Abs(delta)-seconds*s.TurningSpeed < omath.Epsilon {
		s.Heading = omath.NormalizeAngle(s.Heading + delta)
		return delta, unused(seconds, math.Abs(delta)/s.TurningSpeed)
	}
	applied = math.Copysign(seconds*s.TurningSpeed, delta)
	s.Heading = omath.NormalizeAngle(s.Heading + applied)
	return applied, 0
}

// advance moves the state by at most d pixels along its heading within the budget passed. It returns the
// distance that was covered and the unused budget.
func advance(s *entity.State, d, seconds float64) (moved, left float64) {
	if omath.ApproxZero(d) {
		s.Location = s.Location.Add(omath.UnitVector(s.Heading).Mul(d))
		return d, seconds
	}
	if math.Abs(d)-seconds*s.MovementSpeed < omath.Epsilon {
		s.Location = s.Location.Add(omath.UnitVector(s.Heading).Mul(d))
		return d, unused(seconds, math.Abs(d)/s.MovementSpeed)
	}
	moved = math.Copysign(seconds*s.MovementSpeed, d)
	s.Location = s.Location.Add(omath.UnitVector(s.Heading).Mul(moved))
	return moved, 0
}

// facing returns the rotation needed for the state to face the target, or false if the target is too
// close to the state's location to have a direction.
func facing(s *entity.State, target mgl64.Vec2) (float64, bool) {
	v := target.Sub(s.Location)
	if v.Len() < omath.Epsilon {
		return 0, false
	}
	return omath.TurnAmount(s.Heading, omath.Angle(v)), true
}

func (a *MoveToAction) perform(s *entity.State, seconds float64) float64 {
	if a.done {
		return seconds
	}
	if turn, ok := facing(s, a.target); ok {
		var applied float64
		if applied, seconds = rotate(s, turn, seconds); applied != turn || seconds <= 0 {
			return 0
		}
	}

	dist := a.target.Sub(s.Location).Len()
	moved, left := advance(s, dist, seconds)
	if moved == dist {
		s.Location = a.target
		a.done = true
	}
	return left
}

func (a *MoveToAction) estimate(s *entity.State) float64 {
	if a.done {
		return 0
	}
	turn, _ := facing(s, a.target)
	return math.Abs(turn)/s.TurningSpeed + a.target.Sub(s.Location).Len()/s.MovementSpeed
}

func (a *ForwardAction) perform(s *entity.State, seconds float64) float64 {
	moved, left := advance(s, a.remaining, seconds)
	a.remaining -= moved
	if left > 0 {
		a.remaining = 0
	}
	return left
}

func (a *TurnAction) perform(s *entity.State, seconds float64) float64 {
	applied, left := rotate(s, a.remaining, seconds)
	a.remaining -= applied
	if left > 0 {
		a.remaining = 0
	}
	return left
}

func (a *HeadingAction) perform(s *entity.State, seconds float64) float64 {
	_, left := rotate(s, omath.TurnAmount(s.Heading, a.heading), seconds)
	return left
}

func (a *LookAtAction) perform(s *entity.State, seconds float64) float64 {
	turn, ok := facing(s, a.target)
	if !ok {
		return seconds
	}
	_, left := rotate(s, turn, seconds)
	return left
}

func (a *LookAtAction) estimate(s *entity.State) float64 {
	turn, _ := facing(s, a.target)
	return math.Abs(turn) / s.TurningSpeed
}

func (a *PauseAction) perform(s *entity.State, seconds float64) float64 {
	if a.done {
		return seconds
	}
	if !a.started {
		a.started = true
		a.initialStatus = s.Status
	}

	if a.remaining <= seconds {
		left := unused(seconds, a.remaining)
		a.remaining = 0
		a.done = true
		if a.showStatus {
			s.Status = a.initialStatus
		}
		return left
	}

	a.remaining -= seconds
	if a.showStatus {
		s.Status = fmt.Sprintf("%.1f", a.remaining)
	}
	return 0
}
