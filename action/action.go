// Package action holds the motion commands an entity can be asked to carry out. Every action is a
// resumable unit of work: it is performed against an entity state with a budget of simulated seconds
// and reports the part of the budget it did not need.
package action

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oomph-ac/turtle/assert"
	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/omath"
)

// Action is a motion command. The set of actions is closed; the variants are the pointer types returned
// by the constructors in this package. An action instance is stateful and must only be invoked once.
type Action interface {
	action()
}

// MoveToAction turns the entity towards a point and then moves it there.
type MoveToAction struct {
	target mgl64.Vec2
	done   bool
}

// ForwardAction moves the entity along its heading. A negative distance moves it backwards.
type ForwardAction struct {
	remaining float64
}

// TurnAction rotates the entity by a relative amount of radians.
type TurnAction struct {
	remaining float64
}

// HeadingAction rotates the entity onto an absolute heading along the shortest direction.
type HeadingAction struct {
	heading float64
}

// LookAtAction rotates the entity so that it faces a point.
type LookAtAction struct {
	target mgl64.Vec2
}

// PauseAction keeps the entity still for a duration, optionally showing a countdown as its status.
type PauseAction struct {
	remaining  float64
	showStatus bool

	started       bool
	done          bool
	initialStatus string
}

// EmptyAction does nothing. Invoking it waits until the entity has finished its previous action.
type EmptyAction struct{}

func (*MoveToAction) action()  {}
func (*ForwardAction) action() {}
func (*TurnAction) action()    {}
func (*HeadingAction) action() {}
func (*LookAtAction) action()  {}
func (*PauseAction) action()   {}
func (EmptyAction) action()    {}

// MoveTo returns an action that moves the entity to (x, y), turning towards it first.
func MoveTo(x, y float64) *MoveToAction {
	return &MoveToAction{target: mgl64.Vec2{x, y}}
}

// Forward returns an action that moves the entity d pixels along its heading.
func Forward(d float64) *ForwardAction {
	return &ForwardAction{remaining: d}
}

// Turn returns an action that rotates the entity by delta radians.
func Turn(delta float64) *TurnAction {
	return &TurnAction{remaining: delta}
}

// Head returns an action that rotates the entity onto the heading passed.
func Head(heading float64) *HeadingAction {
	return &HeadingAction{heading: omath.NormalizeAngle(heading)}
}

// LookAt returns an action that rotates the entity to face (x, y).
func LookAt(x, y float64) *LookAtAction {
	return &LookAtAction{target: mgl64.Vec2{x, y}}
}

// Pause returns an action that waits for the amount of simulated seconds passed. Negative durations are
// treated as zero.
func Pause(seconds float64, showStatus bool) *PauseAction {
	return &PauseAction{remaining: math.Max(seconds, 0), showStatus: showStatus}
}

// Empty returns an action that does nothing.
func Empty() EmptyAction {
	return EmptyAction{}
}

// Perform advances the action passed by at most seconds of simulated time, mutating the state. It returns
// the unused part of the budget: a value greater than zero means the action has completed, zero means it
// needs more time. Performing a completed action returns the full budget.
func Perform(a Action, s *entity.State, seconds float64) float64 {
	switch a := a.(type) {
	case *MoveToAction:
		return a.perform(s, seconds)
	case *ForwardAction:
		return a.perform(s, seconds)
	case *TurnAction:
		return a.perform(s, seconds)
	case *HeadingAction:
		return a.perform(s, seconds)
	case *LookAtAction:
		return a.perform(s, seconds)
	case *PauseAction:
		return a.perform(s, seconds)
	case EmptyAction, *EmptyAction:
		return seconds
	}
	assert.IsTrue(false, "unknown action %T", a)
	return 0
}

// EstimatedCompletion returns the simulated seconds the action still needs with the state passed.
func EstimatedCompletion(a Action, s *entity.State) float64 {
	switch a := a.(type) {
	case *MoveToAction:
		return a.estimate(s)
	case *ForwardAction:
		return math.Abs(a.remaining) / s.MovementSpeed
	case *TurnAction:
		return math.Abs(a.remaining) / s.TurningSpeed
	case *HeadingAction:
		return math.Abs(omath.TurnAmount(s.Heading, a.heading)) / s.TurningSpeed
	case *LookAtAction:
		return a.estimate(s)
	case *PauseAction:
		if a.done {
			return 0
		}
		return a.remaining
	case EmptyAction, *EmptyAction:
		return 0
	}
	assert.IsTrue(false, "unknown action %T", a)
	return 0
}

// Validate returns an error wrapping oerror.ErrInvalidArgument if the action was built from a NaN or
// infinite value. Such an action could never complete.
func Validate(a Action) error {
	var values []float64
	switch a := a.(type) {
	case *MoveToAction:
		values = a.target[:]
	case *ForwardAction:
		values = []float64{a.remaining}
	case *TurnAction:
		values = []float64{a.remaining}
	case *HeadingAction:
		values = []float64{a.heading}
	case *LookAtAction:
		values = a.target[:]
	case *PauseAction:
		values = []float64{a.remaining}
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s", oerror.ErrInvalidArgument, Describe(a))
		}
	}
	return nil
}

// Describe returns a short human readable description of the action.
func Describe(a Action) string {
	switch a := a.(type) {
	case *MoveToAction:
		return fmt.Sprintf("move to (%.1f, %.1f)", a.target.X(), a.target.Y())
	case *ForwardAction:
		return fmt.Sprintf("forward %.1f", a.remaining)
	case *TurnAction:
		return fmt.Sprintf("turn %.3f", a.remaining)
	case *HeadingAction:
		return fmt.Sprintf("head %.3f", a.heading)
	case *LookAtAction:
		return fmt.Sprintf("look at (%.1f, %.1f)", a.target.X(), a.target.Y())
	case *PauseAction:
		return fmt.Sprintf("pause %.1f", a.remaining)
	case EmptyAction, *EmptyAction:
		return "empty"
	}
	return fmt.Sprintf("unknown %T", a)
}
