package turtle

import (
	"context"
	"fmt"
	"image/color"
	"math"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oomph-ac/turtle/action"
	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/omath"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/atomic"
)

// Turtle is a simulated entity driven by an objective. Motion methods block until the motion has been
// fully animated; property getters and setters take effect immediately.
type Turtle struct {
	app    *Application
	handle entity.Handle
	policy atomic.Uint32

	listenerMu deadlock.Mutex
	listeners  []Listener
}

// Handle returns the simulator handle of the turtle.
func (t *Turtle) Handle() entity.Handle {
	return t.handle
}

// AnglePolicy returns the unit the turtle takes angles in.
func (t *Turtle) AnglePolicy() AnglePolicy {
	return AnglePolicy(t.policy.Load())
}

// SetAnglePolicy changes the unit the turtle takes angles in.
func (t *Turtle) SetAnglePolicy(p AnglePolicy) {
	t.policy.Store(uint32(p))
}

// invoke performs the action and, while a fill shape is in progress, adds the resulting location to it.
func (t *Turtle) invoke(ctx context.Context, a action.Action) error {
	if err := t.app.sim.InvokeAndWait(ctx, a, t.handle); err != nil {
		return err
	}
	return t.app.sim.Update(t.handle, func(st *entity.State) error {
		if !st.Filling {
			return nil
		}
		if n := len(st.FillShape); n == 0 || !st.FillShape[n-1].ApproxEqualThreshold(st.Location, omath.Epsilon) {
			st.FillShape = append(st.FillShape, st.Location)
		}
		return nil
	})
}

// MoveForward moves the turtle the amount of pixels passed along its heading. Negative amounts move it
// backwards.
func (t *Turtle) MoveForward(ctx context.Context, amount float64) error {
	return t.invoke(ctx, action.Forward(amount))
}

// MoveTo turns the turtle towards the point passed and moves it there.
func (t *Turtle) MoveTo(ctx context.Context, x, y float64) error {
	return t.invoke(ctx, action.MoveTo(x, y))
}

// TurnLeft rotates the turtle counter-clockwise on screen.
func (t *Turtle) TurnLeft(ctx context.Context, angle float64) error {
	return t.invoke(ctx, action.Turn(-t.AnglePolicy().ToRadians(angle)))
}

// TurnRight rotates the turtle clockwise on screen.
func (t *Turtle) TurnRight(ctx context.Context, angle float64) error {
	return t.invoke(ctx, action.Turn(t.AnglePolicy().ToRadians(angle)))
}

// SetHeading rotates the turtle onto the heading passed along the shortest direction.
func (t *Turtle) SetHeading(ctx context.Context, heading float64) error {
	return t.invoke(ctx, action.Head(t.AnglePolicy().ToRadians(heading)))
}

// LookAt rotates the turtle so that it faces the point passed.
func (t *Turtle) LookAt(ctx context.Context, x, y float64) error {
	return t.invoke(ctx, action.LookAt(x, y))
}

// Pause keeps the turtle still for the amount of simulated seconds passed, counting down in its status.
func (t *Turtle) Pause(ctx context.Context, seconds float64) error {
	return t.invoke(ctx, action.Pause(seconds, true))
}

// PauseQuietly keeps the turtle still without touching its status.
func (t *Turtle) PauseQuietly(ctx context.Context, seconds float64) error {
	return t.invoke(ctx, action.Pause(seconds, false))
}

// Await blocks until every action the turtle was given has completed.
func (t *Turtle) Await(ctx context.Context) error {
	return t.app.sim.InvokeAndWait(ctx, action.Empty(), t.handle)
}

// Snapshot returns a copy of the turtle's state.
func (t *Turtle) Snapshot() (entity.State, error) {
	return t.app.sim.Snapshot(t.handle)
}

// view reads the turtle's state. A closed turtle reads as its zero state.
func (t *Turtle) view(fn func(st *entity.State)) {
	if err := t.app.sim.View(t.handle, fn); err != nil {
		t.app.log.Debugf("turtle %d: %v", t.handle, err)
	}
}

func (t *Turtle) update(fn func(st *entity.State) error) error {
	return t.app.sim.Update(t.handle, fn)
}

// Location returns the position of the turtle on the canvas.
func (t *Turtle) Location() (loc mgl64.Vec2) {
	t.view(func(st *entity.State) { loc = st.Location })
	return loc
}

// X returns the horizontal position of the turtle.
func (t *Turtle) X() float64 { return t.Location().X() }

// Y returns the vertical position of the turtle.
func (t *Turtle) Y() float64 { return t.Location().Y() }

// Heading returns the direction the turtle faces in the turtle's angle unit.
func (t *Turtle) Heading() (heading float64) {
	t.view(func(st *entity.State) { heading = st.Heading })
	return t.AnglePolicy().FromRadians(heading)
}

// MovementSpeed returns the speed of the turtle in pixels per second.
func (t *Turtle) MovementSpeed() (speed float64) {
	t.view(func(st *entity.State) { speed = st.MovementSpeed })
	return speed
}

// TurningSpeed returns the turning speed of the turtle in angle units per second.
func (t *Turtle) TurningSpeed() (speed float64) {
	t.view(func(st *entity.State) { speed = st.TurningSpeed })
	return t.AnglePolicy().FromRadians(speed)
}

// Size returns the thickness of the pen.
func (t *Turtle) Size() (size float64) {
	t.view(func(st *entity.State) { size = st.Thickness })
	return size
}

// Color returns the colour of the pen.
func (t *Turtle) Color() (c color.RGBA) {
	t.view(func(st *entity.State) { c = st.Color })
	return c
}

// PathType returns how the corners of the turtle's trail are drawn.
func (t *Turtle) PathType() (p entity.PathType) {
	t.view(func(st *entity.State) { p = st.PathType })
	return p
}

// IsPenDown returns true if the turtle draws a trail as it moves.
func (t *Turtle) IsPenDown() (down bool) {
	t.view(func(st *entity.State) { down = st.PenDown })
	return down
}

// Status returns the text shown next to the turtle.
func (t *Turtle) Status() (status string) {
	t.view(func(st *entity.State) { status = st.Status })
	return status
}

// SetMovementSpeed sets the speed of the turtle in pixels per second.
func (t *Turtle) SetMovementSpeed(pixelsPerSecond float64) error {
	return t.update(func(st *entity.State) error {
		return st.SetMovementSpeed(pixelsPerSecond)
	})
}

// SetTurningSpeed sets the turning speed of the turtle in angle units per second.
func (t *Turtle) SetTurningSpeed(anglePerSecond float64) error {
	radians := t.AnglePolicy().ToRadians(anglePerSecond)
	return t.update(func(st *entity.State) error {
		return st.SetTurningSpeed(radians)
	})
}

// SetSize sets the thickness of the pen.
func (t *Turtle) SetSize(thickness float64) error {
	if math.IsNaN(thickness) || math.IsInf(thickness, 0) || thickness <= 0 {
		return oerror.ErrInvalidSize
	}
	return t.update(func(st *entity.State) error {
		st.Thickness = thickness
		return nil
	})
}

// SetColor sets the colour of the pen.
func (t *Turtle) SetColor(c color.Color) error {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	return t.update(func(st *entity.State) error {
		st.Color = rgba
		return nil
	})
}

// SetPathType sets how the corners of the turtle's trail are drawn.
func (t *Turtle) SetPathType(p entity.PathType) error {
	return t.update(func(st *entity.State) error {
		st.PathType = p
		return nil
	})
}

// PenUp stops the turtle from drawing a trail.
func (t *Turtle) PenUp() error {
	return t.setPen(false)
}

// PenDown makes the turtle draw a trail wherever it moves.
func (t *Turtle) PenDown() error {
	return t.setPen(true)
}

func (t *Turtle) setPen(down bool) error {
	return t.update(func(st *entity.State) error {
		st.PenDown = down
		return nil
	})
}

// SetStatus sets the text shown next to the turtle.
func (t *Turtle) SetStatus(status string) error {
	return t.update(func(st *entity.State) error {
		st.Status = status
		return nil
	})
}

// Reset restores every property of the turtle to its default and moves it back to the origin.
func (t *Turtle) Reset() error {
	return t.app.sim.Reset(t.handle)
}

// StartFillShape starts recording the points the turtle visits as a polygon.
func (t *Turtle) StartFillShape() error {
	return t.update(func(st *entity.State) error {
		if st.Filling {
			return oerror.ErrAlreadyFilling
		}
		st.Filling = true
		st.FillShape = append(st.FillShape[:0], st.Location)
		return nil
	})
}

// EndFillShape completes the polygon started with StartFillShape and returns it. Listeners receive
// EventFill once the shape is complete.
func (t *Turtle) EndFillShape() ([]mgl64.Vec2, error) {
	var shape []mgl64.Vec2
	err := t.update(func(st *entity.State) error {
		if !st.Filling {
			return oerror.ErrNotFilling
		}
		shape = append([]mgl64.Vec2(nil), st.FillShape...)
		st.Filling = false
		st.FillShape = st.FillShape[:0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.FireEvent(EventFill)
	return shape, nil
}

// AbandonFillShape discards the polygon started with StartFillShape.
func (t *Turtle) AbandonFillShape() error {
	return t.update(func(st *entity.State) error {
		if !st.Filling {
			return oerror.ErrNotFilling
		}
		st.Filling = false
		st.FillShape = st.FillShape[:0]
		return nil
	})
}

// Properties returns the properties of the turtle in display order.
func (t *Turtle) Properties() *orderedmap.OrderedMap[string, any] {
	props := orderedmap.NewOrderedMap[string, any]()
	st, err := t.Snapshot()
	props.Set("handle", t.handle)
	if err != nil {
		props.Set("error", err.Error())
		return props
	}
	policy := t.AnglePolicy()
	props.Set("x", omath.Round64(st.Location.X(), 2))
	props.Set("y", omath.Round64(st.Location.Y(), 2))
	props.Set("heading", omath.Round64(policy.FromRadians(st.Heading), 2))
	props.Set("movement speed", st.MovementSpeed)
	props.Set("turning speed", omath.Round64(policy.FromRadians(st.TurningSpeed), 2))
	props.Set("angle policy", policy.String())
	props.Set("size", st.Thickness)
	props.Set("color", fmt.Sprintf("#%02x%02x%02x%02x", st.Color.R, st.Color.G, st.Color.B, st.Color.A))
	props.Set("path type", st.PathType.String())
	props.Set("pen down", st.PenDown)
	props.Set("filling", st.Filling)
	props.Set("status", st.Status)
	return props
}

// Close removes the turtle from its application. The turtle cannot be used afterwards, and closing it
// again returns oerror.ErrUnknownEntity.
func (t *Turtle) Close() error {
	t.app.removeTurtle(t)
	return t.app.sim.Deregister(t.handle)
}
