package turtle

import (
	"context"
	"errors"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oomph-ac/turtle/canvas"
	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/settings"
	"github.com/sasha-s/go-deadlock"
)

func newApp(t *testing.T) *Application {
	t.Helper()
	s := settings.DefaultSettings()
	s.Simulation.Workers = 2
	s.Simulation.AnimationSpeed = 10
	app, err := New(nil, s)
	if err != nil {
		t.Fatalf("failed to create application: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

type recordingListener struct {
	mu     deadlock.Mutex
	events []string
}

func (l *recordingListener) HandleTurtleEvent(_ *Turtle, event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func TestTriangle(t *testing.T) {
	app := newApp(t)
	listener := &recordingListener{}

	var shape []mgl64.Vec2
	objective := SingleTurtleObjective(func(ctx context.Context, tt *Turtle, _ *Application, _ []any) error {
		tt.AddListener(listener)
		if err := tt.Pause(ctx, 0.5); err != nil {
			return err
		}
		if err := tt.StartFillShape(); err != nil {
			return err
		}
		for i, c := range []color.Color{color.RGBA{G: 0xff, A: 0xff}, color.RGBA{B: 0xff, A: 0xff}, color.RGBA{R: 0xff, A: 0xff}} {
			if err := tt.SetColor(c); err != nil {
				return err
			}
			if err := tt.MoveForward(ctx, 300); err != nil {
				return err
			}
			turn := 120.0
			if i == 2 {
				turn = 150
			}
			if err := tt.TurnLeft(ctx, turn); err != nil {
				return err
			}
		}
		var err error
		if shape, err = tt.EndFillShape(); err != nil {
			return err
		}
		if err := tt.PenUp(); err != nil {
			return err
		}
		if err := tt.MoveForward(ctx, 150); err != nil {
			return err
		}
		if err := tt.SetStatus("I'm awesome!"); err != nil {
			return err
		}
		return tt.SetHeading(ctx, 0)
	})

	if err := app.RunObjective(context.Background(), objective); err != nil {
		t.Fatalf("objective failed: %v", err)
	}

	if len(shape) != 4 {
		t.Fatalf("expected a closed triangle of 4 points, got %v", shape)
	}
	corner := mgl64.Vec2{150, -300 * math.Sin(math.Pi/3)}
	if !shape[2].ApproxEqualThreshold(corner, 1e-3) || !shape[3].ApproxEqualThreshold(mgl64.Vec2{}, 1e-3) {
		t.Fatalf("unexpected triangle %v", shape)
	}
	if events := listener.Events(); len(events) != 1 || events[0] != EventFill {
		t.Fatalf("expected one fill event, got %v", events)
	}

	tt := app.Turtles()[0]
	if tt.IsPenDown() || tt.Status() != "I'm awesome!" {
		t.Fatalf("unexpected pen %v or status %q", tt.IsPenDown(), tt.Status())
	}
	if math.Abs(tt.Heading()) > 1e-6 {
		t.Fatalf("expected heading 0, got %v", tt.Heading())
	}
	if tt.Color() != (color.RGBA{R: 0xff, A: 0xff}) {
		t.Fatalf("unexpected colour %v", tt.Color())
	}
}

func TestAnglePolicy(t *testing.T) {
	app := newApp(t)
	tt := app.NewTurtle()

	if err := tt.TurnRight(context.Background(), 90); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if math.Abs(tt.Heading()-90) > 1e-6 {
		t.Fatalf("expected heading 90°, got %v", tt.Heading())
	}
	tt.SetAnglePolicy(Radians)
	if math.Abs(tt.Heading()-math.Pi/2) > 1e-6 {
		t.Fatalf("expected heading π/2, got %v", tt.Heading())
	}
	if err := tt.SetTurningSpeed(math.Pi); err != nil || math.Abs(tt.TurningSpeed()-math.Pi) > 1e-9 {
		t.Fatalf("expected turning speed π, got %v (%v)", tt.TurningSpeed(), err)
	}
	if err := tt.SetTurningSpeed(0); !errors.Is(err, oerror.ErrInvalidSpeed) {
		t.Fatalf("expected ErrInvalidSpeed, got %v", err)
	}

	if _, err := ParseAnglePolicy("gradians"); !errors.Is(err, oerror.ErrInvalidConfig) {
		t.Fatalf("expected unknown policy to be rejected, got %v", err)
	}
}

func TestMoveTo(t *testing.T) {
	app := newApp(t)
	tt := app.NewTurtle()

	if err := tt.MoveTo(context.Background(), 30, 40); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if tt.Location() != (mgl64.Vec2{30, 40}) || tt.X() != 30 || tt.Y() != 40 {
		t.Fatalf("expected (30, 40), got %v", tt.Location())
	}
	if err := tt.LookAt(context.Background(), 30, 100); err != nil {
		t.Fatalf("look at failed: %v", err)
	}
	if math.Abs(tt.Heading()-90) > 1e-6 {
		t.Fatalf("expected heading 90°, got %v", tt.Heading())
	}
}

func TestNonFiniteMotionIsRejected(t *testing.T) {
	app := newApp(t)
	tt := app.NewTurtle()
	ctx := context.Background()

	if err := tt.MoveForward(ctx, math.NaN()); !errors.Is(err, oerror.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := tt.TurnRight(ctx, math.Inf(1)); !errors.Is(err, oerror.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err := tt.MoveTo(ctx, math.Inf(-1), 0); !errors.Is(err, oerror.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if loc := tt.Location(); loc != (mgl64.Vec2{}) || tt.Heading() != 0 {
		t.Fatalf("rejected motion changed the turtle: %v heading %v", loc, tt.Heading())
	}
}

func TestFillShapeErrors(t *testing.T) {
	app := newApp(t)
	tt := app.NewTurtle()

	if err := tt.AbandonFillShape(); !errors.Is(err, oerror.ErrNotFilling) {
		t.Fatalf("expected ErrNotFilling, got %v", err)
	}
	if _, err := tt.EndFillShape(); !errors.Is(err, oerror.ErrNotFilling) {
		t.Fatalf("expected ErrNotFilling, got %v", err)
	}
	if err := tt.StartFillShape(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := tt.StartFillShape(); !errors.Is(err, oerror.ErrAlreadyFilling) {
		t.Fatalf("expected ErrAlreadyFilling, got %v", err)
	}
	if err := tt.AbandonFillShape(); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
}

func TestSetters(t *testing.T) {
	app := newApp(t)
	tt := app.NewTurtle()

	if err := tt.SetSize(0); !errors.Is(err, oerror.ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	if err := tt.SetSize(3); err != nil || tt.Size() != 3 {
		t.Fatalf("expected size 3, got %v (%v)", tt.Size(), err)
	}
	if err := tt.SetPathType(entity.PathSharp); err != nil || tt.PathType() != entity.PathSharp {
		t.Fatalf("expected sharp path, got %v (%v)", tt.PathType(), err)
	}
	if err := tt.SetMovementSpeed(-5); !errors.Is(err, oerror.ErrInvalidSpeed) {
		t.Fatalf("expected ErrInvalidSpeed, got %v", err)
	}
	if err := tt.SetMovementSpeed(50); err != nil || tt.MovementSpeed() != 50 {
		t.Fatalf("expected speed 50, got %v (%v)", tt.MovementSpeed(), err)
	}
	if err := tt.Reset(); err != nil || tt.MovementSpeed() != entity.DefaultMovementSpeed || tt.Size() != entity.DefaultThickness {
		t.Fatalf("expected reset defaults, got %v %v (%v)", tt.MovementSpeed(), tt.Size(), err)
	}
}

func TestProperties(t *testing.T) {
	app := newApp(t)
	tt := app.NewTurtle()

	props := tt.Properties()
	keys := props.Keys()
	if len(keys) < 3 || keys[0] != "handle" || keys[1] != "x" || keys[2] != "y" {
		t.Fatalf("unexpected property order %v", keys)
	}
	if c, _ := props.Get("color"); c != "#000000ff" {
		t.Fatalf("unexpected colour property %v", c)
	}
}

func TestListeners(t *testing.T) {
	app := newApp(t)
	tt := app.NewTurtle()
	l := &recordingListener{}

	tt.AddListener(l)
	tt.AddListener(l)
	tt.FireEvent("hello")
	tt.RemoveListener(l)
	tt.FireEvent("ignored")

	if events := l.Events(); len(events) != 1 || events[0] != "hello" {
		t.Fatalf("expected a single hello event, got %v", events)
	}
}

func TestCloseTurtle(t *testing.T) {
	app := newApp(t)
	a, b := app.NewTurtle(), app.NewTurtle()
	if len(app.Turtles()) != 2 {
		t.Fatalf("expected two turtles")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := a.Close(); !errors.Is(err, oerror.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
	if err := a.MoveForward(context.Background(), 10); !errors.Is(err, oerror.ErrUnknownEntity) {
		t.Fatalf("expected closed turtle to be unusable, got %v", err)
	}
	if turtles := app.Turtles(); len(turtles) != 1 || turtles[0] != b {
		t.Fatalf("expected only the second turtle to remain")
	}
	if tracked := app.Canvas().Tracked(); len(tracked) != 1 || tracked[0] != b.Handle() {
		t.Fatalf("expected only the second turtle on the canvas, got %v", tracked)
	}
}

type failingObjective struct{}

func (failingObjective) RunTurtle(_ context.Context, index int, _ *Application, _ []*Turtle, _ []any) error {
	if index == 0 {
		panic("objective bug")
	}
	return errors.New("objective gave up")
}

func (failingObjective) TurtleCount() int {
	return 2
}

func TestObjectiveErrorsAreJoined(t *testing.T) {
	app := newApp(t)
	err := app.RunObjective(context.Background(), failingObjective{})

	var pe *oerror.PanicError
	if !errors.As(err, &pe) || pe.Value != "objective bug" {
		t.Fatalf("expected the panic to be returned, got %v", err)
	}
	if len(app.Turtles()) != 2 {
		t.Fatalf("expected the objective's turtles to be created")
	}
}

func TestObjectiveCancellation(t *testing.T) {
	app := newApp(t)
	tt := app.NewTurtle()

	ctx, cancel := context.WithCancel(context.Background())
	run := app.StartObjective(ctx, SingleTurtleObjective(func(ctx context.Context, t *Turtle, _ *Application, _ []any) error {
		return t.MoveForward(ctx, 1e6)
	}), []*Turtle{tt})

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-run.Done():
	case <-time.After(time.Second):
		t.Fatalf("objective did not stop after cancellation")
	}
	if err := run.Wait(); !errors.Is(err, oerror.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestRender(t *testing.T) {
	app := newApp(t)
	tt := app.NewTurtle()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go tt.MoveForward(context.Background(), 200)

	var (
		frames  int
		sprites int
	)
	if err := app.Render(ctx, func(f canvas.Frame) {
		frames++
		sprites += len(f.Sprites)
	}); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if frames == 0 || sprites == 0 {
		t.Fatalf("expected frames with sprites, got %d frames and %d sprites", frames, sprites)
	}
}
