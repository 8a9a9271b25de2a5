// Package turtle runs turtle programs: objectives that drive simulated turtles across a shared canvas.
// Every motion is animated in real time, scaled by the simulation speed, while a render loop turns the
// state of all turtles into frames.
package turtle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/oomph-ac/turtle/canvas"
	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/settings"
	"github.com/oomph-ac/turtle/simulation"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

// Application owns the simulator, the canvas and every turtle created through it.
type Application struct {
	id       uuid.UUID
	log      *logrus.Logger
	settings settings.Settings
	policy   AnglePolicy

	sim    *simulation.Simulator
	canvas *canvas.Canvas
	stream *canvas.Stream

	turtleMu deadlock.Mutex
	turtles  map[entity.Handle]*Turtle

	closeOnce sync.Once
}

// New creates an application from the settings passed. If a stream address is configured, a websocket
// stream is created that can be served with Stream.
func New(log *logrus.Logger, s settings.Settings) (*Application, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	policy, err := ParseAnglePolicy(s.Turtle.AnglePolicy)
	if err != nil {
		return nil, err
	}

	c := canvas.New(s.Canvas.Width, s.Canvas.Height, log)
	sim, err := s.SimulatorConfig(c, log).New()
	if err != nil {
		return nil, err
	}

	app := &Application{
		id:       uuid.New(),
		log:      log,
		settings: s,
		policy:   policy,
		sim:      sim,
		canvas:   c,
		turtles:  make(map[entity.Handle]*Turtle),
	}
	if s.Debug.StreamAddr != "" {
		app.stream = canvas.NewStream(sim.Settings(), log)
	}
	log.Infof("application %s created (%dx%d canvas, %d workers)", app.id, s.Canvas.Width, s.Canvas.Height, s.Simulation.Workers)
	return app, nil
}

// ID returns the unique id of this application run.
func (a *Application) ID() uuid.UUID {
	return a.id
}

func (a *Application) Simulator() *simulation.Simulator {
	return a.sim
}

func (a *Application) Canvas() *canvas.Canvas {
	return a.canvas
}

// Stream returns the websocket frame stream, or nil if no stream address is configured.
func (a *Application) Stream() *canvas.Stream {
	return a.stream
}

func (a *Application) Settings() settings.Settings {
	return a.settings
}

// NewTurtle creates a turtle at the origin and puts it on top of the canvas.
func (a *Application) NewTurtle() *Turtle {
	t := &Turtle{app: a, handle: a.sim.Register()}
	t.SetAnglePolicy(a.policy)

	a.turtleMu.Lock()
	a.turtles[t.handle] = t
	a.turtleMu.Unlock()

	a.canvas.Track(t.handle)
	return t
}

// Turtles returns every open turtle of the application.
func (a *Application) Turtles() []*Turtle {
	a.turtleMu.Lock()
	defer a.turtleMu.Unlock()

	turtles := make([]*Turtle, 0, len(a.turtles))
	for _, h := range a.sim.Handles() {
		if t, ok := a.turtles[h]; ok {
			turtles = append(turtles, t)
		}
	}
	return turtles
}

func (a *Application) removeTurtle(t *Turtle) {
	a.turtleMu.Lock()
	delete(a.turtles, t.handle)
	a.turtleMu.Unlock()
	a.canvas.Untrack(t.handle)
}

// ObjectiveRun is an objective started with StartObjective.
type ObjectiveRun struct {
	done chan struct{}
	err  error
}

// Done is closed once every turtle of the objective has returned.
func (r *ObjectiveRun) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until every turtle of the objective has returned and returns their errors joined.
func (r *ObjectiveRun) Wait() error {
	<-r.done
	return r.err
}

// StartObjective runs the objective with the turtles passed, each on its own goroutine.
func (a *Application) StartObjective(ctx context.Context, o Objective, turtles []*Turtle, args ...any) *ObjectiveRun {
	run := &ObjectiveRun{done: make(chan struct{})}
	errs := make([]error, len(turtles))
	name := fmt.Sprintf("%T", o)

	var wg sync.WaitGroup
	wg.Add(len(turtles))
	for i := range turtles {
		go func() {
			defer wg.Done()
			errs[i] = a.runTurtle(ctx, name, o, i, turtles, args)
		}()
	}
	go func() {
		wg.Wait()
		run.err = errors.Join(errs...)
		close(run.done)
	}()
	return run
}

func (a *Application) runTurtle(ctx context.Context, name string, o Objective, index int, turtles []*Turtle, args []any) (err error) {
	log := a.log.WithFields(logrus.Fields{"run": a.id.String(), "objective": name, "turtle": index})
	defer func() {
		if v := recover(); v != nil {
			err = &oerror.PanicError{Value: v, Stack: debug.Stack()}
			log.Errorf("objective panicked: %v", v)

			hub := sentry.CurrentHub().Clone()
			hub.Recover(oerror.New("objective %s panicked on turtle %d: %v", name, index, v))
			hub.Flush(time.Second * 5)
		}
	}()

	log.Debugf("objective started")
	if err = o.RunTurtle(ctx, index, a, turtles, args); err != nil {
		log.Warnf("objective failed: %v", err)
		return err
	}
	log.Debugf("objective finished")
	return nil
}

// RunObjective creates the turtles the objective needs, runs it and waits for it to finish.
func (a *Application) RunObjective(ctx context.Context, o Objective, args ...any) error {
	turtles := make([]*Turtle, o.TurtleCount())
	for i := range turtles {
		turtles[i] = a.NewTurtle()
	}
	return a.StartObjective(ctx, o, turtles, args...).Wait()
}

// Render runs the render loop until ctx is done. Every frame is published to the stream, if there is one,
// and passed to sink if it is not nil.
func (a *Application) Render(ctx context.Context, sink func(canvas.Frame)) error {
	return a.canvas.Run(ctx, a.sim, a.settings.FrameInterval(), func(f canvas.Frame) {
		if a.stream != nil {
			a.stream.Publish(f)
		}
		if sink != nil {
			sink(f)
		}
	})
}

// Close closes every turtle, the stream and the simulator.
func (a *Application) Close() {
	a.closeOnce.Do(func() {
		for _, t := range a.Turtles() {
			_ = t.Close()
		}
		if a.stream != nil {
			a.stream.Close()
		}
		a.sim.Close()

		stats := a.sim.Stats()
		a.log.Infof("application %s closed (%d fast, %d interpolated actions, %d ticks, mean tick %.2fms ± %.2fms)",
			a.id, stats.FastPath, stats.SlowPath, stats.Ticks, stats.MeanTickInterval, stats.TickJitter)
	})
}
