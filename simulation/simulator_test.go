package simulation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oomph-ac/turtle/action"
	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/omath"
	"go.uber.org/atomic"
)

type countingRenderer struct {
	requests atomic.Int64
}

func (r *countingRenderer) RequestRedraw(entity.Handle, mgl64.Vec2, mgl64.Vec2) {
	r.requests.Inc()
}

func newSimulator(t *testing.T, conf Config) *Simulator {
	t.Helper()
	s, err := conf.New()
	if err != nil {
		t.Fatalf("failed to create simulator: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func location(t *testing.T, s *Simulator, h entity.Handle) mgl64.Vec2 {
	t.Helper()
	snap, err := s.Snapshot(h)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	return snap.Location
}

func TestEmptyReturnsImmediately(t *testing.T) {
	s := newSimulator(t, Config{StartPaused: true})
	h := s.Register()

	start := time.Now()
	if err := s.InvokeAndWait(context.Background(), action.Empty(), h); err != nil {
		t.Fatalf("empty action failed: %v", err)
	}
	if d := time.Since(start); d > 50*time.Millisecond {
		t.Fatalf("empty action blocked for %v while paused", d)
	}
	if loc := location(t, s, h); loc != (mgl64.Vec2{}) {
		t.Fatalf("empty action moved the entity to %v", loc)
	}
	if snap, _ := s.Snapshot(h); snap.History.Size() != 0 {
		t.Fatalf("empty action recorded %d history samples", snap.History.Size())
	}
}

func TestFastPath(t *testing.T) {
	r := &countingRenderer{}
	s := newSimulator(t, Config{Renderer: r})
	h := s.Register()

	if err := s.InvokeAndWait(context.Background(), action.Forward(0.001), h); err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if loc := location(t, s, h); !loc.ApproxEqualThreshold(mgl64.Vec2{0.001, 0}, 1e-9) {
		t.Fatalf("unexpected location %v", loc)
	}
	stats := s.Stats()
	if stats.FastPath != 1 || stats.SlowPath != 0 {
		t.Fatalf("expected one fast path invocation, got %+v", stats)
	}
	if r.requests.Load() != 1 {
		t.Fatalf("expected one redraw request, got %d", r.requests.Load())
	}
}

func TestForwardOverTicks(t *testing.T) {
	r := &countingRenderer{}
	s := newSimulator(t, Config{Renderer: r})
	h := s.Register()

	start := time.Now()
	if err := s.InvokeAndWait(context.Background(), action.Forward(300), h); err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 1400*time.Millisecond || elapsed > 3*time.Second {
		t.Fatalf("expected forward of 300px to take about 1.5s, took %v", elapsed)
	}
	if loc := location(t, s, h); !loc.ApproxEqualThreshold(mgl64.Vec2{300, 0}, 1e-6) {
		t.Fatalf("expected (300, 0), got %v", loc)
	}

	stats := s.Stats()
	if stats.SlowPath != 1 || stats.Ticks < 2 {
		t.Fatalf("expected the action to be interpolated, got %+v", stats)
	}
	if r.requests.Load() < 2 {
		t.Fatalf("expected a redraw for every step, got %d", r.requests.Load())
	}
	snap, _ := s.Snapshot(h)
	if snap.History.Size() == 0 {
		t.Fatalf("expected steps to be recorded in the history")
	}
}

func TestTurnHalfCircle(t *testing.T) {
	s := newSimulator(t, Config{})
	h := s.Register()

	start := time.Now()
	if err := s.InvokeAndWait(context.Background(), action.Turn(math.Pi), h); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 600*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("expected half a turn to take about 0.667s, took %v", elapsed)
	}
	snap, _ := s.Snapshot(h)
	if !omath.ApproxZero(omath.TurnAmount(snap.Heading, math.Pi)) {
		t.Fatalf("expected heading π, got %v", snap.Heading)
	}
}

func TestAnimationSpeedShortensActions(t *testing.T) {
	s := newSimulator(t, Config{AnimationSpeed: 10})
	h := s.Register()

	start := time.Now()
	if err := s.InvokeAndWait(context.Background(), action.Forward(300), h); err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected a tenfold speed up, took %v", elapsed)
	}
}

func TestPauseFreezesProgress(t *testing.T) {
	s := newSimulator(t, Config{})
	h := s.Register()

	errs := make(chan error, 1)
	go func() {
		errs <- s.InvokeAndWait(context.Background(), action.Forward(100), h)
	}()

	time.Sleep(150 * time.Millisecond)
	s.Settings().Pause()
	time.Sleep(20 * time.Millisecond)
	frozen := location(t, s, h)
	if frozen.X() <= 0 || frozen.X() >= 100 {
		t.Fatalf("expected the entity to be mid-way when pausing, got %v", frozen)
	}

	time.Sleep(300 * time.Millisecond)
	if loc := location(t, s, h); loc != frozen {
		t.Fatalf("entity moved from %v to %v while paused", frozen, loc)
	}
	select {
	case err := <-errs:
		t.Fatalf("action returned while paused: %v", err)
	default:
	}

	s.Settings().Unpause()
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("forward failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("action did not resume after unpausing")
	}
	if loc := location(t, s, h); !loc.ApproxEqualThreshold(mgl64.Vec2{100, 0}, 1e-6) {
		t.Fatalf("expected (100, 0), got %v", loc)
	}
}

func TestEntitiesDoNotBlockEachOther(t *testing.T) {
	s := newSimulator(t, Config{})
	a, b := s.Register(), s.Register()

	go s.InvokeAndWait(context.Background(), action.Forward(200), a)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if err := s.InvokeAndWait(context.Background(), action.Forward(0.001), b); err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Fatalf("entity b was blocked by entity a for %v", d)
	}
}

func TestSameEntityIsSerialised(t *testing.T) {
	s := newSimulator(t, Config{})
	h := s.Register()

	var wg sync.WaitGroup
	wg.Add(2)
	start := time.Now()
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			if err := s.InvokeAndWait(context.Background(), action.Forward(50), h); err != nil {
				t.Errorf("forward failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if d := time.Since(start); d < 450*time.Millisecond {
		t.Fatalf("expected two 0.25s actions to run one after another, took %v", d)
	}
	if loc := location(t, s, h); !loc.ApproxEqualThreshold(mgl64.Vec2{100, 0}, 1e-6) {
		t.Fatalf("expected (100, 0), got %v", loc)
	}
}

func TestCancellationKeepsAppliedState(t *testing.T) {
	s := newSimulator(t, Config{})
	h := s.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.InvokeAndWait(ctx, action.Forward(1000), h)
	if !errors.Is(err, oerror.ErrCancelled) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a cancellation error, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	stopped := location(t, s, h)
	if stopped.X() <= 0 || stopped.X() >= 1000 {
		t.Fatalf("expected partial progress to be kept, got %v", stopped)
	}
	time.Sleep(50 * time.Millisecond)
	if loc := location(t, s, h); loc != stopped {
		t.Fatalf("cancelled action kept moving from %v to %v", stopped, loc)
	}

	if err := s.InvokeAndWait(context.Background(), action.Forward(0.001), h); err != nil {
		t.Fatalf("entity unusable after cancellation: %v", err)
	}
	if s.Stats().Cancelled != 1 {
		t.Fatalf("expected one cancellation, got %d", s.Stats().Cancelled)
	}
}

func TestCancelledWhileSpinning(t *testing.T) {
	s := newSimulator(t, Config{MaxBlocking: time.Second})
	h := s.Register()

	// 1.6 pixels take 8ms at the default speed: long enough to spin, short enough for the fast path.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Millisecond)
	defer cancel()
	err := s.InvokeAndWait(ctx, action.Forward(1.6), h)
	if !errors.Is(err, oerror.ErrCancelled) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a cancellation error, got %v", err)
	}
	if stats := s.Stats(); stats.FastPath != 1 || stats.SlowPath != 0 || stats.Cancelled != 1 {
		t.Fatalf("expected one cancelled fast path invocation, got %+v", stats)
	}
	if loc := location(t, s, h); !loc.ApproxEqualThreshold(mgl64.Vec2{1.6, 0}, 1e-9) {
		t.Fatalf("expected the applied move to be kept, got %v", loc)
	}
}

func TestNonFiniteArgumentsAreRejected(t *testing.T) {
	s := newSimulator(t, Config{})
	h := s.Register()

	for _, a := range []action.Action{
		action.Forward(math.NaN()),
		action.Forward(math.Inf(-1)),
		action.Turn(math.Inf(1)),
		action.Head(math.NaN()),
		action.MoveTo(math.NaN(), 0),
		action.LookAt(0, math.Inf(1)),
		action.Pause(math.NaN(), true),
	} {
		if err := s.InvokeAndWait(context.Background(), a, h); !errors.Is(err, oerror.ErrInvalidArgument) {
			t.Fatalf("expected %s to be rejected, got %v", action.Describe(a), err)
		}
	}
	snap, err := s.Snapshot(h)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.Location != (mgl64.Vec2{}) || snap.Heading != 0 || snap.History.Size() != 0 {
		t.Fatalf("rejected actions changed the entity: %v heading %v", snap.Location, snap.Heading)
	}
}

func TestCancelledBeforeAcquiring(t *testing.T) {
	s := newSimulator(t, Config{})
	h := s.Register()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.InvokeAndWait(ctx, action.Forward(10), h); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if loc := location(t, s, h); loc != (mgl64.Vec2{}) {
		t.Fatalf("cancelled action moved the entity to %v", loc)
	}
}

func TestUnknownEntity(t *testing.T) {
	s := newSimulator(t, Config{})
	if err := s.InvokeAndWait(context.Background(), action.Empty(), entity.Handle(999)); !errors.Is(err, oerror.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}

	h := s.Register()
	if !s.Registered(h) || len(s.Handles()) != 1 {
		t.Fatalf("expected handle %d to be registered", h)
	}
	if err := s.Deregister(h); err != nil {
		t.Fatalf("deregister failed: %v", err)
	}
	if err := s.Deregister(h); !errors.Is(err, oerror.ErrUnknownEntity) {
		t.Fatalf("expected second deregister to fail, got %v", err)
	}
	if _, err := s.Snapshot(h); !errors.Is(err, oerror.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity after deregistering, got %v", err)
	}
}

func TestRenderContextPanics(t *testing.T) {
	s := newSimulator(t, Config{})
	h := s.Register()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected invoking from the render loop to panic")
		}
	}()
	s.InvokeAndWait(RenderContext(context.Background()), action.Empty(), h)
}

type bogusAction struct {
	action.Action
}

func TestActionPanicIsReturned(t *testing.T) {
	s := newSimulator(t, Config{})
	h := s.Register()

	err := s.InvokeAndWait(context.Background(), bogusAction{}, h)
	var pe *oerror.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a panic error, got %v", err)
	}
	if s.Stats().Panics != 1 {
		t.Fatalf("expected one recorded panic, got %d", s.Stats().Panics)
	}
	if err := s.InvokeAndWait(context.Background(), action.Empty(), h); err != nil {
		t.Fatalf("entity unusable after a panic: %v", err)
	}
}

func TestStateCreationErrorIsNotCached(t *testing.T) {
	fail := atomic.NewBool(true)
	s := newSimulator(t, Config{NewState: func(entity.Handle) (*entity.State, error) {
		if fail.Load() {
			return nil, errors.New("no state today")
		}
		return entity.NewState(4), nil
	}})
	h := s.Register()

	if err := s.InvokeAndWait(context.Background(), action.Empty(), h); err == nil {
		t.Fatalf("expected state creation error")
	}
	fail.Store(false)
	if err := s.InvokeAndWait(context.Background(), action.Empty(), h); err != nil {
		t.Fatalf("expected state creation to be retried, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	s := newSimulator(t, Config{})
	h := s.Register()

	if err := s.Update(h, func(st *entity.State) error {
		return st.SetMovementSpeed(0)
	}); !errors.Is(err, oerror.ErrInvalidSpeed) {
		t.Fatalf("expected ErrInvalidSpeed, got %v", err)
	}
	if err := s.Update(h, func(st *entity.State) error {
		st.Location = mgl64.Vec2{5, 5}
		return nil
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := s.Reset(h); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if loc := location(t, s, h); loc != (mgl64.Vec2{}) {
		t.Fatalf("expected reset location, got %v", loc)
	}
}

func TestCloseReleasesWaiters(t *testing.T) {
	s, err := Config{}.New()
	if err != nil {
		t.Fatalf("failed to create simulator: %v", err)
	}
	h := s.Register()

	errs := make(chan error, 1)
	go func() {
		errs <- s.InvokeAndWait(context.Background(), action.Forward(1000), h)
	}()
	time.Sleep(50 * time.Millisecond)
	s.Close()
	s.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, oerror.ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter was not released on close")
	}
	if err := s.InvokeAndWait(context.Background(), action.Empty(), h); !errors.Is(err, oerror.ErrClosed) {
		t.Fatalf("expected ErrClosed after closing, got %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	for _, conf := range []Config{
		{Workers: -1},
		{Step: -time.Millisecond},
		{AnimationSpeed: math.NaN()},
		{AnimationSpeed: -2},
		{Step: 10 * time.Millisecond, MaxStutter: time.Millisecond},
	} {
		if _, err := conf.New(); !errors.Is(err, oerror.ErrInvalidConfig) {
			t.Fatalf("expected %+v to be rejected, got %v", conf, err)
		}
	}

	s := newSimulator(t, Config{AnimationSpeed: 0})
	if speed := s.Settings().AnimationSpeed(); speed != 1 {
		t.Fatalf("expected a zero animation speed to mean 1, got %v", speed)
	}
}
