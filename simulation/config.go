package simulation

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/oomph-ac/turtle/entity"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/worker"
	"github.com/sirupsen/logrus"
)

const (
	DefaultStep        = time.Millisecond
	DefaultMaxStutter  = 50 * time.Millisecond
	DefaultMaxBlocking = 50 * time.Microsecond

	// maxSpin is the longest a caller is ever kept spinning on the fast path, regardless of the
	// configured blocking threshold.
	maxSpin = 10 * time.Millisecond
)

// Config holds the values a Simulator is created with. They are fixed for the lifetime of the simulator.
// Zero values are replaced with defaults.
type Config struct {
	// Workers is the amount of goroutines that drive interpolation steps. Zero uses one per CPU.
	Workers int
	// Step is the delay between two interpolation steps of one action.
	Step time.Duration
	// MaxStutter is the largest amount of wall time credited to a single interpolation step. Steps that
	// arrive later than this, for example after a GC pause, are clamped so entities never jump.
	MaxStutter time.Duration
	// MaxBlocking is the wall time below which an action is applied at once and the caller busy-waits
	// instead of being driven by the worker pool.
	MaxBlocking time.Duration
	// HistorySize is the amount of pose samples kept per entity.
	HistorySize int

	// StartPaused makes the simulator start in the paused state.
	StartPaused bool
	// AnimationSpeed is the initial multiplier of simulated time over wall time. The zero value means 1, so
	// a zero multiplier cannot be configured here. Negative, NaN and infinite values make New fail with
	// oerror.ErrInvalidConfig, and Settings.SetAnimationSpeed rejects anything not strictly positive.
	AnimationSpeed float64

	// Renderer is notified of every change to an entity's position. NopRenderer is used if nil.
	Renderer Renderer
	// Log is the logger the simulator writes to. The standard logger is used if nil.
	Log *logrus.Logger
	// NewState creates the state of an entity the first time it is used. An error returned is passed on
	// to the caller that triggered the creation, and creation is retried on the next use.
	NewState func(h entity.Handle) (*entity.State, error)
}

// New validates the config and creates a Simulator from it.
func (conf Config) New() (*Simulator, error) {
	if err := conf.fill(); err != nil {
		return nil, err
	}

	s := &Simulator{
		conf:     conf,
		log:      conf.Log,
		settings: newSettings(conf.StartPaused, conf.AnimationSpeed),
		renderer: conf.Renderer,
		closing:  make(chan struct{}),
	}
	s.reg = newRegistry(registryShards(conf.Workers))
	s.pool = worker.New(conf.Workers, conf.Log)
	return s, nil
}

func (conf *Config) fill() error {
	if conf.Workers < 0 || conf.Step < 0 || conf.MaxStutter < 0 || conf.MaxBlocking < 0 || conf.HistorySize < 0 {
		return fmt.Errorf("%w: negative simulator values", oerror.ErrInvalidConfig)
	}
	if math.IsNaN(conf.AnimationSpeed) || math.IsInf(conf.AnimationSpeed, 0) || conf.AnimationSpeed < 0 {
		return fmt.Errorf("%w: animation speed %v", oerror.ErrInvalidConfig, conf.AnimationSpeed)
	}

	if conf.Workers == 0 {
		conf.Workers = runtime.NumCPU()
	}
	if conf.Step == 0 {
		conf.Step = DefaultStep
	}
	if conf.MaxStutter == 0 {
		conf.MaxStutter = DefaultMaxStutter
	}
	if conf.MaxBlocking == 0 {
		conf.MaxBlocking = DefaultMaxBlocking
	}
	if conf.HistorySize == 0 {
		conf.HistorySize = entity.DefaultHistorySize
	}
	if conf.AnimationSpeed == 0 {
		conf.AnimationSpeed = 1
	}
	if conf.MaxStutter < conf.Step {
		return fmt.Errorf("%w: max stutter %v is shorter than step %v", oerror.ErrInvalidConfig, conf.MaxStutter, conf.Step)
	}

	if conf.Renderer == nil {
		conf.Renderer = NopRenderer{}
	}
	if conf.Log == nil {
		conf.Log = logrus.StandardLogger()
	}
	if conf.NewState == nil {
		size := conf.HistorySize
		conf.NewState = func(entity.Handle) (*entity.State, error) {
			return entity.NewState(size), nil
		}
	}
	return nil
}

func registryShards(workers int) int {
	return max(8, workers*2)
}
