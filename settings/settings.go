package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/simulation"
	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Settings contains everything that can be configured for a turtle application.
type Settings struct {
	Simulation struct {
		// Workers is the amount of goroutines driving interpolation steps. Zero uses one per CPU.
		Workers int `toml:"workers" yaml:"workers"`
		// StepMicros is the delay between two interpolation steps in microseconds.
		StepMicros int64 `toml:"step_micros" yaml:"step_micros"`
		// MaxStutterMicros is the largest amount of time credited to a single step in microseconds.
		MaxStutterMicros int64 `toml:"max_stutter_micros" yaml:"max_stutter_micros"`
		// MaxBusyWaitMicros is the duration below which actions are applied at once.
		MaxBusyWaitMicros int64 `toml:"max_busy_wait_micros" yaml:"max_busy_wait_micros"`
		// HistorySize is the amount of pose samples kept per turtle.
		HistorySize    int     `toml:"history_size" yaml:"history_size"`
		StartPaused    bool    `toml:"start_paused" yaml:"start_paused"`
		AnimationSpeed float64 `toml:"animation_speed" yaml:"animation_speed"`
	} `toml:"simulation" yaml:"simulation"`
	Canvas struct {
		Width       int   `toml:"width" yaml:"width"`
		Height      int   `toml:"height" yaml:"height"`
		FrameMicros int64 `toml:"frame_micros" yaml:"frame_micros"`
	} `toml:"canvas" yaml:"canvas"`
	Turtle struct {
		// AnglePolicy is the unit turtles take angles in, either "degrees" or "radians".
		AnglePolicy string `toml:"angle_policy" yaml:"angle_policy"`
	} `toml:"turtle" yaml:"turtle"`
	Debug struct {
		StatsView     bool   `toml:"stats_view" yaml:"stats_view"`
		StatsViewAddr string `toml:"stats_view_addr" yaml:"stats_view_addr"`
		// StreamAddr is the address the websocket frame stream listens on. Empty disables the stream.
		StreamAddr string `toml:"stream_addr" yaml:"stream_addr"`
	} `toml:"debug" yaml:"debug"`
}

// DefaultSettings returns the default settings.
func DefaultSettings() Settings {
	s := Settings{}
	s.Simulation.Workers = 4
	s.Simulation.StepMicros = 1000
	s.Simulation.MaxStutterMicros = 50_000
	s.Simulation.MaxBusyWaitMicros = 50
	s.Simulation.HistorySize = 512
	s.Simulation.AnimationSpeed = 1

	s.Canvas.Width = 800
	s.Canvas.Height = 600
	s.Canvas.FrameMicros = 16_667

	s.Turtle.AnglePolicy = "degrees"

	s.Debug.StatsViewAddr = "localhost:8080"
	return s
}

// Validate checks the settings for values that cannot be used.
func (s Settings) Validate() error {
	sim := s.Simulation
	switch {
	case sim.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative", oerror.ErrInvalidConfig)
	case sim.StepMicros <= 0:
		return fmt.Errorf("%w: step must be positive", oerror.ErrInvalidConfig)
	case sim.MaxStutterMicros < sim.StepMicros:
		return fmt.Errorf("%w: max stutter must be at least one step", oerror.ErrInvalidConfig)
	case sim.MaxBusyWaitMicros <= 0:
		return fmt.Errorf("%w: max busy wait must be positive", oerror.ErrInvalidConfig)
	case sim.HistorySize <= 0:
		return fmt.Errorf("%w: history size must be positive", oerror.ErrInvalidConfig)
	case sim.AnimationSpeed <= 0:
		return fmt.Errorf("%w: animation speed must be positive", oerror.ErrInvalidConfig)
	case s.Canvas.Width <= 0 || s.Canvas.Height <= 0:
		return fmt.Errorf("%w: canvas size must be positive", oerror.ErrInvalidConfig)
	case s.Canvas.FrameMicros <= 0:
		return fmt.Errorf("%w: frame interval must be positive", oerror.ErrInvalidConfig)
	}
	switch strings.ToLower(s.Turtle.AnglePolicy) {
	case "degrees", "radians":
	default:
		return fmt.Errorf("%w: unknown angle policy %q", oerror.ErrInvalidConfig, s.Turtle.AnglePolicy)
	}
	return nil
}

// FrameInterval returns the time between two rendered frames.
func (s Settings) FrameInterval() time.Duration {
	return time.Duration(s.Canvas.FrameMicros) * time.Microsecond
}

// SimulatorConfig converts the settings to a simulator config using the renderer and logger passed.
func (s Settings) SimulatorConfig(r simulation.Renderer, log *logrus.Logger) simulation.Config {
	return simulation.Config{
		Workers:        s.Simulation.Workers,
		Step:           time.Duration(s.Simulation.StepMicros) * time.Microsecond,
		MaxStutter:     time.Duration(s.Simulation.MaxStutterMicros) * time.Microsecond,
		MaxBlocking:    time.Duration(s.Simulation.MaxBusyWaitMicros) * time.Microsecond,
		HistorySize:    s.Simulation.HistorySize,
		StartPaused:    s.Simulation.StartPaused,
		AnimationSpeed: s.Simulation.AnimationSpeed,
		Renderer:       r,
		Log:            log,
	}
}

func marshal(path string, s Settings) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(s)
	default:
		return toml.Marshal(s)
	}
}

func unmarshal(path string, data []byte, s *Settings) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, s)
	default:
		return toml.Unmarshal(data, s)
	}
}

// SaveDefault will create and save the default settings file. The format is picked from the file extension:
// .yaml and .yml files are written as YAML, anything else as TOML. If the file already exists, it will return
// an error.
func SaveDefault(path string) error {
	s := DefaultSettings()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if data, err := marshal(path, s); err != nil {
			return fmt.Errorf("failed encoding default settings: %v", err)
		} else if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed creating settings file: %v", err)
		}
		return nil
	}
	return errors.New("settings file already exists")
}

// Load will load the settings from your settings file, and return an error if the file does not exist.
// Values missing from the file keep their defaults.
func Load(path string) (Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Settings{}, errors.New("settings file doesn't exist")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("error reading config: %v", err)
	}

	settings := DefaultSettings()
	if err = unmarshal(path, data, &settings); err != nil {
		return Settings{}, fmt.Errorf("error decoding config: %v", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}
