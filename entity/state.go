package entity

import (
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oomph-ac/turtle/oerror"
	"github.com/oomph-ac/turtle/omath"
)

// Handle is an opaque identifier of an entity registered with a simulator.
type Handle uint64

// PathType is the join style used when a trail is drawn.
type PathType uint8

const (
	// PathRounded caps every trail segment with a semicircle.
	PathRounded PathType = iota
	// PathSharp leaves segment ends untouched, which can leave a wedge-shaped gap at sharp corners.
	PathSharp
)

func (p PathType) String() string {
	switch p {
	case PathRounded:
		return "rounded"
	case PathSharp:
		return "sharp"
	}
	return "unknown"
}

const (
	DefaultMovementSpeed = 200.0
	DefaultTurningSpeed  = math.Pi * 1.5
	DefaultThickness     = 8.0
)

// DefaultHistorySize is the amount of pose samples kept by states created without an explicit size.
const DefaultHistorySize = 512

// State is the mutable physical snapshot of one entity. All units are pixels, radians and seconds.
// A State is not safe for concurrent use; the simulator guards it with the entity's lock.
type State struct {
	// Location is the position of the entity on the canvas.
	Location mgl64.Vec2
	// MovementSpeed is the speed in pixels per second the entity moves at. It is always positive.
	MovementSpeed float64

	// Heading is the direction the entity faces, normalized to (-π, π].
	Heading float64
	// TurningSpeed is the speed in radians per second the entity turns at. It is always positive.
	TurningSpeed float64

	Color     color.RGBA
	PathType  PathType
	Thickness float64
	PenDown   bool

	// FillShape holds the polygon points collected while Filling is true.
	FillShape []mgl64.Vec2
	Filling   bool

	Status string
	Data   any

	// History records recent poses of the entity so renderers can draw exact trails between frames.
	History *History
}

// NewState returns a State with default values and a history of the size passed.
func NewState(historySize int) *State {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	s := &State{History: NewHistory(historySize)}
	s.Reset()
	return s
}

// Reset restores every attribute of the state to its default value.
func (s *State) Reset() {
	s.Location = mgl64.Vec2{}
	s.MovementSpeed = DefaultMovementSpeed

	s.Heading = 0
	s.TurningSpeed = DefaultTurningSpeed

	s.Color = color.RGBA{A: 0xff}
	s.PathType = PathRounded
	s.Thickness = DefaultThickness
	s.PenDown = true

	s.FillShape = s.FillShape[:0]
	s.Filling = false

	s.Status = ""
	s.Data = nil

	if s.History != nil {
		s.History.Clear()
	}
}

// CopyFrom copies every attribute of other into s. The fill shape is copied, and the history of s
// receives a copy of the samples in other's history.
func (s *State) CopyFrom(other *State) {
	s.Location = other.Location
	s.MovementSpeed = other.MovementSpeed
	s.Heading = other.Heading
	s.TurningSpeed = other.TurningSpeed
	s.Color = other.Color
	s.PathType = other.PathType
	s.Thickness = other.Thickness
	s.PenDown = other.PenDown

	s.FillShape = append(s.FillShape[:0], other.FillShape...)
	s.Filling = other.Filling

	s.Status = other.Status
	s.Data = other.Data

	if other.History == nil {
		s.History = nil
		return
	}
	if s.History == nil || s.History.Capacity() != other.History.Capacity() {
		s.History = NewHistory(other.History.Capacity())
	}
	s.History.copyFrom(other.History)
}

// SetMovementSpeed sets the movement speed of the state in pixels per second.
func (s *State) SetMovementSpeed(pixelsPerSecond float64) error {
	if !validSpeed(pixelsPerSecond) {
		return oerror.ErrInvalidSpeed
	}
	s.MovementSpeed = pixelsPerSecond
	return nil
}

// SetTurningSpeed sets the turning speed of the state in radians per second.
func (s *State) SetTurningSpeed(radiansPerSecond float64) error {
	if !validSpeed(radiansPerSecond) {
		return oerror.ErrInvalidSpeed
	}
	s.TurningSpeed = radiansPerSecond
	return nil
}

// Record adds the current pose of the state to its history under the sequence number passed.
func (s *State) Record(seq uint64) {
	if s.History == nil {
		return
	}
	s.History.Add(Sample{
		Seq:      seq,
		Location: s.Location,
		Heading:  s.Heading,
		PenDown:  s.PenDown,
	})
}

func validSpeed(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= omath.Epsilon
}
