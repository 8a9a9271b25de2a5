package omath

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// Epsilon is the tolerance used whenever a simulated quantity is compared against zero. Anything smaller
// is floating point noise and must not cause another simulation step.
const Epsilon = 1e-4

// TwoPi is a full turn in radians.
const TwoPi = 2 * math.Pi

// NormalizeAngle wraps the angle passed into the range (-π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, TwoPi)
	if a <= -math.Pi {
		a += TwoPi
	} else if a > math.Pi {
		a -= TwoPi
	}
	return a
}

// TurnAmount returns the signed shortest rotation that brings heading onto target. The result is in
// the range (-π, π].
func TurnAmount(heading, target float64) float64 {
	return NormalizeAngle(target - heading)
}

// UnitVector returns the unit vector pointing in the direction of the heading passed.
func UnitVector(heading float64) mgl64.Vec2 {
	return mgl64.Vec2{math.Cos(heading), math.Sin(heading)}
}

// Angle returns the heading of the vector passed. The zero vector has an angle of 0.
func Angle(v mgl64.Vec2) float64 {
	return math.Atan2(v.Y(), v.X())
}

// ApproxZero returns true if the value passed is within Epsilon of zero.
func ApproxZero(v float64) bool {
	return math.Abs(v) < Epsilon
}

// ApproxEq determines whether two values are within Epsilon of each other.
func ApproxEq(a, b float64) bool {
	return ApproxZero(a - b)
}

// Round64 will round a float64 to a given precision.
func Round64(val float64, precision int) float64 {
	pwr := math.Pow(10, float64(precision))
	return math.Round(val*pwr) / pwr
}

// Vec64To32 converts a 64-bit vector to a 32-bit one.
func Vec64To32(v mgl64.Vec2) mgl32.Vec2 {
	return mgl32.Vec2{float32(v[0]), float32(v[1])}
}

// Heading32 converts a heading to float32 radians normalized to [0, 2π), the form renderers rotate sprites by.
func Heading32(heading float64) float32 {
	h := math32.Mod(float32(heading), 2*math32.Pi)
	if h < 0 {
		h += 2 * math32.Pi
	}
	return h
}
