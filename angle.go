package turtle

import (
	"fmt"
	"math"
	"strings"

	"github.com/oomph-ac/turtle/oerror"
)

// AnglePolicy is the unit a turtle takes and returns angles in. Internally every angle is kept in radians.
type AnglePolicy uint32

const (
	Degrees AnglePolicy = iota
	Radians
)

// ParseAnglePolicy parses "degrees" or "radians", ignoring case.
func ParseAnglePolicy(s string) (AnglePolicy, error) {
	switch strings.ToLower(s) {
	case "degrees", "":
		return Degrees, nil
	case "radians":
		return Radians, nil
	}
	return Degrees, fmt.Errorf("%w: unknown angle policy %q", oerror.ErrInvalidConfig, s)
}

// ToRadians converts an angle given in the policy's unit to radians.
func (p AnglePolicy) ToRadians(angle float64) float64 {
	if p == Degrees {
		return angle * math.Pi / 180
	}
	return angle
}

// FromRadians converts an angle in radians to the policy's unit.
func (p AnglePolicy) FromRadians(radians float64) float64 {
	if p == Degrees {
		return radians * 180 / math.Pi
	}
	return radians
}

func (p AnglePolicy) String() string {
	if p == Degrees {
		return "degrees"
	}
	return "radians"
}
