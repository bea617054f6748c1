package units

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFinite is returned when a quantity is constructed from NaN or ±Inf.
// Non-finite time or pose values must never reach the estimator or actuation,
// so construction is the rejection point.
var ErrNonFinite = errors.New("units: non-finite value")

// Seconds is an elapsed time or monotonic timestamp in seconds.
type Seconds float64

// Meters is a planar distance or coordinate in meters.
type Meters float64

// Radians is an angle in radians. Canonical form is (-π, π]; use Wrap.
type Radians float64

// MetersPerSecond is a linear velocity.
type MetersPerSecond float64

// RadiansPerSecond is an angular velocity.
type RadiansPerSecond float64

// NewSeconds validates v and returns it as Seconds.
func NewSeconds(v float64) (Seconds, error) {
	if !isFinite(v) {
		return 0, fmt.Errorf("seconds %v: %w", v, ErrNonFinite)
	}
	return Seconds(v), nil
}

// NewMeters validates v and returns it as Meters.
func NewMeters(v float64) (Meters, error) {
	if !isFinite(v) {
		return 0, fmt.Errorf("meters %v: %w", v, ErrNonFinite)
	}
	return Meters(v), nil
}

// NewRadians validates v and returns it as Radians. The result is not
// wrapped; call Wrap when the canonical range is required.
func NewRadians(v float64) (Radians, error) {
	if !isFinite(v) {
		return 0, fmt.Errorf("radians %v: %w", v, ErrNonFinite)
	}
	return Radians(v), nil
}

// NewMetersPerSecond validates v and returns it as MetersPerSecond.
func NewMetersPerSecond(v float64) (MetersPerSecond, error) {
	if !isFinite(v) {
		return 0, fmt.Errorf("meters/second %v: %w", v, ErrNonFinite)
	}
	return MetersPerSecond(v), nil
}

// NewRadiansPerSecond validates v and returns it as RadiansPerSecond.
func NewRadiansPerSecond(v float64) (RadiansPerSecond, error) {
	if !isFinite(v) {
		return 0, fmt.Errorf("radians/second %v: %w", v, ErrNonFinite)
	}
	return RadiansPerSecond(v), nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Same-unit arithmetic. Results carry the operand unit; there is no
// generic cross-unit multiply.

func (s Seconds) Add(o Seconds) Seconds   { return s + o }
func (s Seconds) Sub(o Seconds) Seconds   { return s - o }
func (s Seconds) Scale(k float64) Seconds { return Seconds(float64(s) * k) }
func (s Seconds) Float() float64          { return float64(s) }
func (s Seconds) IsFinite() bool          { return isFinite(float64(s)) }
func (s Seconds) Abs() Seconds            { return Seconds(math.Abs(float64(s))) }

func (m Meters) Add(o Meters) Meters    { return m + o }
func (m Meters) Sub(o Meters) Meters    { return m - o }
func (m Meters) Scale(k float64) Meters { return Meters(float64(m) * k) }
func (m Meters) Float() float64         { return float64(m) }
func (m Meters) IsFinite() bool         { return isFinite(float64(m)) }
func (m Meters) Abs() Meters            { return Meters(math.Abs(float64(m))) }

func (r Radians) Add(o Radians) Radians   { return r + o }
func (r Radians) Sub(o Radians) Radians   { return r - o }
func (r Radians) Scale(k float64) Radians { return Radians(float64(r) * k) }
func (r Radians) Float() float64          { return float64(r) }
func (r Radians) IsFinite() bool          { return isFinite(float64(r)) }

func (v MetersPerSecond) Add(o MetersPerSecond) MetersPerSecond { return v + o }
func (v MetersPerSecond) Sub(o MetersPerSecond) MetersPerSecond { return v - o }
func (v MetersPerSecond) Scale(k float64) MetersPerSecond       { return MetersPerSecond(float64(v) * k) }
func (v MetersPerSecond) Float() float64                        { return float64(v) }
func (v MetersPerSecond) IsFinite() bool                        { return isFinite(float64(v)) }

func (w RadiansPerSecond) Add(o RadiansPerSecond) RadiansPerSecond { return w + o }
func (w RadiansPerSecond) Sub(o RadiansPerSecond) RadiansPerSecond { return w - o }
func (w RadiansPerSecond) Scale(k float64) RadiansPerSecond        { return RadiansPerSecond(float64(w) * k) }
func (w RadiansPerSecond) Float() float64                          { return float64(w) }
func (w RadiansPerSecond) IsFinite() bool                          { return isFinite(float64(w)) }

// Named cross-unit conversions. Keeping these as explicit methods (rather
// than a generic multiply) means accidental unit algebra does not compile.

// DistanceOver returns the distance covered at velocity v over dt.
func (v MetersPerSecond) DistanceOver(dt Seconds) Meters {
	return Meters(float64(v) * float64(dt))
}

// AngleOver returns the angle swept at rate w over dt.
func (w RadiansPerSecond) AngleOver(dt Seconds) Radians {
	return Radians(float64(w) * float64(dt))
}

// RateOver returns the average velocity covering m in dt.
func (m Meters) RateOver(dt Seconds) MetersPerSecond {
	return MetersPerSecond(float64(m) / float64(dt))
}

// RateOver returns the average angular rate sweeping r in dt.
func (r Radians) RateOver(dt Seconds) RadiansPerSecond {
	return RadiansPerSecond(float64(r) / float64(dt))
}

// Wrap maps the angle to the canonical range (-π, π].
func (r Radians) Wrap() Radians {
	v := float64(r)
	wrapped := v - 2*math.Pi*math.Round(v/(2*math.Pi))
	// Round ties can land exactly on -π; the canonical range excludes it.
	if wrapped <= -math.Pi {
		wrapped += 2 * math.Pi
	}
	return Radians(wrapped)
}

// AngularDistance returns the shortest signed arc from a to b, in (-π, π].
func AngularDistance(a, b Radians) Radians {
	return (b - a).Wrap()
}

// Hypot returns the Euclidean distance for a planar displacement.
func Hypot(dx, dy Meters) Meters {
	return Meters(math.Hypot(float64(dx), float64(dy)))
}

// Bearing returns the direction of the displacement (dx, dy) in radians.
func Bearing(dx, dy Meters) Radians {
	return Radians(math.Atan2(float64(dy), float64(dx)))
}
