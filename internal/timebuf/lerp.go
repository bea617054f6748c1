package timebuf

import "github.com/meridian-robotics/navcore/internal/units"

// LerpFloat64 interpolates plain scalars.
func LerpFloat64(a, b float64, alpha float64) float64 {
	return a + alpha*(b-a)
}

// LerpMeters interpolates distances.
func LerpMeters(a, b units.Meters, alpha float64) units.Meters {
	return a + units.Meters(alpha)*(b-a)
}

// LerpMetersPerSecond interpolates linear velocities.
func LerpMetersPerSecond(a, b units.MetersPerSecond, alpha float64) units.MetersPerSecond {
	return a + units.MetersPerSecond(alpha)*(b-a)
}

// LerpRadiansPerSecond interpolates angular velocities.
func LerpRadiansPerSecond(a, b units.RadiansPerSecond, alpha float64) units.RadiansPerSecond {
	return a + units.RadiansPerSecond(alpha)*(b-a)
}

// LerpRadians interpolates angles along the shortest arc, so the path never
// jumps discontinuously at the +/- pi boundary. The result is canonical.
func LerpRadians(a, b units.Radians, alpha float64) units.Radians {
	diff := units.AngularDistance(a, b)
	return (a + diff.Scale(alpha)).Wrap()
}
