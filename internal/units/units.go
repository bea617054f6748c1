// Package units provides the strongly-typed scalar quantities used across
// the estimation and control core, plus display-unit conversion for the API.
package units

// Display unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid display unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target display
// units. Internal computation is always m/s; conversion happens only at the
// reporting boundary.
func ConvertSpeed(speed MetersPerSecond, targetUnits string) float64 {
	v := float64(speed)
	switch targetUnits {
	case MPH:
		return v * 2.23694 // m/s to mph
	case KMPH, KPH:
		return v * 3.6 // m/s to km/h
	case MPS:
		return v // no conversion needed
	default:
		return v // default to m/s if unknown unit
	}
}
