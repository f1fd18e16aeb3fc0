// Package units provides shared constants and conversions for the distance
// and speed readouts shown by the dashboard.
package units

import "fmt"

// Distance unit constants. The simulation works in centimetres.
const (
	CM = "cm"
	M  = "m"
	IN = "in"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{CM, M, IN}

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
	return "cm, m, in"
}

// ConvertDistance converts a distance in centimetres to the target units.
func ConvertDistance(cm float64, targetUnits string) float64 {
	switch targetUnits {
	case M:
		return cm / 100
	case IN:
		return cm / 2.54
	case CM:
		return cm
	default:
		return cm // default to cm if unknown unit
	}
}

// SpeedPercentScale maps the speed multiplier onto the slider percentage the
// dashboard shows: a multiplier of 2 is full scale.
const SpeedPercentScale = 50

// SpeedPercent converts a speed multiplier to a rounded slider percentage.
func SpeedPercent(multiplier float64) int {
	return int(multiplier*SpeedPercentScale + 0.5)
}

// FormatDistance renders a distance in centimetres in the target units with
// one decimal place.
func FormatDistance(cm float64, targetUnits string) string {
	if !IsValid(targetUnits) {
		targetUnits = CM
	}
	return fmt.Sprintf("%.1f %s", ConvertDistance(cm, targetUnits), targetUnits)
}
