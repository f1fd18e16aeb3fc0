package units

import (
	"fmt"
	"time"
)

// IsTimezoneValid reports whether tz names a zone in the system tz database.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ConvertTime converts t to the named zone for display. Log entries are
// stamped in UTC.
func ConvertTime(t time.Time, tz string) (time.Time, error) {
	if tz == "" || tz == "UTC" {
		return t.UTC(), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return t, fmt.Errorf("failed to load timezone %s: %w", tz, err)
	}
	return t.In(loc), nil
}
