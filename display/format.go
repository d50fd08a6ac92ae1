// Package display turns navigation state into the strings and panel states
// a driver-facing screen binds to. It holds no navigation logic.
package display

import (
	"fmt"
	"math"
	"time"
)

// Placeholder is shown for values that are not known yet.
const Placeholder = "--"

// FormatDistance renders a distance in kilometers. Short distances are shown
// in meters rounded to 10 m, up to 10 km with one decimal.
func FormatDistance(km float64) string {
	if math.IsNaN(km) {
		return Placeholder
	}
	km = math.Max(0, km)

	switch {
	case km < 1:
		m := math.Round(km*100) * 10
		if m >= 1000 {
			return "1.0 km"
		}
		return fmt.Sprintf("%.0f m", m)
	case km < 10:
		return fmt.Sprintf("%.1f km", km)
	default:
		return fmt.Sprintf("%.0f km", km)
	}
}

// FormatDuration renders minutes as "45 min" or "2h 05min".
func FormatDuration(minutes float64) string {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return Placeholder
	}
	total := int(math.Round(math.Max(0, minutes)))
	if total < 60 {
		return fmt.Sprintf("%d min", total)
	}
	return fmt.Sprintf("%dh %02dmin", total/60, total%60)
}

// FormatETA renders the wall-clock arrival time for a trip of the given
// minutes starting at now.
func FormatETA(now time.Time, minutes float64) string {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return Placeholder
	}
	eta := now.Add(time.Duration(math.Max(0, minutes) * float64(time.Minute)))
	return eta.Format("15:04")
}
