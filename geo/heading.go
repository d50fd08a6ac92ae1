package geo

import "math"

// NormalizeHeading reduces h to [0,360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

// HeadingDifference returns the minimum difference between two headings;
// the result is always in [0,180].
func HeadingDifference(a, b float64) float64 {
	d := math.Abs(NormalizeHeading(a) - NormalizeHeading(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// SignedHeadingTurn returns the signed turn in (-180,180] that takes cur to
// target the short way round. Positive is clockwise.
func SignedHeadingTurn(cur, target float64) float64 {
	d := NormalizeHeading(target - cur)
	if d > 180 {
		d -= 360
	}
	return d
}

// Compass converts a heading into the closest of eight compass points.
func Compass(heading float64) string {
	h := NormalizeHeading(heading + 22.5) // now [0,45) is north, etc.
	return [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}[int(h/45)%8]
}
