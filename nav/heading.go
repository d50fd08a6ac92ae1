package nav

import "github.com/Bucknalla/go-truck-nav/geo"

// HeadingSmoother is a circular low-pass filter for compass/course readings.
// Readings within the deadband of the current value are ignored; larger
// changes move the value a fixed fraction of the way, always turning the
// short way round the circle.
type HeadingSmoother struct {
	deadband float64
	alpha    float64
	heading  float64
}

// NewHeadingSmoother returns a smoother with the given deadband (degrees)
// and smoothing factor.
func NewHeadingSmoother(deadband, alpha float64) *HeadingSmoother {
	return &HeadingSmoother{deadband: deadband, alpha: alpha}
}

// Heading returns the current smoothed heading in [0,360).
func (h *HeadingSmoother) Heading() float64 {
	return h.heading
}

// Set forces the smoothed heading, e.g. when restoring a session.
func (h *HeadingSmoother) Set(heading float64) {
	h.heading = geo.NormalizeHeading(heading)
}

// Update feeds a raw heading and returns the new smoothed value. The filter
// starts at 0 (north), so the first reading is smoothed like any other.
func (h *HeadingSmoother) Update(raw float64) float64 {
	raw = geo.NormalizeHeading(raw)
	if geo.HeadingDifference(raw, h.heading) <= h.deadband {
		return h.heading
	}

	turn := geo.SignedHeadingTurn(h.heading, raw)
	h.heading = geo.NormalizeHeading(h.heading + h.alpha*turn)
	return h.heading
}
