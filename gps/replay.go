package gps

import (
	"context"
	"io"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
)

// ReplaySource replays recorded track points. When the points carry
// sequential timestamps the original pacing is reproduced, otherwise points
// are emitted one per second; both are divided by the speed multiplier.
type ReplaySource struct {
	points     []TrackPoint
	speed      float64
	loop       bool
	sequential bool
	index      int
	completed  bool
}

// NewReplaySource creates a replay over points.
func NewReplaySource(points []TrackPoint, speed float64, loop bool) (*ReplaySource, error) {
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}
	if speed <= 0 {
		return nil, ErrInvalidReplaySpeed
	}
	return &ReplaySource{
		points:     points,
		speed:      speed,
		loop:       loop,
		sequential: hasSequentialTimestamps(points),
	}, nil
}

// Completed reports whether at least one full pass has been replayed.
func (r *ReplaySource) Completed() bool { return r.completed }

// Next waits for the next point to become due and returns it as a fix.
func (r *ReplaySource) Next(ctx context.Context) (Fix, error) {
	if r.index >= len(r.points) {
		r.completed = true
		if !r.loop {
			return Fix{}, io.EOF
		}
		r.index = 0
	}

	if r.index > 0 {
		timer := time.NewTimer(r.delay(r.index))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Fix{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Fix{}, err
	}

	fix := r.fixAt(r.index)
	r.index++
	return fix, nil
}

func (r *ReplaySource) delay(i int) time.Duration {
	gap := time.Second
	if r.sequential {
		gap = r.points[i].Time.Sub(r.points[i-1].Time)
	}
	return time.Duration(float64(gap) / r.speed)
}

// fixAt builds the fix for point i. Speed and course are derived from the
// leg to the following point.
func (r *ReplaySource) fixAt(i int) Fix {
	p := r.points[i]
	fix := Fix{
		Latitude:   p.Lat,
		Longitude:  p.Lon,
		Altitude:   p.Elevation,
		Satellites: 8,
		Valid:      true,
		Time:       p.Time,
	}
	if fix.Time.IsZero() {
		fix.Time = time.Now().UTC()
	}

	if i < len(r.points)-1 {
		next := r.points[i+1]
		from := geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
		to := geo.Coordinate{Lat: next.Lat, Lon: next.Lon}

		secs := 1.0
		if r.sequential {
			secs = next.Time.Sub(p.Time).Seconds()
		}
		if secs > 0 {
			knots := geo.Distance(from, to) / secs * 3600 / KnotsToKmh
			course := geo.Bearing(from, to)
			fix.SpeedKnots = &knots
			fix.Course = &course
		}
	}
	return fix
}

// hasSequentialTimestamps checks if the points have non-decreasing,
// non-zero timestamps
func hasSequentialTimestamps(points []TrackPoint) bool {
	if len(points) < 2 {
		return false
	}
	for i := 0; i < len(points)-1; i++ {
		if points[i].Time.IsZero() || points[i+1].Time.Before(points[i].Time) {
			return false
		}
	}
	return true
}
