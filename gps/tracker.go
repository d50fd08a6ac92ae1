package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/nav"
)

// trailFlushEvery is how many trail points are buffered between file writes.
const trailFlushEvery = 10

// Tracker turns receiver fixes into position samples for the navigation
// engine.
type Tracker struct {
	source Source
	trail  *GPXWriter
	logger *slog.Logger

	mu      sync.Mutex
	samples int
	noFix   int
	last    Fix
}

// NewTracker creates a tracker reading from source
func NewTracker(source Source) *Tracker {
	return &Tracker{
		source: source,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetTrail records every valid fix to w. The writer is closed when Run
// returns.
func (t *Tracker) SetTrail(w *GPXWriter) { t.trail = w }

// SetLogger sets the logger used for source diagnostics
func (t *Tracker) SetLogger(l *slog.Logger) {
	if l != nil {
		t.logger = l
	}
}

// Stats returns the number of samples emitted and fixes dropped for lack of
// a position lock.
func (t *Tracker) Stats() (samples, noFix int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples, t.noFix
}

// LastFix returns the most recent valid fix.
func (t *Tracker) LastFix() Fix {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Run reads fixes until ctx is cancelled or the source is exhausted, sending
// one sample per valid fix to out. out is closed when Run returns.
func (t *Tracker) Run(ctx context.Context, out chan<- nav.PositionSample) error {
	defer close(out)
	if t.trail != nil {
		defer func() {
			if err := t.trail.Close(); err != nil {
				t.logger.Warn("failed to write trail", slog.Any("error", err))
			}
		}()
	}

	// A blocking read on a serial port or pipe only returns once the
	// underlying reader is closed.
	if c, ok := t.source.(io.Closer); ok {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				c.Close()
			case <-stop:
			}
		}()
	}

	for {
		fix, err := t.source.Next(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			t.logger.Info("position source exhausted")
			return nil
		case err != nil:
			return fmt.Errorf("position source: %w", err)
		}

		sample, ok := ToSample(fix)
		if !ok {
			t.mu.Lock()
			t.noFix++
			t.mu.Unlock()
			t.logger.Debug("no position fix", slog.Time("time", fix.Time))
			continue
		}

		t.mu.Lock()
		t.samples++
		t.last = fix
		t.mu.Unlock()
		t.record(fix)

		select {
		case out <- sample:
		case <-ctx.Done():
			return nil
		}
	}
}

func (t *Tracker) record(fix Fix) {
	if t.trail == nil {
		return
	}
	t.trail.AddFix(fix)
	if t.trail.Count()%trailFlushEvery == 0 {
		if err := t.trail.Flush(); err != nil {
			t.logger.Warn("failed to write trail", slog.Any("error", err))
		}
	}
}

// ToSample converts a fix into a position sample. Speed is converted from
// knots to km/h; heading and speed stay nil when the receiver did not report
// them. ok is false for fixes without a position lock.
func ToSample(f Fix) (nav.PositionSample, bool) {
	if !f.Valid {
		return nav.PositionSample{}, false
	}
	s := nav.PositionSample{
		Coordinate: geo.Coordinate{Lat: f.Latitude, Lon: f.Longitude},
		Timestamp:  f.Time,
	}
	if f.Course != nil {
		h := geo.NormalizeHeading(*f.Course)
		s.Heading = &h
	}
	if f.SpeedKnots != nil {
		v := *f.SpeedKnots * KnotsToKmh
		s.SpeedKmh = &v
	}
	return s, true
}
