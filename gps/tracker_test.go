package gps

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/Bucknalla/go-truck-nav/nav"
)

type sliceSource struct {
	fixes []Fix
	err   error
}

func (s *sliceSource) Next(ctx context.Context) (Fix, error) {
	if len(s.fixes) == 0 {
		if s.err != nil {
			return Fix{}, s.err
		}
		return Fix{}, io.EOF
	}
	f := s.fixes[0]
	s.fixes = s.fixes[1:]
	return f, nil
}

func collect(t *testing.T, tr *Tracker, ctx context.Context) ([]nav.PositionSample, error) {
	t.Helper()
	out := make(chan nav.PositionSample, 16)
	errc := make(chan error, 1)
	go func() { errc <- tr.Run(ctx, out) }()

	var samples []nav.PositionSample
	for s := range out {
		samples = append(samples, s)
	}
	return samples, <-errc
}

func TestToSample(t *testing.T) {
	knots, course := 10.0, 370.0
	s, ok := ToSample(Fix{Latitude: 1, Longitude: 2, SpeedKnots: &knots, Course: &course, Valid: true})
	if !ok {
		t.Fatal("Valid fix should convert")
	}
	if s.SpeedKmh == nil || math.Abs(*s.SpeedKmh-18.52) > 1e-9 {
		t.Errorf("Expected 18.52 km/h, got %v", s.SpeedKmh)
	}
	if s.Heading == nil || math.Abs(*s.Heading-10) > 1e-9 {
		t.Errorf("Expected heading normalised to 10, got %v", s.Heading)
	}

	s, _ = ToSample(Fix{Latitude: 1, Longitude: 2, Valid: true})
	if s.Heading != nil || s.SpeedKmh != nil {
		t.Error("Missing heading and speed must stay absent")
	}

	if _, ok := ToSample(Fix{}); ok {
		t.Error("Fix without lock should be rejected")
	}
}

func TestTrackerRun(t *testing.T) {
	knots := 20.0
	src := &sliceSource{fixes: []Fix{
		{Latitude: 48.1, Longitude: 11.5, SpeedKnots: &knots, Valid: true},
		{Time: time.Now()}, // no lock
		{Latitude: 48.2, Longitude: 11.6, Valid: true},
	}}
	trail := filepath.Join(t.TempDir(), "trail.gpx")
	w, err := NewGPXWriter(trail, "trail")
	if err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(src)
	tr.SetTrail(w)
	samples, err := collect(t, tr, context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[1].Coordinate.Lat != 48.2 {
		t.Errorf("Unexpected second sample %+v", samples[1])
	}
	if n, noFix := tr.Stats(); n != 2 || noFix != 1 {
		t.Errorf("Stats = %d, %d; want 2, 1", n, noFix)
	}
	if tr.LastFix().Latitude != 48.2 {
		t.Error("LastFix not updated")
	}

	points, err := ReadGPXFile(trail)
	if err != nil {
		t.Fatalf("Trail was not written: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("Expected 2 trail points, got %d", len(points))
	}
}

func TestTrackerSourceError(t *testing.T) {
	boom := errors.New("device unplugged")
	tr := NewTracker(&sliceSource{err: boom})
	if _, err := collect(t, tr, context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped source error, got %v", err)
	}
}

func TestTrackerCancelUnblocksReader(t *testing.T) {
	pr, _ := io.Pipe()
	tr := NewTracker(NewNMEASource(pr))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := collect(t, tr, ctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run should return nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked on the reader after cancel")
	}
}

func TestSimulatorThroughTracker(t *testing.T) {
	sim, err := NewSimulator(createTestConfig(), testRoute())
	if err != nil {
		t.Fatal(err)
	}
	pr, pw := io.Pipe()
	sim.SetNMEAWriter(pw)
	src := NewNMEASource(pr)
	tr := NewTracker(src)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan nav.PositionSample)
	go tr.Run(ctx, out)

	if err := sim.Start(); err != nil {
		t.Fatal(err)
	}
	// Cancelling first closes the pipe so a blocked simulator write returns.
	t.Cleanup(func() {
		cancel()
		sim.Stop()
	})

	for i := 0; i < 3; i++ {
		select {
		case s := <-out:
			if s.SpeedKmh == nil || math.Abs(*s.SpeedKmh-36) > 0.2 {
				t.Errorf("Expected ~36 km/h, got %v", s.SpeedKmh)
			}
			if s.Heading == nil {
				t.Error("Simulator reports a course")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("No samples from the simulator")
		}
	}
	if src.Rejected() != 0 {
		t.Errorf("Expected no rejected sentences, got %d", src.Rejected())
	}
}
