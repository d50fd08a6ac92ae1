package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/nav"
	"github.com/google/uuid"
)

func testState() nav.State {
	speed := 72.5
	return nav.State{
		SessionID:            uuid.New(),
		StartedAt:            time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC),
		CurrentWaypointIndex: 1,
		SmoothedHeading:      271.5,
		IsOffRoute:           true,
		BreakWarning:         true,
		ProgressPercent:      63.2,
		RemainingDistanceKm:  41.7,
		Traffic:              nav.TrafficSlow,
		Position: &nav.PositionSample{
			Coordinate: geo.Coordinate{Lat: 48.2, Lon: 11.6},
			SpeedKmh:   &speed,
			Timestamp:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		NextStop:     &nav.Stop{Name: "Depot", Coordinate: geo.Coordinate{Lat: 49.4, Lon: 11.1}},
		Destinations: 2,
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	s, err := NewSnapshotStore(filepath.Join(t.TempDir(), "snapshots"))
	if err != nil {
		t.Fatal(err)
	}

	want := testState()
	if err := s.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, written, err := s.loadFile(s.path(want.SessionID))
	if err != nil {
		t.Fatalf("loadFile failed: %v", err)
	}
	if written.IsZero() {
		t.Error("loadFile should report the write time")
	}
	if got.SessionID != want.SessionID || !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("Identity not preserved: %v %v", got.SessionID, got.StartedAt)
	}
	if got.SmoothedHeading != want.SmoothedHeading || got.ProgressPercent != want.ProgressPercent {
		t.Errorf("Numeric fields not preserved: %+v", got)
	}
	if !got.IsOffRoute || !got.BreakWarning || got.Traffic != nav.TrafficSlow {
		t.Errorf("Flags not preserved: %+v", got)
	}
	if got.Position == nil || got.Position.SpeedKmh == nil || *got.Position.SpeedKmh != 72.5 {
		t.Fatalf("Position not preserved: %+v", got.Position)
	}
	if got.Position.Heading != nil {
		t.Error("Absent heading should stay absent")
	}
	if got.NextStop == nil || got.NextStop.Name != "Depot" {
		t.Errorf("Next stop not preserved: %+v", got.NextStop)
	}
}

func TestSnapshotOverwriteAndLatest(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewSnapshotStore(dir)

	if _, _, err := s.Latest(); err != ErrNoSnapshot {
		t.Errorf("Expected ErrNoSnapshot, got %v", err)
	}
	if _, _, err := s.loadFile(s.path(uuid.New())); err != ErrNoSnapshot {
		t.Errorf("Expected ErrNoSnapshot, got %v", err)
	}

	first := testState()
	second := testState()
	if err := s.Save(first); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(second); err != nil {
		t.Fatal(err)
	}
	first.ProgressPercent = 99
	if err := s.Save(first); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(s.path(second.SessionID), old, old); err != nil {
		t.Fatal(err)
	}

	latest, _, err := s.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest.SessionID != first.SessionID || latest.ProgressPercent != 99 {
		t.Errorf("Latest should be the rewritten first session, got %v %.0f", latest.SessionID, latest.ProgressPercent)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("Expected one file per session and no temp files, got %d entries", len(entries))
	}
}

func TestSnapshotPrune(t *testing.T) {
	s, _ := NewSnapshotStore(t.TempDir())
	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		st := testState()
		if err := s.Save(st); err != nil {
			t.Fatal(err)
		}
		ts := time.Now().Add(time.Duration(i-10) * time.Minute)
		os.Chtimes(s.path(st.SessionID), ts, ts)
		ids = append(ids, st.SessionID)
	}

	if err := s.Prune(2); err != nil {
		t.Fatal(err)
	}
	for i, id := range ids {
		_, _, err := s.loadFile(s.path(id))
		if kept := i >= 2; kept != (err == nil) {
			t.Errorf("Snapshot %d: kept=%v, load error %v", i, kept, err)
		}
	}
	if err := s.Prune(10); err != nil {
		t.Errorf("Pruning fewer files than kept should succeed: %v", err)
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	s, _ := NewSnapshotStore(t.TempDir())
	id := uuid.New()
	if err := os.WriteFile(s.path(id), []byte("not flate"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.loadFile(s.path(id)); err == nil || errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Corrupt snapshot should fail to decode, got %v", err)
	}
}

func TestPointEWKT(t *testing.T) {
	got := pointEWKT(geo.Coordinate{Lat: 48.137154, Lon: 11.576124})
	if want := "SRID=4326;POINT(11.576124 48.137154)"; got != want {
		t.Errorf("pointEWKT = %q, want %q", got, want)
	}
	if (Breadcrumb{}).TableName() != "breadcrumbs" {
		t.Error("Unexpected table name")
	}
}

// TestTrackRepository runs against a real PostGIS database when
// TRUCKNAV_TEST_DSN is set.
func TestTrackRepository(t *testing.T) {
	dsn := os.Getenv("TRUCKNAV_TEST_DSN")
	if dsn == "" {
		t.Skip("TRUCKNAV_TEST_DSN not set")
	}
	db, err := Connect(dsn, 3, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	repo := NewTrackRepository(db)
	ctx := context.Background()

	vehicle := "test-" + uuid.NewString()
	start := time.Now().Add(-time.Minute)
	for i, lon := range []float64{11.50, 11.51, 11.52} {
		s := nav.PositionSample{
			Coordinate: geo.Coordinate{Lat: 48.1, Lon: lon},
			Timestamp:  start.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Record(ctx, vehicle, "session", s); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	latest, err := repo.Latest(ctx, vehicle)
	if err != nil || latest == nil || latest.Longitude != 11.52 {
		t.Errorf("Latest = %+v, %v", latest, err)
	}
	path, err := repo.PathGeoJSON(ctx, vehicle, start, time.Now())
	if err != nil || path == nil {
		t.Fatalf("PathGeoJSON = %v, %v", path, err)
	}
	db.Where("vehicle_id = ?", vehicle).Delete(&Breadcrumb{})
}
