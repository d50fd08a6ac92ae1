package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/gps"
	"github.com/Bucknalla/go-truck-nav/nav"
)

const testYAML = `
nav:
  recalculation_cooldown: 45s
  fallback_speed_kmh: 65
gps:
  source: replay
  replay_file: trip.gpx
  replay_speed: 4
routing:
  base_url: http://osrm.local:5000
  language: de
web:
  addr: 127.0.0.1:9000
log:
  level: debug
trip:
  origin: "48.137, 11.575"
  stops:
    - name: Rastplatz Holledau
      location: "48.55,11.60"
      rest_stop: true
    - name: Depot Nürnberg
      location: "49.45,11.08"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "truck-nav.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Nav.RecalculationCooldown != 45*time.Second {
		t.Errorf("Cooldown = %v, want 45s", cfg.Nav.RecalculationCooldown)
	}
	if cfg.Nav.FallbackSpeedKmh != 65 {
		t.Errorf("Fallback speed = %v, want 65", cfg.Nav.FallbackSpeedKmh)
	}
	if cfg.Nav.OffRouteThresholdM != nav.DefaultConfig().OffRouteThresholdM {
		t.Error("Keys missing from the file should keep their defaults")
	}
	if cfg.GPS.Source != gps.SourceReplay || cfg.GPS.ReplaySpeed != 4 || cfg.GPS.BaudRate != 9600 {
		t.Errorf("Unexpected gps section %+v", cfg.GPS)
	}
	if cfg.Routing.BaseURL != "http://osrm.local:5000" || cfg.Routing.Language != "de" || cfg.Routing.Profile != "driving" {
		t.Errorf("Unexpected routing section %+v", cfg.Routing)
	}
	if cfg.Web.Addr != "127.0.0.1:9000" || cfg.Log.Level != "debug" {
		t.Errorf("Unexpected web/log sections %+v %+v", cfg.Web, cfg.Log)
	}

	stops, err := cfg.Trip.Destinations()
	if err != nil {
		t.Fatal(err)
	}
	if len(stops) != 2 || !stops[0].RestStop || stops[1].Name != "Depot Nürnberg" {
		t.Errorf("Unexpected stops %+v", stops)
	}
	if stops[1].Coordinate != (geo.Coordinate{Lat: 49.45, Lon: 11.08}) {
		t.Errorf("Unexpected stop coordinate %v", stops[1].Coordinate)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TRUCKNAV_NAV_ARRIVAL_RADIUS_M", "150")
	t.Setenv("TRUCKNAV_GPS_SERIAL_PORT", "/dev/ttyUSB1")
	t.Setenv("TRUCKNAV_STORE_DSN", "postgres://fleet@localhost/fleet")

	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Nav.ArrivalRadiusM != 150 {
		t.Errorf("Arrival radius = %v, want 150", cfg.Nav.ArrivalRadiusM)
	}
	if cfg.GPS.SerialPort != "/dev/ttyUSB1" {
		t.Errorf("Serial port = %q", cfg.GPS.SerialPort)
	}
	if cfg.Store.DSN != "postgres://fleet@localhost/fleet" {
		t.Errorf("DSN = %q", cfg.Store.DSN)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Defaults should load without a file: %v", err)
	}
	if cfg.GPS.Source != gps.SourceSimulate || cfg.Web.Addr != ":8080" {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if _, err := cfg.Trip.Destinations(); !errors.Is(err, ErrNoStops) {
		t.Errorf("Expected ErrNoStops, got %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{"bad cooldown", "nav:\n  recalculation_cooldown: 0s\n", nav.ErrInvalidCooldown},
		{"bad source", "gps:\n  source: carrier-pigeon\n", gps.ErrUnknownSource},
		{"bad stop", "trip:\n  stops:\n    - location: nowhere\n", ErrInvalidLocation},
		{"bad origin", "trip:\n  origin: \"91,0\"\n", ErrInvalidLocation},
		{"zero snapshot interval", "store:\n  snapshot_dir: /var/lib/truck-nav\n  snapshot_interval: 0s\n", ErrInvalidSnapshotInterval},
		{"negative snapshot interval", "store:\n  snapshot_dir: /var/lib/truck-nav\n  snapshot_interval: -5s\n", ErrInvalidSnapshotInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Missing config file should fail")
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in      string
		want    geo.Coordinate
		wantErr bool
	}{
		{"48.1,11.5", geo.Coordinate{Lat: 48.1, Lon: 11.5}, false},
		{" -33.9 , 151.2 ", geo.Coordinate{Lat: -33.9, Lon: 151.2}, false},
		{"48.1", geo.Coordinate{}, true},
		{"abc,def", geo.Coordinate{}, true},
		{"10,181", geo.Coordinate{}, true},
	}

	for _, tt := range tests {
		got, err := ParseLocation(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLocation(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLocation(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoaderReload(t *testing.T) {
	path := writeConfig(t, testYAML)
	l, err := NewLoader(path)
	if err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	l.OnChange(func(c *AppConfig) { calls.Add(1) })

	if err := os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := l.v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	l.reload(func(err error) { t.Errorf("Unexpected reload error: %v", err) })

	if l.Current().Log.Level != "warn" {
		t.Errorf("Reload not applied, level %q", l.Current().Log.Level)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 change notification, got %d", calls.Load())
	}

	if err := os.WriteFile(path, []byte("log:\n  level: shouty\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := l.v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	var reloadErr error
	l.reload(func(err error) { reloadErr = err })

	if reloadErr == nil {
		t.Error("Invalid reload should be reported")
	}
	if l.Current().Log.Level != "warn" {
		t.Error("Invalid reload should keep the previous config")
	}
	if calls.Load() != 1 {
		t.Error("Invalid reload should not notify listeners")
	}
}
