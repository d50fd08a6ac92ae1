// Package config loads the truck-nav configuration from a YAML file, .env
// files and TRUCKNAV_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/gps"
	"github.com/Bucknalla/go-truck-nav/internal/log"
	"github.com/Bucknalla/go-truck-nav/nav"
	"github.com/Bucknalla/go-truck-nav/routing"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// TRUCKNAV_ROUTING_BASE_URL.
const EnvPrefix = "TRUCKNAV"

var (
	ErrInvalidLocation = errors.New("location must be \"lat,lon\"")
	ErrNoStops         = errors.New("trip needs at least one stop")

	ErrInvalidSnapshotInterval = errors.New("snapshot interval must be positive")
)

// StopConfig is a trip stop as written in the config file
type StopConfig struct {
	Name     string `mapstructure:"name"`
	Location string `mapstructure:"location"` // "lat,lon"
	RestStop bool   `mapstructure:"rest_stop"`
}

// TripConfig describes the trip to navigate
type TripConfig struct {
	Origin    string       `mapstructure:"origin"`     // "lat,lon"; empty waits for the first fix
	RouteFile string       `mapstructure:"route_file"` // GPX route used when no router is configured
	Stops     []StopConfig `mapstructure:"stops"`
}

type WebConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the web surface
}

type StoreConfig struct {
	SnapshotDir      string        `mapstructure:"snapshot_dir"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	DSN              string        `mapstructure:"dsn"` // PostGIS breadcrumb database
	VehicleID        string        `mapstructure:"vehicle_id"`
}

// AppConfig holds the entire configuration
type AppConfig struct {
	Nav     nav.Config     `mapstructure:"nav"`
	GPS     gps.Config     `mapstructure:"gps"`
	Routing routing.Config `mapstructure:"routing"`
	Web     WebConfig      `mapstructure:"web"`
	Log     log.Config     `mapstructure:"log"`
	Store   StoreConfig    `mapstructure:"store"`
	Trip    TripConfig     `mapstructure:"trip"`
}

// Default returns the configuration used when nothing overrides it.
func Default() AppConfig {
	return AppConfig{
		Nav:     nav.DefaultConfig(),
		GPS:     gps.DefaultConfig(),
		Routing: routing.DefaultConfig(),
		Web:     WebConfig{Addr: ":8080"},
		Log:     log.DefaultConfig(),
		Store:   StoreConfig{SnapshotInterval: 30 * time.Second, VehicleID: "truck-1"},
	}
}

// Validate checks every section
func (c *AppConfig) Validate() error {
	if err := c.Nav.Validate(); err != nil {
		return fmt.Errorf("nav: %w", err)
	}
	if err := c.GPS.Validate(); err != nil {
		return fmt.Errorf("gps: %w", err)
	}
	if c.Routing.BaseURL != "" {
		if err := c.Routing.Validate(); err != nil {
			return fmt.Errorf("routing: %w", err)
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if len(c.Trip.Stops) > 0 {
		if _, err := c.Trip.Destinations(); err != nil {
			return fmt.Errorf("trip: %w", err)
		}
	}
	if c.Trip.Origin != "" {
		if _, err := ParseLocation(c.Trip.Origin); err != nil {
			return fmt.Errorf("trip origin: %w", err)
		}
	}
	if c.Store.SnapshotDir != "" && c.Store.SnapshotInterval <= 0 {
		return fmt.Errorf("store: %w: %v", ErrInvalidSnapshotInterval, c.Store.SnapshotInterval)
	}
	return nil
}

// Destinations converts the configured stops into navigation stops.
func (t TripConfig) Destinations() ([]nav.Stop, error) {
	if len(t.Stops) == 0 {
		return nil, ErrNoStops
	}
	stops := make([]nav.Stop, 0, len(t.Stops))
	for i, s := range t.Stops {
		c, err := ParseLocation(s.Location)
		if err != nil {
			return nil, fmt.Errorf("stop %d: %w", i, err)
		}
		stops = append(stops, nav.Stop{Coordinate: c, Name: s.Name, RestStop: s.RestStop})
	}
	return stops, nil
}

// ParseLocation parses "lat,lon".
func ParseLocation(s string) (geo.Coordinate, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, err2 := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err1 != nil || err2 != nil || la < -90 || la > 90 || lo < -180 || lo > 180 {
		return geo.Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
	}
	return geo.Coordinate{Lat: la, Lon: lo}, nil
}

// Loader reads the configuration and keeps it current when the file changes.
type Loader struct {
	v *viper.Viper

	mu        sync.RWMutex
	current   *AppConfig
	listeners []func(*AppConfig)
}

// Load reads the configuration once.
func Load(path string) (*AppConfig, error) {
	l, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	return l.Current(), nil
}

// NewLoader reads .env, the YAML file at path (optional) and environment
// overrides.
func NewLoader(path string) (*Loader, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	l := &Loader{v: v}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

func (l *Loader) decode() (*AppConfig, error) {
	cfg := Default()
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Current returns the current configuration in a thread-safe way
func (l *Loader) Current() *AppConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers fn to be called with every valid reloaded config.
func (l *Loader) OnChange(fn func(*AppConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Watch starts watching the config file. Invalid edits are reported to
// onError and the previous config stays in effect.
func (l *Loader) Watch(onError func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.reload(onError)
	})
	l.v.WatchConfig()
}

func (l *Loader) reload(onError func(error)) {
	cfg, err := l.decode()
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}

	l.mu.Lock()
	l.current = cfg
	listeners := append(([]func(*AppConfig))(nil), l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, d AppConfig) {
	v.SetDefault("nav.off_route_threshold_m", d.Nav.OffRouteThresholdM)
	v.SetDefault("nav.arrival_radius_m", d.Nav.ArrivalRadiusM)
	v.SetDefault("nav.step_advance_radius_m", d.Nav.StepAdvanceRadiusM)
	v.SetDefault("nav.recalculation_cooldown", d.Nav.RecalculationCooldown)
	v.SetDefault("nav.heading_deadband", d.Nav.HeadingDeadband)
	v.SetDefault("nav.heading_smoothing", d.Nav.HeadingSmoothing)
	v.SetDefault("nav.min_reliable_speed_kmh", d.Nav.MinReliableSpeedKmh)
	v.SetDefault("nav.fallback_speed_kmh", d.Nav.FallbackSpeedKmh)
	v.SetDefault("nav.break_tick", d.Nav.BreakTick)
	v.SetDefault("nav.break_threshold", d.Nav.BreakThreshold)
	v.SetDefault("nav.traffic_poll_interval", d.Nav.TrafficPollInterval)
	v.SetDefault("nav.event_buffer", d.Nav.EventBuffer)

	v.SetDefault("gps.source", d.GPS.Source)
	v.SetDefault("gps.serial_port", d.GPS.SerialPort)
	v.SetDefault("gps.baud_rate", d.GPS.BaudRate)
	v.SetDefault("gps.replay_file", d.GPS.ReplayFile)
	v.SetDefault("gps.replay_speed", d.GPS.ReplaySpeed)
	v.SetDefault("gps.replay_loop", d.GPS.ReplayLoop)
	v.SetDefault("gps.speed_kmh", d.GPS.SpeedKmh)
	v.SetDefault("gps.jitter_m", d.GPS.Jitter)
	v.SetDefault("gps.satellites", d.GPS.Satellites)
	v.SetDefault("gps.time_to_lock", d.GPS.TimeToLock)
	v.SetDefault("gps.output_rate", d.GPS.OutputRate)
	v.SetDefault("gps.trail_file", d.GPS.TrailFile)

	v.SetDefault("routing.base_url", d.Routing.BaseURL)
	v.SetDefault("routing.profile", d.Routing.Profile)
	v.SetDefault("routing.timeout", d.Routing.Timeout)
	v.SetDefault("routing.language", d.Routing.Language)

	v.SetDefault("web.addr", d.Web.Addr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.stderr", d.Log.Stderr)

	v.SetDefault("store.snapshot_dir", d.Store.SnapshotDir)
	v.SetDefault("store.snapshot_interval", d.Store.SnapshotInterval)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.vehicle_id", d.Store.VehicleID)

	v.SetDefault("trip.origin", d.Trip.Origin)
	v.SetDefault("trip.route_file", d.Trip.RouteFile)
}
