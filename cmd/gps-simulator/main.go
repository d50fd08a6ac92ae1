package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/gps"
	"github.com/Bucknalla/go-truck-nav/internal/config"
	"github.com/Bucknalla/go-truck-nav/internal/log"
	"github.com/Bucknalla/go-truck-nav/nav"
	"github.com/Bucknalla/go-truck-nav/routing"
)

// Version information - populated at build time via ldflags
var (
	Version   = "dev"     // Will be set to git tag if available, otherwise "dev"
	Commit    = "unknown" // Will be set to git commit hash
	BuildDate = "unknown" // Will be set to build timestamp
)

// finishPoll is how often the drive is checked for having reached the end
// of the route.
const finishPoll = 200 * time.Millisecond

var ErrNoRouteSource = errors.New("need -route, or -from and -to with a router")

// routeOptions selects where the simulated drive comes from.
type routeOptions struct {
	routeFile string
	from      string
	to        string
	router    string
}

// loadRoute returns the polyline to drive: a GPX route or track, or the
// fastest road route between from and to.
func loadRoute(ctx context.Context, o routeOptions) (geo.Polyline, error) {
	if o.routeFile != "" {
		return gps.ReadPolyline(o.routeFile)
	}
	if o.from == "" || o.to == "" || o.router == "" {
		return nil, ErrNoRouteSource
	}

	from, err := config.ParseLocation(o.from)
	if err != nil {
		return nil, err
	}
	to, err := config.ParseLocation(o.to)
	if err != nil {
		return nil, err
	}

	rc := routing.DefaultConfig()
	rc.BaseURL = o.router
	client, err := routing.NewClient(rc)
	if err != nil {
		return nil, err
	}
	route, err := client.Route(ctx, from, []nav.Stop{{Coordinate: to}})
	if err != nil {
		return nil, err
	}
	return route.Polyline, nil
}

// drive runs sim until the end of the route is reached, duration elapses
// (when positive) or ctx is cancelled.
func drive(ctx context.Context, sim *gps.Simulator, duration time.Duration) error {
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	if err := sim.Start(); err != nil {
		return err
	}
	defer sim.Stop()

	ticker := time.NewTicker(finishPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if sim.GetStatus().Finished {
				return nil
			}
		}
	}
}

func main() {
	cfg := gps.DefaultConfig()
	var ro routeOptions
	var showVersion, quiet bool
	var duration time.Duration
	var gpxFile string

	// Define command line flags
	flag.BoolVar(&showVersion, "version", false, "Show version information and exit")
	flag.StringVar(&ro.routeFile, "route", "", "GPX route or track to drive along")
	flag.StringVar(&ro.from, "from", "", "Start of the drive as lat,lon (with -to and -router)")
	flag.StringVar(&ro.to, "to", "", "End of the drive as lat,lon (with -from and -router)")
	flag.StringVar(&ro.router, "router", routing.DefaultConfig().BaseURL, "Base URL of the OSRM routing service")
	flag.Float64Var(&cfg.SpeedKmh, "speed", cfg.SpeedKmh, "Driving speed in km/h")
	flag.Float64Var(&cfg.Jitter, "jitter", 0.0, "Position noise in meters")
	flag.IntVar(&cfg.Satellites, "satellites", cfg.Satellites, "Number of satellites to simulate (4-12)")
	flag.DurationVar(&cfg.TimeToLock, "lock-time", cfg.TimeToLock, "Time to GPS lock simulation")
	flag.DurationVar(&cfg.OutputRate, "rate", cfg.OutputRate, "NMEA output rate")
	flag.StringVar(&cfg.SerialPort, "serial", "", "Serial port for NMEA output (e.g., /dev/ttyUSB0, COM1)")
	flag.IntVar(&cfg.BaudRate, "baud", cfg.BaudRate, "Serial port baud rate")
	flag.BoolVar(&quiet, "quiet", false, "Suppress info messages (only output NMEA data)")
	flag.StringVar(&gpxFile, "gpx", "", "GPX file recording the simulated drive")
	flag.DurationVar(&duration, "duration", 0, "How long to run the simulation (e.g., 30s, 5m, 1h). Default is until the route ends")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nGPS NMEA0183 Route Simulator\n")
		fmt.Fprintf(os.Stderr, "Drives a virtual truck along a route, outputting the NMEA sentences its receiver would.\n")
		fmt.Fprintf(os.Stderr, "Pipe the output into 'truck-nav -source stdin' to navigate the drive.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	// Handle version flag
	if showVersion {
		if Version != "dev" {
			fmt.Printf("v%s\n", Version)
		} else {
			fmt.Printf("%s\n", Commit)
		}
		os.Exit(0)
	}

	// Log to stderr so it doesn't interfere with NMEA output
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelError
	}
	logger := log.NewWriter(os.Stderr, level)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	route, err := loadRoute(ctx, ro)
	if err != nil {
		logger.Error("failed to load route", "error", err)
		os.Exit(1)
	}

	// Setup output writer (serial port or stdout)
	var nmeaWriter io.Writer = os.Stdout
	if cfg.SerialPort != "" {
		port, err := gps.OpenSerial(cfg.SerialPort, cfg.BaudRate)
		if err != nil {
			logger.Error("failed to open serial port", "port", cfg.SerialPort, "error", err)
			os.Exit(1)
		}
		defer port.Close()
		nmeaWriter = port
	}

	sim, err := gps.NewSimulator(cfg, route)
	if err != nil {
		logger.Error("failed to create GPS simulator", "error", err)
		os.Exit(1)
	}
	sim.SetNMEAWriter(nmeaWriter)

	if gpxFile != "" {
		trail, err := gps.NewGPXWriter(gpxFile, "gps-simulator drive")
		if err != nil {
			logger.Error("failed to create GPX file", "error", err)
			os.Exit(1)
		}
		sim.AddCallback(func(d gps.NMEAData) { trail.AddFix(d.Fix) })
		defer func() {
			if err := trail.Close(); err != nil {
				logger.Warn("failed to write GPX file", "error", err)
			}
		}()
	}

	logger.Info("starting drive",
		"points", len(route), "km", route.Length(), "speed_kmh", cfg.SpeedKmh,
		"output_rate", cfg.OutputRate, "serial", cfg.SerialPort)

	if err := drive(ctx, sim, duration); err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}
	status := sim.GetStatus()
	logger.Info("drive ended", "finished", status.Finished, "segment", status.Segment, "segments", status.Segments)
}
