package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Bucknalla/go-truck-nav/gps"
	"github.com/Bucknalla/go-truck-nav/internal/config"
	"github.com/Bucknalla/go-truck-nav/internal/log"
)

// Version information - populated at build time via ldflags
var (
	Version   = "dev"     // Will be set to git tag if available, otherwise "dev"
	Commit    = "unknown" // Will be set to git commit hash
	BuildDate = "unknown" // Will be set to build timestamp
)

// stopList collects repeated -stop flags of the form "name=lat,lon" or
// "lat,lon".
type stopList []config.StopConfig

func (s *stopList) String() string {
	parts := make([]string, len(*s))
	for i, stop := range *s {
		parts[i] = stop.Location
	}
	return strings.Join(parts, " ")
}

func (s *stopList) Set(value string) error {
	var stop config.StopConfig
	if name, loc, ok := strings.Cut(value, "="); ok {
		stop.Name, value = name, loc
	}
	if _, err := config.ParseLocation(value); err != nil {
		return err
	}
	stop.Location = value
	*s = append(*s, stop)
	return nil
}

type options struct {
	configPath  string
	showVersion bool
	quiet       bool
	staticDir   string

	stops       stopList
	origin      string
	routeFile   string
	source      string
	serialPort  string
	baudRate    int
	replayFile  string
	replaySpeed float64
	replayLoop  bool
	speedKmh    float64
	trailFile   string
	routerURL   string
	language    string
	listen      string
	logLevel    string
	logDir      string
	snapshotDir string
	dsn         string
	cooldown    time.Duration
}

func newFlagSet(o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("truck-nav", flag.ContinueOnError)

	fs.BoolVar(&o.showVersion, "version", false, "Show version information and exit")
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.BoolVar(&o.quiet, "quiet", false, "Suppress the console navigation display")
	fs.StringVar(&o.staticDir, "static", "", "Directory of static dashboard files to serve")

	fs.Var(&o.stops, "stop", "Trip stop as name=lat,lon (repeatable, last one is the destination)")
	fs.StringVar(&o.origin, "origin", "", "Trip origin as lat,lon (default: first position fix)")
	fs.StringVar(&o.routeFile, "route", "", "GPX file with the route to follow instead of asking the router")
	fs.StringVar(&o.source, "source", "", "Position source: serial, stdin, replay or simulate")
	fs.StringVar(&o.serialPort, "serial", "", "Serial port of the GPS receiver (e.g., /dev/ttyUSB0, COM1)")
	fs.IntVar(&o.baudRate, "baud", 0, "Serial port baud rate")
	fs.StringVar(&o.replayFile, "replay", "", "GPX file to replay as the position source")
	fs.Float64Var(&o.replaySpeed, "replay-speed", 0, "Replay speed multiplier (1.0=real-time, 2.0=2x speed)")
	fs.BoolVar(&o.replayLoop, "replay-loop", false, "Loop the GPX replay continuously")
	fs.Float64Var(&o.speedKmh, "speed", 0, "Simulated driving speed in km/h")
	fs.StringVar(&o.trailFile, "trail", "", "GPX file recording the driven trail")
	fs.StringVar(&o.routerURL, "router", "", "Base URL of the OSRM routing service (\"off\" disables rerouting)")
	fs.StringVar(&o.language, "lang", "", "Instruction language: en or de")
	fs.StringVar(&o.listen, "listen", "", "Web dashboard listen address (\"off\" disables it)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&o.logDir, "log-dir", "", "Directory for rotating log files")
	fs.StringVar(&o.snapshotDir, "snapshots", "", "Directory for session state snapshots")
	fs.StringVar(&o.dsn, "dsn", "", "PostGIS DSN for the fleet breadcrumb trail")
	fs.DurationVar(&o.cooldown, "cooldown", 0, "Minimum time between route recalculations")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(fs.Output(), "\nTruck turn-by-turn navigation\n")
		fmt.Fprintf(fs.Output(), "Follows a route from a live or simulated GPS, rerouting when the truck leaves it.\n\n")
		fmt.Fprintf(fs.Output(), "Options:\n")
		fs.PrintDefaults()
	}
	return fs
}

// apply overrides cfg with the flags that were set explicitly.
func (o *options) apply(fs *flag.FlagSet, cfg *config.AppConfig) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "stop":
			cfg.Trip.Stops = o.stops
		case "origin":
			cfg.Trip.Origin = o.origin
		case "route":
			cfg.Trip.RouteFile = o.routeFile
		case "source":
			cfg.GPS.Source = o.source
		case "serial":
			cfg.GPS.SerialPort = o.serialPort
		case "baud":
			cfg.GPS.BaudRate = o.baudRate
		case "replay":
			cfg.GPS.ReplayFile = o.replayFile
		case "replay-speed":
			cfg.GPS.ReplaySpeed = o.replaySpeed
		case "replay-loop":
			cfg.GPS.ReplayLoop = o.replayLoop
		case "speed":
			cfg.GPS.SpeedKmh = o.speedKmh
		case "trail":
			cfg.GPS.TrailFile = o.trailFile
		case "router":
			cfg.Routing.BaseURL = o.routerURL
			if o.routerURL == "off" {
				cfg.Routing.BaseURL = ""
			}
		case "lang":
			cfg.Routing.Language = o.language
		case "listen":
			cfg.Web.Addr = o.listen
			if o.listen == "off" {
				cfg.Web.Addr = ""
			}
		case "log-level":
			cfg.Log.Level = o.logLevel
		case "log-dir":
			cfg.Log.Dir = o.logDir
		case "snapshots":
			cfg.Store.SnapshotDir = o.snapshotDir
		case "dsn":
			cfg.Store.DSN = o.dsn
		case "cooldown":
			cfg.Nav.RecalculationCooldown = o.cooldown
		}
	})

	// A serial port or replay file implies its source kind.
	if !isSet(fs, "source") {
		switch {
		case isSet(fs, "serial"):
			cfg.GPS.Source = gps.SourceSerial
		case isSet(fs, "replay"):
			cfg.GPS.Source = gps.SourceReplay
		}
	}
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func main() {
	var o options
	fs := newFlagSet(&o)
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	// Handle version flag
	if o.showVersion {
		if Version != "dev" {
			fmt.Printf("v%s\n", Version)
		} else {
			fmt.Printf("%s\n", Commit)
		}
		os.Exit(0)
	}

	loader, err := config.NewLoader(o.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := *loader.Current()
	o.apply(fs, &cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.Info("truck-nav starting",
		"version", Version, "commit", Commit, "build_date", BuildDate,
		"source", cfg.GPS.Source, "stops", len(cfg.Trip.Stops))

	loader.OnChange(func(c *config.AppConfig) {
		if err := logger.SetLevel(c.Log.Level); err != nil {
			logger.Warn("ignoring reloaded log level", "error", err)
		}
		logger.Info("configuration reloaded; navigation settings apply to the next trip")
	})
	loader.Watch(func(err error) {
		logger.Warn("ignoring invalid configuration change", "error", err)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var console io.Writer = os.Stdout
	if o.quiet {
		console = nil
	}
	if err := run(ctx, &cfg, logger, console, o.staticDir); err != nil {
		logger.Error("truck-nav failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
