package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Bucknalla/go-truck-nav/display"
	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/gps"
	"github.com/Bucknalla/go-truck-nav/internal/config"
	"github.com/Bucknalla/go-truck-nav/internal/log"
	"github.com/Bucknalla/go-truck-nav/internal/store"
	"github.com/Bucknalla/go-truck-nav/nav"
	"github.com/Bucknalla/go-truck-nav/routing"
	"github.com/Bucknalla/go-truck-nav/web"
	"golang.org/x/sync/errgroup"
)

const (
	keepSnapshots  = 20
	breadcrumbBuf  = 256
	dbConnAttempts = 5
)

var (
	ErrNoRoute  = errors.New("no route: set trip.route_file or a routing service")
	ErrNoOrigin = errors.New("the simulator needs trip.origin or trip.route_file")
)

// openSource creates the configured position source. The returned cleanup
// function must be called after the tracker has stopped.
func openSource(c gps.Config, route geo.Polyline, logger *log.Logger) (gps.Source, func(), error) {
	noop := func() {}

	switch c.Source {
	case gps.SourceSerial:
		port, err := gps.OpenSerial(c.SerialPort, c.BaudRate)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("opened serial port", "port", c.SerialPort, "baud", c.BaudRate)
		return gps.NewNMEASource(port), noop, nil

	case gps.SourceStdin:
		return gps.NewNMEASource(os.Stdin), noop, nil

	case gps.SourceReplay:
		points, err := gps.ReadGPXFile(c.ReplayFile)
		if err != nil {
			return nil, noop, err
		}
		src, err := gps.NewReplaySource(points, c.ReplaySpeed, c.ReplayLoop)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("replaying GPX track", "file", c.ReplayFile, "points", len(points), "speed", c.ReplaySpeed)
		return src, noop, nil

	case gps.SourceSimulate:
		sim, err := gps.NewSimulator(c, route)
		if err != nil {
			return nil, noop, err
		}
		// The simulator speaks NMEA like a real receiver would.
		pr, pw := io.Pipe()
		sim.SetNMEAWriter(pw)
		if err := sim.Start(); err != nil {
			return nil, noop, err
		}
		logger.Info("simulating drive along the route", "speed_kmh", c.SpeedKmh, "points", len(route))
		// Closing the pipe first unblocks a pending simulator write.
		return gps.NewNMEASource(pr), func() {
			pr.Close()
			sim.Stop()
		}, nil

	default:
		return nil, noop, gps.ErrUnknownSource
	}
}

// planRoute returns the initial route: the configured GPX route, or one
// computed by the router from origin.
func planRoute(ctx context.Context, trip config.TripConfig, router nav.Router, origin geo.Coordinate, stops []nav.Stop) (nav.Route, error) {
	if trip.RouteFile != "" {
		line, err := gps.ReadPolyline(trip.RouteFile)
		if err != nil {
			return nav.Route{}, err
		}
		return nav.Route{Polyline: line}, nil
	}
	if router == nil {
		return nav.Route{}, ErrNoRoute
	}

	rctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	route, err := router.Route(rctx, origin, stops)
	if err != nil {
		return nav.Route{}, fmt.Errorf("initial route: %w", err)
	}
	return route, nil
}

// run navigates the configured trip until ctx is cancelled.
func run(ctx context.Context, cfg *config.AppConfig, logger *log.Logger, console io.Writer, staticDir string) error {
	stops, err := cfg.Trip.Destinations()
	if err != nil {
		return err
	}

	var router nav.Router
	if cfg.Routing.BaseURL != "" {
		client, err := routing.NewClient(cfg.Routing)
		if err != nil {
			return err
		}
		client.SetLogger(logger.Slog().With("component", "routing"))
		router = client
	}

	var route nav.Route
	var origin *geo.Coordinate
	if cfg.Trip.Origin != "" {
		c, err := config.ParseLocation(cfg.Trip.Origin)
		if err != nil {
			return err
		}
		origin = &c
	}
	if origin != nil || cfg.Trip.RouteFile != "" {
		var from geo.Coordinate
		if origin != nil {
			from = *origin
		}
		if route, err = planRoute(ctx, cfg.Trip, router, from, stops); err != nil {
			return err
		}
	} else if cfg.GPS.Source == gps.SourceSimulate {
		return ErrNoOrigin
	}

	src, cleanup, err := openSource(cfg.GPS, route.Polyline, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	tracker := gps.NewTracker(src)
	tracker.SetLogger(logger.Slog().With("component", "gps"))
	if cfg.GPS.TrailFile != "" {
		trail, err := gps.NewGPXWriter(cfg.GPS.TrailFile, "truck-nav trail")
		if err != nil {
			return err
		}
		tracker.SetTrail(trail)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	// abort stops what has been started so far and returns err.
	abort := func(err error) error {
		cancel()
		return errors.Join(err, g.Wait())
	}

	fixes := make(chan nav.PositionSample)
	g.Go(func() error { return tracker.Run(gctx, fixes) })

	// Without an origin the route starts wherever the first fix is.
	var first *nav.PositionSample
	if len(route.Polyline) == 0 {
		select {
		case s, ok := <-fixes:
			if !ok {
				return abort(errors.New("position source ended before the first fix"))
			}
			first = &s
		case <-gctx.Done():
			return g.Wait()
		}
		logger.Info("planning route from first fix", "origin", first.Coordinate.String())
		if route, err = planRoute(gctx, cfg.Trip, router, first.Coordinate, stops); err != nil {
			return abort(err)
		}
	}

	navigator, err := nav.NewNavigator(cfg.Nav, route, stops, router, nil)
	if err != nil {
		return abort(err)
	}
	navigator.SetLogger(logger.Slog().With("component", "nav"))
	events := navigator.Subscribe()
	sessionID := navigator.State().SessionID.String()
	logger.Info("route planned",
		"session", sessionID, "route_km", route.TotalKm(), "instructions", len(route.Instructions))

	var breadcrumbs chan nav.PositionSample
	var repo *store.TrackRepository
	if cfg.Store.DSN != "" {
		db, err := store.Connect(cfg.Store.DSN, dbConnAttempts, 2*time.Second)
		if err != nil {
			return abort(err)
		}
		repo = store.NewTrackRepository(db)
		breadcrumbs = make(chan nav.PositionSample, breadcrumbBuf)
		g.Go(func() error {
			for s := range breadcrumbs {
				if err := repo.Record(gctx, cfg.Store.VehicleID, sessionID, s); err != nil && gctx.Err() == nil {
					logger.Warn("failed to record breadcrumb", "error", err)
				}
			}
			return nil
		})
	}

	samples := make(chan nav.PositionSample)
	g.Go(func() error {
		defer close(samples)
		if breadcrumbs != nil {
			defer close(breadcrumbs)
		}
		return tee(gctx, first, fixes, samples, breadcrumbs)
	})
	g.Go(func() error { return navigator.Run(gctx, samples) })
	g.Go(func() error { return report(gctx, events, navigator, logger, console) })

	if cfg.Store.SnapshotDir != "" {
		snapshots, err := store.NewSnapshotStore(cfg.Store.SnapshotDir)
		if err != nil {
			return abort(err)
		}
		previousSession(snapshots, logger)
		g.Go(func() error {
			return snapshot(gctx, snapshots, navigator, cfg.Store.SnapshotInterval, logger)
		})
	}

	if cfg.Web.Addr != "" {
		srv := web.NewServer(navigator, staticDir)
		srv.SetLogger(logger.Slog().With("component", "web"))
		if repo != nil {
			srv.SetTracks(repo, cfg.Store.VehicleID)
		}
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Web.Addr) })
	}

	err = g.Wait()
	n, noFix := tracker.Stats()
	logger.Info("navigation stopped", "samples", n, "no_fix", noFix, "dropped_events", navigator.Dropped())
	return err
}

// tee forwards samples to the navigator and, without blocking it, to the
// breadcrumb recorder. first, if set, is sent before anything from in.
func tee(ctx context.Context, first *nav.PositionSample, in <-chan nav.PositionSample, out, record chan<- nav.PositionSample) error {
	forward := func(s nav.PositionSample) bool {
		select {
		case out <- s:
		case <-ctx.Done():
			return false
		}
		if record != nil {
			select {
			case record <- s:
			default:
			}
		}
		return true
	}

	if first != nil && !forward(*first) {
		return nil
	}
	for s := range in {
		if !forward(s) {
			return nil
		}
	}
	return nil
}

// report logs navigation events and prints them to the console.
func report(ctx context.Context, events <-chan nav.Event, navigator *nav.Navigator, logger *log.Logger, console io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			attrs := []any{slog.String("kind", string(e.Kind)), slog.String("position", e.Position.String())}
			if e.Detail != "" {
				attrs = append(attrs, slog.String("detail", e.Detail))
			}
			switch e.Kind {
			case nav.EventRecalculationFailed, nav.EventBreakWarning:
				logger.Warn("navigation event", attrs...)
			default:
				logger.Info("navigation event", attrs...)
			}

			if console != nil {
				v := display.Render(navigator.State(), time.Now())
				fmt.Fprintf(console, "%-28s %s | %s in %s, ETA %s | %d%%\n",
					e.Kind, v.Instruction, v.RemainingDistance, v.RemainingTime, v.ETA, v.Progress)
			}
		}
	}
}

// previousSession logs the last snapshot left by an earlier run.
func previousSession(s *store.SnapshotStore, logger *log.Logger) {
	state, saved, err := s.Latest()
	if errors.Is(err, store.ErrNoSnapshot) {
		return
	}
	if err != nil {
		logger.Warn("failed to read previous snapshot", "error", err)
		return
	}
	logger.Info("previous session",
		"session", state.SessionID.String(), "saved", saved.Format(time.RFC3339),
		"progress", state.ProgressPercent, "completed", state.Completed,
		"remaining_km", state.RemainingDistanceKm)
}

// snapshot saves the navigation state every interval and once more on exit.
func snapshot(ctx context.Context, s *store.SnapshotStore, navigator *nav.Navigator, interval time.Duration, logger *log.Logger) error {
	save := func() {
		if err := s.Save(navigator.State()); err != nil {
			logger.Warn("failed to save snapshot", "error", err)
		}
	}
	defer func() {
		save()
		if err := s.Prune(keepSnapshots); err != nil {
			logger.Warn("failed to prune snapshots", "error", err)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			save()
		}
	}
}
