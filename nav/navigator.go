package nav

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
)

// ErrSessionEnded is returned when Run is called on a navigator whose
// session has already been discarded.
var ErrSessionEnded = errors.New("navigation session has ended")

// Router is the routing service the engine asks for new routes and traffic
// information.
type Router interface {
	Route(ctx context.Context, origin geo.Coordinate, stops []Stop) (Route, error)
	CheckTraffic(ctx context.Context, origin geo.Coordinate, stops []Stop, current Route) (TrafficReport, error)
}

type command struct {
	fn    func(*Session) ([]Event, error)
	reply chan error
}

// Navigator runs a Session against a live sample stream. A single goroutine
// owns the session; samples, timer ticks, routing results and user commands
// are applied one at a time in arrival order.
type Navigator struct {
	mu        sync.RWMutex
	config    Config
	router    Router
	logger    *slog.Logger
	session   *Session
	state     State
	route     Route
	listeners []chan Event
	dropped   int

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup

	commands chan command
	results  chan func(*Session) []Event
	traffic  chan func(*Session) []Event
}

// NewNavigator creates a navigator with a fresh session. router may be nil,
// in which case recalculation and traffic checks are disabled.
func NewNavigator(config Config, route Route, destinations []Stop, router Router, clock Clock) (*Navigator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	session, err := NewSession(config, route, destinations, clock)
	if err != nil {
		return nil, err
	}

	return &Navigator{
		config:   config,
		router:   router,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		session:  session,
		state:    session.State(),
		route:    route,
		commands: make(chan command),
		results:  make(chan func(*Session) []Event, 1),
		traffic:  make(chan func(*Session) []Event, 1),
	}, nil
}

// SetLogger sets the logger used for engine diagnostics. A running navigator
// keeps the logger it started with.
func (n *Navigator) SetLogger(l *slog.Logger) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if l != nil {
		n.logger = l.With(slog.String("session", n.state.SessionID.String()))
	}
}

// Subscribe returns a channel receiving every event emitted from now on. A
// subscriber that falls behind loses events rather than stalling the
// engine. The channel is closed when the navigator stops.
func (n *Navigator) Subscribe() <-chan Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Event, n.config.EventBuffer)
	if n.session == nil {
		close(ch)
		return ch
	}
	n.listeners = append(n.listeners, ch)
	return ch
}

// State returns the latest session state.
func (n *Navigator) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Route returns the active route.
func (n *Navigator) Route() Route {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.route
}

// IsRunning returns whether the sample loop is active.
func (n *Navigator) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.running
}

// Dropped returns how many events were discarded because a subscriber was
// not keeping up.
func (n *Navigator) Dropped() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dropped
}

// Run processes samples until ctx is cancelled or Stop is called. A closed
// samples channel is treated as a gap in the stream: timers keep running and
// the last known state persists. When Run returns both timers are stopped
// and the session is discarded.
func (n *Navigator) Run(ctx context.Context, samples <-chan PositionSample) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrNavigatorAlreadyRunning
	}
	if n.session == nil {
		n.mu.Unlock()
		return ErrSessionEnded
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.running = true
	n.done = make(chan struct{})
	session := n.session
	logger := n.logger
	n.mu.Unlock()

	breakTicker := time.NewTicker(n.config.BreakTick)
	defer breakTicker.Stop()

	var trafficC <-chan time.Time
	if n.router != nil && n.config.TrafficPollInterval > 0 {
		trafficTicker := time.NewTicker(n.config.TrafficPollInterval)
		defer trafficTicker.Stop()
		trafficC = trafficTicker.C
	}

	defer n.shutdown()

	logger.Info("navigation started",
		slog.Int("destinations", len(session.destinations)),
		slog.Int("route_points", len(session.route.Polyline)))

	trafficInFlight := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case sample, ok := <-samples:
			if !ok {
				logger.Warn("position stream closed; keeping last known state")
				samples = nil
				continue
			}
			n.apply(ctx, logger, session, session.Update(sample))

		case <-breakTicker.C:
			n.apply(ctx, logger, session, session.Tick(n.config.BreakTick))

		case <-trafficC:
			if trafficInFlight || session.LastSample() == nil {
				continue
			}
			trafficInFlight = true
			n.checkTraffic(ctx, logger, session.LastSample().Coordinate, session.RemainingStops(), session.Route())

		case fn := <-n.results:
			n.apply(ctx, logger, session, fn(session))

		case fn := <-n.traffic:
			trafficInFlight = false
			n.apply(ctx, logger, session, fn(session))

		case cmd := <-n.commands:
			events, err := cmd.fn(session)
			n.apply(ctx, logger, session, events)
			cmd.reply <- err
		}
	}
}

// Stop ends navigation: the sample loop exits, timers are cancelled and the
// session is discarded.
func (n *Navigator) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return ErrNavigatorNotRunning
	}
	n.cancel()
	done := n.done
	n.mu.Unlock()

	<-done
	return nil
}

// ResetDrivingTime clears the driving-time counter after the driver took a
// break.
func (n *Navigator) ResetDrivingTime() error {
	return n.do(func(s *Session) ([]Event, error) {
		s.ResetDrivingTime()
		return nil, nil
	})
}

// AcceptAlternative switches to the alternative route offered by the last
// traffic check.
func (n *Navigator) AcceptAlternative() error {
	return n.do(func(s *Session) ([]Event, error) {
		return s.AcceptAlternative()
	})
}

func (n *Navigator) do(fn func(*Session) ([]Event, error)) error {
	n.mu.RLock()
	running, done := n.running, n.done
	n.mu.RUnlock()
	if !running {
		return ErrNavigatorNotRunning
	}

	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case n.commands <- cmd:
		return <-cmd.reply
	case <-done:
		return ErrNavigatorNotRunning
	}
}

func (n *Navigator) apply(ctx context.Context, logger *slog.Logger, session *Session, events []Event) {
	state := session.State()

	n.mu.Lock()
	n.state = state
	n.route = session.Route()
	for _, e := range events {
		for _, l := range n.listeners {
			select {
			case l <- e:
			default:
				n.dropped++
			}
		}
	}
	n.mu.Unlock()

	for _, e := range events {
		switch e.Kind {
		case EventRecalculationRequested:
			logger.Info("requesting new route", slog.String("origin", e.Position.String()))
			n.recalculate(ctx, e.Position, session.RemainingStops())
		case EventOffRoute, EventRecalculationFailed, EventBreakWarning:
			logger.Warn(string(e.Kind), slog.String("detail", e.Detail))
		default:
			logger.Debug(string(e.Kind), slog.Int("waypoint", state.CurrentWaypointIndex))
		}
	}
}

// recalculate asks the router for a new route off the sample loop. The
// result is handed back through n.results so the session is only touched by
// the loop goroutine.
func (n *Navigator) recalculate(ctx context.Context, origin geo.Coordinate, stops []Stop) {
	if n.router == nil {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		rctx, cancel := context.WithTimeout(ctx, n.config.RecalculationCooldown)
		defer cancel()

		var fn func(*Session) []Event
		route, err := n.router.Route(rctx, origin, stops)
		if err != nil {
			fn = func(s *Session) []Event { return s.RecalculationFailed(err) }
		} else {
			fn = func(s *Session) []Event { return s.ReplaceRoute(route) }
		}

		select {
		case n.results <- fn:
		case <-ctx.Done():
		}
	}()
}

func (n *Navigator) checkTraffic(ctx context.Context, logger *slog.Logger, origin geo.Coordinate, stops []Stop, current Route) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		tctx, cancel := context.WithTimeout(ctx, n.config.TrafficPollInterval)
		defer cancel()

		var fn func(*Session) []Event
		report, err := n.router.CheckTraffic(tctx, origin, stops, current)
		if err != nil {
			logger.Warn("traffic check failed", slog.Any("error", err))
			fn = func(*Session) []Event { return nil }
		} else {
			fn = func(s *Session) []Event { return s.ApplyTraffic(report) }
		}

		select {
		case n.traffic <- fn:
		case <-ctx.Done():
		}
	}()
}

func (n *Navigator) shutdown() {
	n.mu.Lock()
	n.cancel()
	n.mu.Unlock()

	n.wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()

	n.logger.Info("navigation ended",
		slog.Float64("progress", n.state.ProgressPercent),
		slog.Bool("completed", n.state.Completed),
		slog.Int("dropped_events", n.dropped))

	for _, l := range n.listeners {
		close(l)
	}
	n.listeners = nil
	n.session = nil
	n.running = false
	close(n.done)
}
