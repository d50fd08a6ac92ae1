package nav

import (
	"math"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/google/uuid"
)

// Clock supplies the current time to the engine.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Session is the navigation state machine for one trip. It is not safe for
// concurrent use: samples, ticks and route replacements must be applied one
// at a time, which Navigator guarantees.
type Session struct {
	id        uuid.UUID
	config    Config
	clock     Clock
	startedAt time.Time

	route        Route
	totalKm      float64
	destinations []Stop
	alternative  *Route

	stepIndex     int
	waypointIndex int
	heading       *HeadingSmoother
	gate          *Gate

	offRoute       bool
	offRoutePrompt bool
	completed      bool

	drivingElapsed time.Duration
	breakWarned    bool

	traffic      TrafficLabel
	trafficDelay float64

	last *PositionSample

	progress       float64
	remainingKm    float64
	remainingMin   float64
	nextKm         float64
	nextMin        float64
	nextManeuverKm float64
}

// NewSession creates a session for route and destinations. destinations must
// hold at least the final destination. The trip length used for progress is
// measured along the initial route and kept across recalculations.
func NewSession(config Config, route Route, destinations []Stop, clock Clock) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(destinations) == 0 {
		return nil, ErrNoDestinations
	}
	if clock == nil {
		clock = SystemClock
	}

	s := &Session{
		id:           uuid.New(),
		config:       config,
		clock:        clock,
		startedAt:    clock.Now(),
		route:        route,
		destinations: append([]Stop(nil), destinations...),
		heading:      NewHeadingSmoother(config.HeadingDeadband, config.HeadingSmoothing),
		gate:         NewGate(config.RecalculationCooldown),
		traffic:      TrafficNormal,
	}
	// The initial route was just computed; treat it as the last
	// recalculation so an immediate departure waits out the cooldown.
	s.gate.Arm(s.startedAt)

	final := s.destinations[len(s.destinations)-1].Coordinate
	if len(route.Polyline) > 0 {
		s.totalKm = s.distanceLeft(route.Polyline[0])
		s.remainingKm = s.totalKm
	}
	s.nextKm = geo.Distance(firstOr(route.Polyline, final), s.destinations[0].Coordinate)
	s.recomputeTimes(nil)

	return s, nil
}

func firstOr(p geo.Polyline, c geo.Coordinate) geo.Coordinate {
	if len(p) == 0 {
		return c
	}
	return p[0]
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Route returns the active route.
func (s *Session) Route() Route { return s.route }

// Destinations returns a copy of the destination list.
func (s *Session) Destinations() []Stop {
	return append([]Stop(nil), s.destinations...)
}

// RemainingStops returns the stops not yet reached, current one first.
func (s *Session) RemainingStops() []Stop {
	return append([]Stop(nil), s.destinations[s.waypointIndex:]...)
}

// LastSample returns the most recent sample, or nil before the first one.
func (s *Session) LastSample() *PositionSample { return s.last }

// Update applies one position sample and returns the events it caused.
func (s *Session) Update(sample PositionSample) []Event {
	now := s.clock.Now()
	pos := sample.Coordinate
	s.last = &sample

	var events []Event
	emit := func(e Event) {
		e.Time = now
		e.Position = pos
		events = append(events, e)
	}

	if sample.Heading != nil {
		s.heading.Update(*sample.Heading)
	}

	s.checkRoute(pos, emit)
	s.advanceStep(pos, emit)
	s.advanceWaypoint(pos, emit)

	if s.offRoute && len(s.route.Polyline) > 0 && s.gate.Trigger(now) {
		s.offRoutePrompt = false
		emit(Event{Kind: EventRecalculationRequested, WaypointIndex: s.waypointIndex})
	}

	s.remainingKm = nonNegative(s.distanceLeft(pos))
	s.nextKm = nonNegative(geo.Distance(pos, s.destinations[s.waypointIndex].Coordinate))
	if len(s.route.Instructions) > 0 {
		s.nextManeuverKm = nonNegative(geo.Distance(pos, s.route.Instructions[s.stepIndex].Location))
	}
	s.recomputeTimes(sample.SpeedKmh)
	s.progress = s.progressPercent()

	return events
}

// checkRoute flags departure from the route. The flag is only cleared by a
// route replacement, never by drifting back within the threshold.
func (s *Session) checkRoute(pos geo.Coordinate, emit func(Event)) {
	if len(s.route.Polyline) == 0 {
		return
	}
	distM := geo.MinDistanceToPolyline(pos, s.route.Polyline) * 1000
	if distM > s.config.OffRouteThresholdM && !s.offRoute {
		s.offRoute = true
		s.offRoutePrompt = true
		emit(Event{Kind: EventOffRoute, Detail: formatMeters(distM)})
	}
}

func (s *Session) advanceStep(pos geo.Coordinate, emit func(Event)) {
	n := len(s.route.Instructions)
	if n == 0 || s.stepIndex >= n-1 {
		return
	}
	cur := s.route.Instructions[s.stepIndex]
	if geo.Distance(pos, cur.Location)*1000 < s.config.StepAdvanceRadiusM {
		s.stepIndex++
		next := s.route.Instructions[s.stepIndex]
		emit(Event{Kind: EventStepAdvanced, StepIndex: s.stepIndex, Instruction: &next})
	}
}

func (s *Session) advanceWaypoint(pos geo.Coordinate, emit func(Event)) {
	lastIdx := len(s.destinations) - 1
	stop := s.destinations[s.waypointIndex]
	if geo.Distance(pos, stop.Coordinate)*1000 >= s.config.ArrivalRadiusM {
		return
	}

	if s.waypointIndex < lastIdx {
		s.waypointIndex++
		emit(Event{Kind: EventWaypointArrived, WaypointIndex: s.waypointIndex - 1, Stop: &stop})
		return
	}
	if !s.completed {
		s.completed = true
		emit(Event{Kind: EventDestinationReached, WaypointIndex: s.waypointIndex, Stop: &stop})
	}
}

func (s *Session) recomputeTimes(speed *float64) {
	v := s.config.EffectiveSpeedKmh(speed)
	s.remainingMin = nonNegative(s.remainingKm / v * 60)
	s.nextMin = nonNegative(s.nextKm / v * 60)
}

// distanceLeft is the road distance from pos to the final destination: along
// the current route from pos's nearest point on it, then straight to the stop.
// Without a route it falls back to the straight-line distance.
func (s *Session) distanceLeft(pos geo.Coordinate) float64 {
	final := s.destinations[len(s.destinations)-1].Coordinate
	line := s.route.Polyline
	if len(line) == 0 {
		return geo.Distance(pos, final)
	}
	return geo.RemainingAlong(pos, line) + geo.Distance(line[len(line)-1], final)
}

func (s *Session) progressPercent() float64 {
	if s.totalKm <= 0 {
		if s.completed {
			return 100
		}
		return 0
	}
	p := (s.totalKm - s.remainingKm) / s.totalKm * 100
	return math.Max(0, math.Min(100, p))
}

// Tick advances the driving-time counter by d and returns a break warning
// the first time the threshold is crossed.
func (s *Session) Tick(d time.Duration) []Event {
	s.drivingElapsed += d
	if s.breakWarned || s.drivingElapsed < s.config.BreakThreshold {
		return nil
	}
	s.breakWarned = true
	e := Event{Kind: EventBreakWarning, Time: s.clock.Now(), Detail: s.drivingElapsed.String()}
	if s.last != nil {
		e.Position = s.last.Coordinate
	}
	return []Event{e}
}

// ResetDrivingTime clears the driving-time counter after a break.
func (s *Session) ResetDrivingTime() {
	s.drivingElapsed = 0
	s.breakWarned = false
}

// ReplaceRoute installs a new route, clearing the off-route flag and
// restarting instruction stepping. The waypoint pointer is unchanged.
func (s *Session) ReplaceRoute(route Route) []Event {
	s.route = route
	s.stepIndex = 0
	s.offRoute = false
	s.offRoutePrompt = false
	s.alternative = nil
	if len(route.Instructions) > 0 && s.last != nil {
		s.nextManeuverKm = geo.Distance(s.last.Coordinate, route.Instructions[0].Location)
	}

	e := Event{Kind: EventRouteReplaced, Time: s.clock.Now(), WaypointIndex: s.waypointIndex}
	if s.last != nil {
		e.Position = s.last.Coordinate
	}
	return []Event{e}
}

// RecalculationFailed records a failed reroute. The session stays off-route
// and the gate keeps cooling down; a later off-route sample retries.
func (s *Session) RecalculationFailed(err error) []Event {
	e := Event{Kind: EventRecalculationFailed, Time: s.clock.Now(), Detail: err.Error()}
	if s.last != nil {
		e.Position = s.last.Coordinate
	}
	return []Event{e}
}

// ApplyTraffic records a traffic report. An alternative route is held until
// AcceptAlternative is called.
func (s *Session) ApplyTraffic(report TrafficReport) []Event {
	var events []Event
	now := s.clock.Now()
	var pos geo.Coordinate
	if s.last != nil {
		pos = s.last.Coordinate
	}

	label := ClassifyDelay(report.DelayMinutes)
	changed := label != s.traffic || report.DelayMinutes != s.trafficDelay
	s.traffic = label
	s.trafficDelay = nonNegative(report.DelayMinutes)
	if changed {
		events = append(events, Event{Kind: EventTrafficUpdated, Time: now, Position: pos,
			Traffic: label, DelayMinutes: s.trafficDelay})
	}

	if report.Alternative != nil && len(report.Alternative.Polyline) > 0 {
		alt := *report.Alternative
		s.alternative = &alt
		events = append(events, Event{Kind: EventAlternativeRouteAvailable, Time: now, Position: pos,
			DelayMinutes: report.TimeSavedMinutes, Detail: formatMinutes(report.TimeSavedMinutes)})
	}
	return events
}

// AcceptAlternative switches to the pending alternative route.
func (s *Session) AcceptAlternative() ([]Event, error) {
	if s.alternative == nil {
		return nil, ErrNoAlternative
	}
	return s.ReplaceRoute(*s.alternative), nil
}

// State returns the serializable view of the session.
func (s *Session) State() State {
	st := State{
		SessionID:                s.id,
		StartedAt:                s.startedAt,
		CurrentStepIndex:         s.stepIndex,
		CurrentWaypointIndex:     s.waypointIndex,
		SmoothedHeading:          s.heading.Heading(),
		IsOffRoute:               s.offRoute,
		OffRoutePrompt:           s.offRoutePrompt,
		LastRecalculationTime:    s.gate.LastRecalculation(),
		DrivingElapsedSeconds:    s.drivingElapsed.Seconds(),
		BreakWarning:             s.breakWarned,
		ProgressPercent:          s.progress,
		RemainingDistanceKm:      s.remainingKm,
		RemainingTimeMin:         s.remainingMin,
		DistanceToNextWaypointKm: s.nextKm,
		TimeToNextWaypointMin:    s.nextMin,
		DistanceToManeuverKm:     s.nextManeuverKm,
		Traffic:                  s.traffic,
		TrafficDelayMinutes:      s.trafficDelay,
		AlternativePending:       s.alternative != nil,
		Completed:                s.completed,
		Destinations:             len(s.destinations),
	}
	if s.last != nil {
		p := *s.last
		st.Position = &p
	}
	if len(s.route.Instructions) > 0 {
		in := s.route.Instructions[s.stepIndex]
		st.Instruction = &in
	}
	stop := s.destinations[s.waypointIndex]
	st.NextStop = &stop
	return st
}

// GateState reports the recalculation gate state.
func (s *Session) GateState() GateState {
	return s.gate.State(s.clock.Now())
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
