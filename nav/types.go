package nav

import (
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/google/uuid"
)

// PositionSample is a normalized position reading from the device.
type PositionSample struct {
	Coordinate geo.Coordinate `json:"coordinate" msgpack:"coordinate"`
	Heading    *float64       `json:"heading,omitempty" msgpack:"heading,omitempty"`     // degrees, nil if unavailable
	SpeedKmh   *float64       `json:"speed_kmh,omitempty" msgpack:"speed_kmh,omitempty"` // nil if unavailable
	Timestamp  time.Time      `json:"timestamp" msgpack:"timestamp"`
}

// Instruction is one turn-by-turn maneuver of a route.
type Instruction struct {
	Text      string         `json:"text" msgpack:"text"`
	Maneuver  string         `json:"maneuver" msgpack:"maneuver"`
	Modifier  string         `json:"modifier,omitempty" msgpack:"modifier,omitempty"`
	Road      string         `json:"road,omitempty" msgpack:"road,omitempty"`
	DistanceM float64        `json:"distance_m" msgpack:"distance_m"`
	DurationS float64        `json:"duration_s" msgpack:"duration_s"`
	Location  geo.Coordinate `json:"location" msgpack:"location"`
}

// Route is a computed route: the polyline to follow and its instructions.
// A route is never modified in place; recalculation replaces it.
type Route struct {
	Polyline     geo.Polyline  `json:"polyline" msgpack:"polyline"`
	Instructions []Instruction `json:"instructions" msgpack:"instructions"`
	DistanceKm   float64       `json:"distance_km" msgpack:"distance_km"`
	DurationMin  float64       `json:"duration_min" msgpack:"duration_min"`
}

// TotalKm returns the route distance reported by the router, or the
// polyline length when none was reported.
func (r Route) TotalKm() float64 {
	if r.DistanceKm > 0 {
		return r.DistanceKm
	}
	return r.Polyline.Length()
}

// Stop is an entry of the destination list.
type Stop struct {
	Coordinate geo.Coordinate `json:"coordinate" msgpack:"coordinate"`
	Name       string         `json:"name" msgpack:"name"`
	RestStop   bool           `json:"rest_stop,omitempty" msgpack:"rest_stop,omitempty"`
}

// TrafficLabel classifies a reported traffic delay.
type TrafficLabel string

const (
	TrafficNormal TrafficLabel = "normal"
	TrafficSlow   TrafficLabel = "slow"
	TrafficHeavy  TrafficLabel = "heavy"
)

// TrafficReport is the routing service's answer to a traffic check.
type TrafficReport struct {
	DelayMinutes     float64 `json:"delay_minutes"`
	NewDurationMin   float64 `json:"new_duration_min"`
	TimeSavedMinutes float64 `json:"time_saved_minutes"`
	Alternative      *Route  `json:"alternative,omitempty"`
}

// State is the flat, serializable view of a navigation session.
type State struct {
	SessionID uuid.UUID `json:"session_id" msgpack:"session_id"`
	StartedAt time.Time `json:"started_at" msgpack:"started_at"`

	CurrentStepIndex     int     `json:"current_step_index" msgpack:"current_step_index"`
	CurrentWaypointIndex int     `json:"current_waypoint_index" msgpack:"current_waypoint_index"`
	SmoothedHeading      float64 `json:"smoothed_heading" msgpack:"smoothed_heading"`

	IsOffRoute            bool      `json:"is_off_route" msgpack:"is_off_route"`
	OffRoutePrompt        bool      `json:"off_route_prompt" msgpack:"off_route_prompt"`
	LastRecalculationTime time.Time `json:"last_recalculation_time,omitempty" msgpack:"last_recalculation_time"`

	DrivingElapsedSeconds float64 `json:"driving_elapsed_seconds" msgpack:"driving_elapsed_seconds"`
	BreakWarning          bool    `json:"break_warning" msgpack:"break_warning"`

	ProgressPercent          float64 `json:"progress_percent" msgpack:"progress_percent"`
	RemainingDistanceKm      float64 `json:"remaining_distance_km" msgpack:"remaining_distance_km"`
	RemainingTimeMin         float64 `json:"remaining_time_min" msgpack:"remaining_time_min"`
	DistanceToNextWaypointKm float64 `json:"distance_to_next_waypoint_km" msgpack:"distance_to_next_waypoint_km"`
	TimeToNextWaypointMin    float64 `json:"time_to_next_waypoint_min" msgpack:"time_to_next_waypoint_min"`
	DistanceToManeuverKm     float64 `json:"distance_to_maneuver_km" msgpack:"distance_to_maneuver_km"`

	Traffic             TrafficLabel `json:"traffic" msgpack:"traffic"`
	TrafficDelayMinutes float64      `json:"traffic_delay_minutes" msgpack:"traffic_delay_minutes"`
	AlternativePending  bool         `json:"alternative_pending" msgpack:"alternative_pending"`

	Completed bool            `json:"completed" msgpack:"completed"`
	Position  *PositionSample `json:"position,omitempty" msgpack:"position,omitempty"`

	Instruction  *Instruction `json:"instruction,omitempty" msgpack:"instruction,omitempty"`
	NextStop     *Stop        `json:"next_stop,omitempty" msgpack:"next_stop,omitempty"`
	Destinations int          `json:"destinations" msgpack:"destinations"`
}
