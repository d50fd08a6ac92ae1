package nav

import (
	"fmt"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	EventOffRoute                  EventKind = "off_route"
	EventWaypointArrived           EventKind = "waypoint_arrived"
	EventDestinationReached        EventKind = "destination_reached"
	EventStepAdvanced              EventKind = "step_advanced"
	EventBreakWarning              EventKind = "break_warning"
	EventRecalculationRequested    EventKind = "recalculation_requested"
	EventRecalculationFailed       EventKind = "recalculation_failed"
	EventRouteReplaced             EventKind = "route_replaced"
	EventTrafficUpdated            EventKind = "traffic_updated"
	EventAlternativeRouteAvailable EventKind = "alternative_route_available"
)

// Event is emitted by the session for voice, toast and UI collaborators.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Time     time.Time      `json:"time"`
	Position geo.Coordinate `json:"position"`

	WaypointIndex int          `json:"waypoint_index,omitempty"`
	Stop          *Stop        `json:"stop,omitempty"`
	StepIndex     int          `json:"step_index,omitempty"`
	Instruction   *Instruction `json:"instruction,omitempty"`
	Traffic       TrafficLabel `json:"traffic,omitempty"`
	DelayMinutes  float64      `json:"delay_minutes,omitempty"`
	Detail        string       `json:"detail,omitempty"`
}

func formatMeters(m float64) string {
	return fmt.Sprintf("%.0f m from route", m)
}

func formatMinutes(m float64) string {
	return fmt.Sprintf("%.0f min faster", m)
}
