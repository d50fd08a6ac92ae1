package display

import (
	"fmt"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/nav"
)

// View is the display record for one navigation state.
type View struct {
	Instruction      string `json:"instruction"`
	ManeuverDistance string `json:"maneuver_distance"`

	NextStop         string `json:"next_stop,omitempty"`
	NextStopDistance string `json:"next_stop_distance"`
	NextStopTime     string `json:"next_stop_time"`

	RemainingDistance string `json:"remaining_distance"`
	RemainingTime     string `json:"remaining_time"`
	ETA               string `json:"eta"`
	Progress          int    `json:"progress"`

	Heading string `json:"heading"`
	Speed   string `json:"speed"`

	OffRoute     bool   `json:"off_route"`
	Traffic      string `json:"traffic"`
	DrivingTime  string `json:"driving_time"`
	BreakWarning bool   `json:"break_warning"`
	Completed    bool   `json:"completed"`
}

var trafficText = map[nav.TrafficLabel]string{
	nav.TrafficNormal: "Traffic normal",
	nav.TrafficSlow:   "Slow traffic",
	nav.TrafficHeavy:  "Heavy traffic",
}

// Render builds the display record for s as seen at now.
func Render(s nav.State, now time.Time) View {
	v := View{
		Instruction:       Placeholder,
		ManeuverDistance:  FormatDistance(s.DistanceToManeuverKm),
		NextStopDistance:  FormatDistance(s.DistanceToNextWaypointKm),
		NextStopTime:      FormatDuration(s.TimeToNextWaypointMin),
		RemainingDistance: FormatDistance(s.RemainingDistanceKm),
		RemainingTime:     FormatDuration(s.RemainingTimeMin),
		ETA:               FormatETA(now, s.RemainingTimeMin),
		Progress:          int(s.ProgressPercent),
		Heading:           fmt.Sprintf("%s %.0f°", geo.Compass(s.SmoothedHeading), s.SmoothedHeading),
		Speed:             Placeholder,
		OffRoute:          s.IsOffRoute,
		Traffic:           trafficText[s.Traffic],
		DrivingTime:       FormatDuration(s.DrivingElapsedSeconds / 60),
		BreakWarning:      s.BreakWarning,
		Completed:         s.Completed,
	}

	if s.Instruction != nil {
		v.Instruction = s.Instruction.Text
	}
	if s.NextStop != nil {
		v.NextStop = s.NextStop.Name
	}
	if s.Position != nil && s.Position.SpeedKmh != nil {
		v.Speed = fmt.Sprintf("%.0f km/h", *s.Position.SpeedKmh)
	}
	if v.Traffic == "" {
		v.Traffic = trafficText[nav.TrafficNormal]
	}
	return v
}
