package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/nav"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Traffic decision thresholds in minutes.
const (
	SignificantDelayMinutes = 10.0
	MinTimeSavedMinutes     = 5.0
)

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64          `json:"distance"` // meters
	Duration float64          `json:"duration"` // seconds
	Geometry geojson.Geometry `json:"geometry"`
	Legs     []osrmLeg        `json:"legs"`
}

type osrmLeg struct {
	Steps []osrmStep `json:"steps"`
}

type osrmStep struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Name     string  `json:"name"`
	Maneuver struct {
		Type     string    `json:"type"`
		Modifier string    `json:"modifier"`
		Location orb.Point `json:"location"`
	} `json:"maneuver"`
}

// Client talks to an OSRM compatible routing service.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

var _ nav.Router = (*Client)(nil)

// NewClient creates a routing client
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger used for request diagnostics
func (c *Client) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Route computes a route from origin through all stops in order.
func (c *Client) Route(ctx context.Context, origin geo.Coordinate, stops []nav.Stop) (nav.Route, error) {
	routes, err := c.fetch(ctx, origin, stops, false)
	if err != nil {
		return nav.Route{}, err
	}
	return routes[0], nil
}

// CheckTraffic compares a fresh route from origin against what is left of
// current. The delay is the growth of the remaining duration; an alternative
// is offered only when the delay is significant and it saves enough time.
func (c *Client) CheckTraffic(ctx context.Context, origin geo.Coordinate, stops []nav.Stop, current nav.Route) (nav.TrafficReport, error) {
	routes, err := c.fetch(ctx, origin, stops, true)
	if err != nil {
		return nav.TrafficReport{}, err
	}

	fresh := routes[0]
	expected := current.DurationMin * remainingFraction(current.Polyline, origin)
	report := nav.TrafficReport{
		DelayMinutes:   max(0, fresh.DurationMin-expected),
		NewDurationMin: fresh.DurationMin,
	}
	if report.DelayMinutes <= SignificantDelayMinutes {
		return report, nil
	}

	var best *nav.Route
	for i := range routes[1:] {
		if alt := &routes[i+1]; best == nil || alt.DurationMin < best.DurationMin {
			best = alt
		}
	}
	if best != nil && best.DurationMin < fresh.DurationMin-MinTimeSavedMinutes {
		report.Alternative = best
		report.TimeSavedMinutes = fresh.DurationMin - best.DurationMin
	}

	c.logger.Debug("traffic check",
		slog.Float64("delay_min", report.DelayMinutes),
		slog.Float64("saved_min", report.TimeSavedMinutes),
		slog.Int("candidates", len(routes)))
	return report, nil
}

func (c *Client) fetch(ctx context.Context, origin geo.Coordinate, stops []nav.Stop, alternatives bool) ([]nav.Route, error) {
	if len(stops) == 0 {
		return nil, ErrNoStops
	}

	coords := make([]string, 0, len(stops)+1)
	coords = append(coords, lonLat(origin))
	for _, s := range stops {
		coords = append(coords, lonLat(s.Coordinate))
	}

	query := url.Values{}
	query.Set("overview", "full")
	query.Set("geometries", "geojson")
	query.Set("steps", "true")
	query.Set("alternatives", fmt.Sprint(alternatives))
	endpoint := fmt.Sprintf("%s/route/v1/%s/%s?%s",
		c.config.BaseURL, c.config.Profile, strings.Join(coords, ";"), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create routing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("routing request", slog.String("origin", origin.String()), slog.Int("stops", len(stops)))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing request failed: %w", err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to decode routing response: %w", err)
	}
	if body.Code == "NoRoute" || (body.Code == "Ok" && len(body.Routes) == 0) {
		return nil, ErrNoRoute
	}
	if resp.StatusCode != http.StatusOK || body.Code != "Ok" {
		return nil, fmt.Errorf("%w: %d %s %s", ErrUnexpectedStatus, resp.StatusCode, body.Code, body.Message)
	}

	routes := make([]nav.Route, 0, len(body.Routes))
	for _, r := range body.Routes {
		route, err := c.convert(r)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func (c *Client) convert(r osrmRoute) (nav.Route, error) {
	line, ok := r.Geometry.Geometry().(orb.LineString)
	if !ok || len(line) == 0 {
		return nav.Route{}, fmt.Errorf("%w: route geometry is %q, want LineString", ErrNoRoute, r.Geometry.Type)
	}

	route := nav.Route{
		Polyline:    geo.FromLineString(line),
		DistanceKm:  r.Distance / 1000,
		DurationMin: r.Duration / 60,
	}
	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			m := step.Maneuver
			route.Instructions = append(route.Instructions, nav.Instruction{
				Text:      Instruct(c.config.Language, m.Type, m.Modifier, step.Name),
				Maneuver:  m.Type,
				Modifier:  m.Modifier,
				Road:      step.Name,
				DistanceM: step.Distance,
				DurationS: step.Duration,
				Location:  geo.FromPoint(m.Location),
			})
		}
	}
	return route, nil
}

func lonLat(c geo.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lon, c.Lat)
}

// remainingFraction estimates how much of line is still ahead of pos,
// measured from the nearest vertex.
func remainingFraction(line geo.Polyline, pos geo.Coordinate) float64 {
	total := line.Length()
	if total == 0 {
		return 1
	}

	nearest, best := 0, geo.Distance(pos, line[0])
	for i := 1; i < len(line); i++ {
		if d := geo.Distance(pos, line[i]); d < best {
			nearest, best = i, d
		}
	}
	return line[nearest:].Length() / total
}
