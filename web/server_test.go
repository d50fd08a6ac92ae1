package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/nav"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type fakeBackend struct {
	mu        sync.Mutex
	state     nav.State
	route     nav.Route
	events    chan nav.Event
	resets    int
	acceptErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		state: nav.State{ProgressPercent: 40, Traffic: nav.TrafficHeavy, RemainingDistanceKm: 12},
		route: nav.Route{
			Polyline:     geo.Polyline{{Lat: 48.1, Lon: 11.5}, {Lat: 48.2, Lon: 11.6}},
			Instructions: []nav.Instruction{{Text: "Depart", Maneuver: "depart", Location: geo.Coordinate{Lat: 48.1, Lon: 11.5}}},
			DurationMin:  20,
		},
		events: make(chan nav.Event, 4),
	}
}

func (b *fakeBackend) State() nav.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *fakeBackend) Route() nav.Route            { return b.route }
func (b *fakeBackend) Subscribe() <-chan nav.Event { return b.events }

func (b *fakeBackend) ResetDrivingTime() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	return nil
}

func (b *fakeBackend) AcceptAlternative() error { return b.acceptErr }

func (b *fakeBackend) resetCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

func newTestServer(t *testing.T, b Backend) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(b, "")
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHandleState(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend())

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var state nav.State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	if state.ProgressPercent != 40 || state.Traffic != nav.TrafficHeavy {
		t.Errorf("Unexpected state %+v", state)
	}
}

func TestHandleView(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend())

	resp, err := http.Get(ts.URL + "/api/view")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var view map[string]any
	json.NewDecoder(resp.Body).Decode(&view)
	if view["remaining_distance"] != "12 km" || view["traffic"] != "Heavy traffic" {
		t.Errorf("Unexpected view %v", view)
	}
	if view["panel"] != "collapsed" {
		t.Errorf("Panel should start collapsed, got %v", view["panel"])
	}
}

func TestHandleRoute(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend())

	resp, err := http.Get(ts.URL + "/api/route")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q", ct)
	}

	data, _ := io.ReadAll(resp.Body)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("Route is not GeoJSON: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("Expected line and one maneuver, got %d features", len(fc.Features))
	}
	line, ok := fc.Features[0].Geometry.(orb.LineString)
	if !ok || len(line) != 2 || line[0] != (orb.Point{11.5, 48.1}) {
		t.Errorf("Unexpected route geometry %v", fc.Features[0].Geometry)
	}
	if fc.Features[1].Properties["text"] != "Depart" {
		t.Errorf("Unexpected maneuver properties %v", fc.Features[1].Properties)
	}
}

func TestHandleCommands(t *testing.T) {
	b := newFakeBackend()
	b.acceptErr = nav.ErrNoAlternative
	_, ts := newTestServer(t, b)

	resp, err := http.Post(ts.URL+"/api/break/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || b.resetCount() != 1 {
		t.Errorf("Reset: status %d, resets %d", resp.StatusCode, b.resetCount())
	}

	resp, err = http.Post(ts.URL+"/api/alternative/accept", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Accept without alternative: status %d, want 409", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/break/reset")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on a POST route: status %d, want 405", resp.StatusCode)
	}
}

func TestHandlePanel(t *testing.T) {
	_, ts := newTestServer(t, newFakeBackend())

	post := func(body string) string {
		t.Helper()
		resp, err := http.Post(ts.URL+"/api/panel", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out map[string]string
		json.NewDecoder(resp.Body).Decode(&out)
		return out["panel"]
	}

	steps := []struct {
		body string
		want string
	}{
		{`{"swipe_dy": -20}`, "collapsed"},
		{`{"swipe_dy": -75}`, "expanded"},
		{`{"tap": true}`, "collapsed"},
		{`{"swipe_dy": 60}`, "hidden"},
		{`{"tap": true}`, "hidden"},
		{`{"show": true}`, "collapsed"},
	}
	for _, s := range steps {
		if got := post(s.body); got != s.want {
			t.Errorf("After %s panel is %q, want %q", s.body, got, s.want)
		}
	}

	resp, err := http.Post(ts.URL+"/api/panel", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Invalid JSON: status %d, want 400", resp.StatusCode)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("Failed to read websocket message: %v", err)
	}
	return m
}

func TestWebSocket(t *testing.T) {
	b := newFakeBackend()
	s, ts := newTestServer(t, b)
	s.StateInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if m := readMessage(t, conn); m["type"] != "state" {
		t.Fatalf("First message should be the state, got %v", m)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Client was not registered")
		}
		time.Sleep(time.Millisecond)
	}

	b.events <- nav.Event{Kind: nav.EventWaypointArrived, WaypointIndex: 1}
	m := readMessage(t, conn)
	if m["type"] != "event" {
		t.Fatalf("Expected event message, got %v", m)
	}
	if data, _ := m["data"].(map[string]any); data["kind"] != string(nav.EventWaypointArrived) {
		t.Errorf("Unexpected event payload %v", m["data"])
	}
	if m := readMessage(t, conn); m["type"] != "state" {
		t.Errorf("Event should be followed by the state, got %v", m)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected a normal close after shutdown, got %v", err)
	}
}

func TestRunSurvivesClosedEvents(t *testing.T) {
	b := newFakeBackend()
	close(b.events)
	s := NewServer(b, "")
	s.StateInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Errorf("Run returned %v", err)
	}
}
