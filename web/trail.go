package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
	"github.com/Bucknalla/go-truck-nav/internal/store"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrNoTracks  = errors.New("breadcrumbs are not recorded")
	ErrNoTrail   = errors.New("no breadcrumbs in that window")
	ErrBadWindow = errors.New("from and to must be RFC 3339 times with from before to")
)

// Tracks is the breadcrumb store behind the trail endpoints.
// *store.TrackRepository implements it.
type Tracks interface {
	Latest(ctx context.Context, vehicleID string) (*store.Breadcrumb, error)
	PathGeoJSON(ctx context.Context, vehicleID string, start, end time.Time) (*string, error)
}

var _ Tracks = (*store.TrackRepository)(nil)

// SetTracks enables GET /api/trail and GET /api/vehicle for vehicleID.
func (s *Server) SetTracks(t Tracks, vehicleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = t
	s.vehicleID = vehicleID
}

func (s *Server) trackSource() (Tracks, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks, s.vehicleID
}

// trailWindow reads the from and to query parameters. from defaults to the
// start of the session, to to now.
func (s *Server) trailWindow(r *http.Request) (time.Time, time.Time, error) {
	from, to := s.backend.State().StartedAt, time.Now()
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, ErrBadWindow
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, ErrBadWindow
		}
		to = t
	}
	if !from.Before(to) {
		return from, to, ErrBadWindow
	}
	return from, to, nil
}

// handleTrail returns the driven path as a GeoJSON LineString.
func (s *Server) handleTrail(w http.ResponseWriter, r *http.Request) {
	tracks, vehicle := s.trackSource()
	if tracks == nil {
		writeError(w, ErrNoTracks)
		return
	}
	from, to, err := s.trailWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}

	path, err := tracks.PathGeoJSON(r.Context(), vehicle, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	if path == nil {
		writeError(w, ErrNoTrail)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write([]byte(*path))
}

// handleVehicle returns the last recorded position as a GeoJSON point.
func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	tracks, vehicle := s.trackSource()
	if tracks == nil {
		writeError(w, ErrNoTracks)
		return
	}

	b, err := tracks.Latest(r.Context(), vehicle)
	if err != nil {
		writeError(w, err)
		return
	}
	if b == nil {
		writeError(w, ErrNoTrail)
		return
	}

	f := geojson.NewFeature(geo.Coordinate{Lat: b.Latitude, Lon: b.Longitude}.Point())
	f.Properties["vehicle_id"] = b.VehicleID
	f.Properties["session_id"] = b.SessionID
	f.Properties["time"] = b.CreatedAt.UTC().Format(time.RFC3339)
	if b.SpeedKmh != nil {
		f.Properties["speed_kmh"] = *b.SpeedKmh
	}
	if b.Heading != nil {
		f.Properties["heading"] = *b.Heading
	}

	data, err := f.MarshalJSON()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}
