package gps

import (
	"encoding/xml"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
)

// GPX represents the root GPX document structure
type GPX struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Xmlns   string   `xml:"xmlns,attr"`
	Track   Track    `xml:"trk"`
	Routes  []Route  `xml:"rte"`
}

// Track represents a GPX track
type Track struct {
	Name         string       `xml:"name"`
	TrackSegment TrackSegment `xml:"trkseg"`
}

// TrackSegment represents a segment of a GPX track
type TrackSegment struct {
	TrackPoints []TrackPoint `xml:"trkpt"`
}

// Route represents a GPX route
type Route struct {
	Name        string       `xml:"name"`
	RoutePoints []TrackPoint `xml:"rtept"`
}

// GPXWriter records the driven trail to a GPX file. It is safe for
// concurrent use.
type GPXWriter struct {
	mu   sync.Mutex
	gpx  *GPX
	file *os.File
}

// NewGPXWriter creates a new GPX writer
func NewGPXWriter(filename, trackName string) (*GPXWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create GPX file %s: %w", filename, err)
	}

	return &GPXWriter{
		file: file,
		gpx: &GPX{
			Version: "1.1",
			Creator: "go-truck-nav",
			Xmlns:   "http://www.topografix.com/GPX/1/1",
			Track:   Track{Name: trackName},
		},
	}, nil
}

// AddFix appends a valid fix to the track
func (w *GPXWriter) AddFix(f Fix) {
	if !f.Valid {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gpx.Track.TrackSegment.TrackPoints = append(w.gpx.Track.TrackSegment.TrackPoints, TrackPoint{
		Lat:       f.Latitude,
		Lon:       f.Longitude,
		Elevation: f.Altitude,
		Time:      f.Time.UTC(),
	})
}

// Count returns the number of track points currently stored
func (w *GPXWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.gpx.Track.TrackSegment.TrackPoints)
}

// Flush rewrites the whole document to the file
func (w *GPXWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

func (w *GPXWriter) flush() error {
	if _, err := w.file.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to seek to beginning of file: %w", err)
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate file: %w", err)
	}
	if _, err := w.file.WriteString(xml.Header); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w.file)
	encoder.Indent("", "  ")
	if err := encoder.Encode(w.gpx); err != nil {
		return fmt.Errorf("failed to encode GPX data: %w", err)
	}
	return w.file.Sync()
}

// Close writes the final document and closes the file
func (w *GPXWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	return err
}

// ReadGPXFile reads and parses a GPX file, returning the track points. Route
// points are used when the file has no track.
func ReadGPXFile(filename string) ([]TrackPoint, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPX file %s: %w", filename, err)
	}
	defer file.Close()

	var gpx GPX
	if err := xml.NewDecoder(file).Decode(&gpx); err != nil {
		return nil, fmt.Errorf("failed to parse GPX file %s: %w", filename, err)
	}

	points := gpx.Track.TrackSegment.TrackPoints
	if len(points) == 0 && len(gpx.Routes) > 0 {
		points = gpx.Routes[0].RoutePoints
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w in GPX file %s", ErrEmptyTrack, filename)
	}
	return points, nil
}

// ReadPolyline loads a GPX file as a route polyline.
func ReadPolyline(filename string) (geo.Polyline, error) {
	points, err := ReadGPXFile(filename)
	if err != nil {
		return nil, err
	}
	return Polyline(points), nil
}

// Polyline converts track points into a polyline.
func Polyline(points []TrackPoint) geo.Polyline {
	line := make(geo.Polyline, len(points))
	for i, p := range points {
		line[i] = geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}
	return line
}

// TrackPoints converts a polyline into evenly spaced timestamped points,
// e.g. to export a planned route for replay.
func TrackPoints(line geo.Polyline, start time.Time, step time.Duration) []TrackPoint {
	points := make([]TrackPoint, len(line))
	for i, c := range line {
		points[i] = TrackPoint{Lat: c.Lat, Lon: c.Lon, Time: start.Add(time.Duration(i) * step).UTC()}
	}
	return points
}
