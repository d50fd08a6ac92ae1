package gps

import "time"

// KnotsToKmh converts speed over ground from knots to km/h.
const KnotsToKmh = 1.852

// Satellite represents a GPS satellite
type Satellite struct {
	ID        int
	Elevation int // degrees above horizon
	Azimuth   int // degrees from north
	SNR       int // signal-to-noise ratio
}

// TrackPoint represents a point in a GPS track
type TrackPoint struct {
	Lat       float64   `xml:"lat,attr"`
	Lon       float64   `xml:"lon,attr"`
	Elevation float64   `xml:"ele"`
	Time      time.Time `xml:"time"`
}

// Fix is one receiver epoch. Speed and course are nil when the receiver did
// not report them.
type Fix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   float64   `json:"altitude"`
	SpeedKnots *float64  `json:"speed_knots,omitempty"`
	Course     *float64  `json:"course,omitempty"` // degrees true
	Satellites int       `json:"satellites"`
	Valid      bool      `json:"valid"`
	Time       time.Time `json:"time"`
}

// Status represents the current simulator status
type Status struct {
	Running     bool          `json:"running"`
	StartTime   time.Time     `json:"start_time,omitempty"`
	ElapsedTime time.Duration `json:"elapsed_time"`
	Fix         Fix           `json:"fix"`
	Segment     int           `json:"segment"`
	Segments    int           `json:"segments"`
	Finished    bool          `json:"finished"`
}

// NMEAData contains NMEA sentence data
type NMEAData struct {
	Sentences []string  `json:"sentences"`
	Fix       Fix       `json:"fix"`
	Timestamp time.Time `json:"timestamp"`
}
