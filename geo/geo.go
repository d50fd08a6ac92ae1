package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean Earth radius used by all distance math.
const EarthRadiusKm = 6371.0

// NearEnoughKm is the vertex distance at which MinDistanceToPolyline stops
// scanning: anything this close is as good as on the line.
const NearEnoughKm = 0.050

// Coordinate is a WGS-84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" msgpack:"lon"`
}

// String returns the coordinate as "lat,lon" with six decimals.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Point converts the coordinate to an orb point (lon, lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// FromPoint converts an orb point to a Coordinate.
func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// Polyline is an ordered list of coordinates.
type Polyline []Coordinate

// LineString converts the polyline to an orb line string.
func (p Polyline) LineString() orb.LineString {
	ls := make(orb.LineString, len(p))
	for i, c := range p {
		ls[i] = c.Point()
	}
	return ls
}

// FromLineString converts an orb line string to a Polyline.
func FromLineString(ls orb.LineString) Polyline {
	p := make(Polyline, len(ls))
	for i, pt := range ls {
		p[i] = FromPoint(pt)
	}
	return p
}

// Length returns the summed great-circle length of the polyline in km.
func (p Polyline) Length() float64 {
	var total float64
	for i := 1; i < len(p); i++ {
		total += Distance(p[i-1], p[i])
	}
	return total
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance between a and b in km using the
// haversine formula.
func Distance(a, b Coordinate) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// MinDistanceToPolyline returns the smallest distance in km from point to any
// vertex of line. Segments are not projected onto; vertex sampling is
// accurate enough for densely sampled road geometry. The scan stops at the
// first vertex within NearEnoughKm. An empty line yields +Inf.
func MinDistanceToPolyline(point Coordinate, line Polyline) float64 {
	best := math.Inf(1)
	for _, v := range line {
		d := Distance(point, v)
		if d < best {
			best = d
		}
		if best <= NearEnoughKm {
			return best
		}
	}
	return best
}

// RemainingAlong returns the distance in km still to travel along line from
// point's projection onto its nearest segment to the last vertex. The
// projection uses a local flat-earth approximation, which is accurate at
// road-segment scale. A line with fewer than two vertices yields the
// distance to its only vertex, or +Inf when empty.
func RemainingAlong(point Coordinate, line Polyline) float64 {
	switch len(line) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(point, line[0])
	}

	best, seg, frac := math.Inf(1), 0, 0.0
	for i := 0; i < len(line)-1; i++ {
		t := project(point, line[i], line[i+1])
		on := Coordinate{
			Lat: line[i].Lat + t*(line[i+1].Lat-line[i].Lat),
			Lon: line[i].Lon + t*(line[i+1].Lon-line[i].Lon),
		}
		if d := Distance(point, on); d < best {
			best, seg, frac = d, i, t
		}
	}

	remaining := (1 - frac) * Distance(line[seg], line[seg+1])
	return remaining + line[seg+1:].Length()
}

// project returns where p falls along segment a-b as a fraction in [0,1].
func project(p, a, b Coordinate) float64 {
	k := math.Cos(radians((a.Lat + b.Lat) / 2))
	dx, dy := (b.Lon-a.Lon)*k, b.Lat-a.Lat
	px, py := (p.Lon-a.Lon)*k, p.Lat-a.Lat
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, (px*dx+py*dy)/l2))
}

// Bearing returns the initial great-circle bearing from a to b in degrees
// [0,360).
func Bearing(a, b Coordinate) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLon := radians(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return NormalizeHeading(degrees(math.Atan2(y, x)))
}

// Destination returns the point reached by travelling distKm from start
// along the given bearing on a spherical Earth.
func Destination(start Coordinate, distKm, bearing float64) Coordinate {
	lat := radians(start.Lat)
	lon := radians(start.Lon)
	brg := radians(bearing)
	ang := distKm / EarthRadiusKm

	newLat := math.Asin(math.Sin(lat)*math.Cos(ang) + math.Cos(lat)*math.Sin(ang)*math.Cos(brg))
	newLon := lon + math.Atan2(
		math.Sin(brg)*math.Sin(ang)*math.Cos(lat),
		math.Cos(ang)-math.Sin(lat)*math.Sin(newLat))

	out := Coordinate{Lat: degrees(newLat), Lon: degrees(newLon)}
	for out.Lon > 180 {
		out.Lon -= 360
	}
	for out.Lon < -180 {
		out.Lon += 360
	}
	return out
}
