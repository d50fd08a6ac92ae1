package gps

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// calculateChecksum calculates the NMEA checksum for a sentence
func calculateChecksum(sentence string) string {
	var checksum byte
	for i := 1; i < len(sentence); i++ { // Skip the '$' character
		checksum ^= sentence[i]
	}
	return fmt.Sprintf("%02X", checksum)
}

// formatNMEA formats a complete NMEA sentence with checksum
func formatNMEA(sentence string) string {
	return fmt.Sprintf("%s*%s\r\n", sentence, calculateChecksum(sentence))
}

// nmeaCoord converts decimal degrees into the DDMM.MMMM / DDDMM.MMMM field
// and hemisphere letter.
func nmeaCoord(v float64, pos, neg string, degWidth int) string {
	hem := pos
	if v < 0 {
		hem = neg
	}
	deg := int(math.Abs(v))
	mins := (math.Abs(v) - float64(deg)) * 60
	return fmt.Sprintf("%0*d%07.4f,%s", degWidth, deg, mins, hem)
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *v)
}

// EncodeGGA generates a GGA (fix data) sentence.
func EncodeGGA(f Fix) string {
	ts := f.Time.UTC().Format("150405")
	if !f.Valid {
		return formatNMEA(fmt.Sprintf("$GPGGA,%s,,,,,0,00,,,,,,,,,", ts))
	}
	return formatNMEA(fmt.Sprintf("$GPGGA,%s,%s,%s,1,%02d,1.2,%.1f,M,0.0,M,,",
		ts,
		nmeaCoord(f.Latitude, "N", "S", 2),
		nmeaCoord(f.Longitude, "E", "W", 3),
		f.Satellites, f.Altitude))
}

// EncodeRMC generates an RMC (recommended minimum) sentence.
func EncodeRMC(f Fix) string {
	t := f.Time.UTC()
	if !f.Valid {
		return formatNMEA(fmt.Sprintf("$GPRMC,%s,V,,,,,,,%s,,,N", t.Format("150405"), t.Format("020106")))
	}
	return formatNMEA(fmt.Sprintf("$GPRMC,%s,A,%s,%s,%s,%s,%s,,,A",
		t.Format("150405"),
		nmeaCoord(f.Latitude, "N", "S", 2),
		nmeaCoord(f.Longitude, "E", "W", 3),
		optional(f.SpeedKnots), optional(f.Course),
		t.Format("020106")))
}

// EncodeVTG generates a VTG (track made good and ground speed) sentence.
func EncodeVTG(f Fix) string {
	if !f.Valid {
		return formatNMEA("$GPVTG,,,,,,,,,N")
	}
	var kmh *float64
	if f.SpeedKnots != nil {
		v := *f.SpeedKnots * KnotsToKmh
		kmh = &v
	}
	return formatNMEA(fmt.Sprintf("$GPVTG,%s,T,,M,%s,N,%s,K,A",
		optional(f.Course), optional(f.SpeedKnots), optional(kmh)))
}

// EncodeGSV generates GSV (satellites in view) sentences, four satellites
// per sentence.
func EncodeGSV(sats []Satellite) []string {
	total := (len(sats) + 3) / 4
	sentences := make([]string, 0, total)
	for n := 1; n <= total; n++ {
		var b strings.Builder
		fmt.Fprintf(&b, "$GPGSV,%d,%d,%02d", total, n, len(sats))
		for i := (n - 1) * 4; i < n*4; i++ {
			if i < len(sats) {
				s := sats[i]
				fmt.Fprintf(&b, ",%02d,%02d,%03d,%02d", s.ID, s.Elevation, s.Azimuth, s.SNR)
			} else {
				b.WriteString(",,,,")
			}
		}
		sentences = append(sentences, formatNMEA(b.String()))
	}
	return sentences
}

// EncodeZDA generates a ZDA (UTC date and time) sentence.
func EncodeZDA(t time.Time) string {
	t = t.UTC()
	return formatNMEA(fmt.Sprintf("$GPZDA,%s.%02d,%02d,%02d,%04d,00,00",
		t.Format("150405"), t.Nanosecond()/10000000, t.Day(), t.Month(), t.Year()))
}

// Sentence is a checksum-verified NMEA 0183 sentence split into fields.
// Fields[0] is the address, e.g. "GPRMC".
type Sentence struct {
	Talker string
	Type   string
	Fields []string
}

// ParseSentence verifies the framing and checksum of one NMEA line.
func ParseSentence(line string) (Sentence, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 7 || line[0] != '$' {
		return Sentence{}, ErrMalformedSentence
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return Sentence{}, ErrMalformedSentence
	}
	if !strings.EqualFold(calculateChecksum(line[:star]), line[star+1:]) {
		return Sentence{}, ErrInvalidChecksum
	}

	fields := strings.Split(line[1:star], ",")
	addr := fields[0]
	if len(addr) != 5 {
		return Sentence{}, ErrMalformedSentence
	}
	return Sentence{Talker: addr[:2], Type: addr[2:], Fields: fields}, nil
}

// Decoder assembles fixes from a stream of sentences. RMC closes an epoch;
// GGA contributes altitude and satellite count, VTG fills in speed and course
// when the RMC leaves them empty.
type Decoder struct {
	altitude   float64
	satellites int
	vtgSpeed   *float64
	vtgCourse  *float64
}

// Feed decodes one line. ok is true when a fix is complete.
func (d *Decoder) Feed(line string) (fix Fix, ok bool, err error) {
	s, err := ParseSentence(line)
	if err != nil {
		return Fix{}, false, err
	}

	switch s.Type {
	case "RMC":
		fix, err = d.rmc(s.Fields)
		return fix, err == nil, err
	case "GGA":
		return Fix{}, false, d.gga(s.Fields)
	case "VTG":
		return Fix{}, false, d.vtg(s.Fields)
	default:
		return Fix{}, false, ErrUnsupportedSentence
	}
}

func (d *Decoder) rmc(f []string) (Fix, error) {
	if len(f) < 10 {
		return Fix{}, ErrMalformedSentence
	}
	ts, err := parseTime(f[1], f[9])
	if err != nil {
		return Fix{}, err
	}
	if f[2] != "A" {
		return Fix{Time: ts}, nil
	}

	lat, err := parseCoord(f[3], f[4], "N", "S")
	if err != nil {
		return Fix{}, err
	}
	lon, err := parseCoord(f[5], f[6], "E", "W")
	if err != nil {
		return Fix{}, err
	}
	speed, err := parseOptional(f[7])
	if err != nil {
		return Fix{}, err
	}
	course, err := parseOptional(f[8])
	if err != nil {
		return Fix{}, err
	}
	if speed == nil {
		speed = d.vtgSpeed
	}
	if course == nil {
		course = d.vtgCourse
	}

	return Fix{
		Latitude:   lat,
		Longitude:  lon,
		Altitude:   d.altitude,
		SpeedKnots: speed,
		Course:     course,
		Satellites: d.satellites,
		Valid:      true,
		Time:       ts,
	}, nil
}

func (d *Decoder) gga(f []string) error {
	if len(f) < 10 {
		return ErrMalformedSentence
	}
	if f[6] == "" || f[6] == "0" {
		d.satellites = 0
		return nil
	}
	if n, err := strconv.Atoi(f[7]); err == nil {
		d.satellites = n
	}
	if alt, err := strconv.ParseFloat(f[9], 64); err == nil {
		d.altitude = alt
	}
	return nil
}

func (d *Decoder) vtg(f []string) error {
	if len(f) < 8 {
		return ErrMalformedSentence
	}
	course, err := parseOptional(f[1])
	if err != nil {
		return err
	}
	speed, err := parseOptional(f[5])
	if err != nil {
		return err
	}
	if speed == nil {
		kmh, err := parseOptional(f[7])
		if err != nil {
			return err
		}
		if kmh != nil {
			v := *kmh / KnotsToKmh
			speed = &v
		}
	}
	d.vtgSpeed, d.vtgCourse = speed, course
	return nil
}

func parseOptional(field string) (*float64, error) {
	if field == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedSentence, field)
	}
	return &v, nil
}

// parseCoord converts a DDMM.MMMM field and hemisphere letter into decimal
// degrees.
func parseCoord(value, hem, pos, neg string) (float64, error) {
	dot := strings.IndexByte(value, '.')
	if dot < 0 {
		dot = len(value)
	}
	if dot < 3 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedSentence, value)
	}
	deg, err := strconv.Atoi(value[:dot-2])
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedSentence, value)
	}
	mins, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil || mins >= 60 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedSentence, value)
	}

	v := float64(deg) + mins/60
	switch hem {
	case pos:
		return v, nil
	case neg:
		return -v, nil
	default:
		return 0, fmt.Errorf("%w: hemisphere %q", ErrMalformedSentence, hem)
	}
}

// parseTime combines an hhmmss[.ss] and a ddmmyy field into a UTC time.
func parseTime(hms, dmy string) (time.Time, error) {
	if len(hms) < 6 || len(dmy) != 6 {
		return time.Time{}, fmt.Errorf("%w: time %q date %q", ErrMalformedSentence, hms, dmy)
	}
	t, err := time.Parse("150405 020106", hms[:6]+" "+dmy)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedSentence, err)
	}
	if len(hms) > 7 && hms[6] == '.' {
		if frac, err := strconv.ParseFloat("0"+hms[6:], 64); err == nil {
			t = t.Add(time.Duration(frac * float64(time.Second)))
		}
	}
	return t, nil
}
