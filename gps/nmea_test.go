package gps

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		name     string
		sentence string
		expected string
	}{
		{
			name:     "Simple GGA sentence",
			sentence: "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,",
			expected: "47",
		},
		{
			name:     "Simple RMC sentence",
			sentence: "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W",
			expected: "6A",
		},
		{
			name:     "Single character after $",
			sentence: "$A",
			expected: "41",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateChecksum(tt.sentence); got != tt.expected {
				t.Errorf("calculateChecksum(%q) = %q, want %q", tt.sentence, got, tt.expected)
			}
		})
	}
}

func TestParseSentence(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		typ     string
		wantErr error
	}{
		{"Valid GGA", "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n", "GGA", nil},
		{"Lowercase checksum", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6a", "RMC", nil},
		{"Bad checksum", "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*48", "", ErrInvalidChecksum},
		{"Missing checksum", "$GPGGA,123519,4807.038,N", "", ErrMalformedSentence},
		{"No dollar", "GPGGA,123519*00", "", ErrMalformedSentence},
		{"Garbage", "\x00\x01", "", ErrMalformedSentence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSentence(tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseSentence error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && (s.Type != tt.typ || s.Talker != "GP") {
				t.Errorf("Unexpected sentence %+v", s)
			}
		})
	}
}

func TestDecoderRMC(t *testing.T) {
	var d Decoder

	// GGA contributes altitude and satellites to the next RMC.
	if _, ok, err := d.Feed("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"); ok || err != nil {
		t.Fatalf("GGA should not complete a fix (ok=%v, err=%v)", ok, err)
	}

	fix, ok, err := d.Feed("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")
	if err != nil || !ok {
		t.Fatalf("Expected fix, got ok=%v err=%v", ok, err)
	}

	if math.Abs(fix.Latitude-48.1173) > 1e-4 || math.Abs(fix.Longitude-11.516667) > 1e-4 {
		t.Errorf("Unexpected position %f,%f", fix.Latitude, fix.Longitude)
	}
	if fix.SpeedKnots == nil || *fix.SpeedKnots != 22.4 {
		t.Errorf("Unexpected speed %v", fix.SpeedKnots)
	}
	if fix.Course == nil || *fix.Course != 84.4 {
		t.Errorf("Unexpected course %v", fix.Course)
	}
	if fix.Altitude != 545.4 || fix.Satellites != 8 {
		t.Errorf("GGA data not merged: alt=%f sats=%d", fix.Altitude, fix.Satellites)
	}
	want := time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC)
	if !fix.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", fix.Time, want)
	}
	if !fix.Valid {
		t.Error("Fix should be valid")
	}
}

func TestDecoderNoFix(t *testing.T) {
	var d Decoder
	line := EncodeRMC(Fix{Time: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)})
	fix, ok, err := d.Feed(line)
	if err != nil || !ok {
		t.Fatalf("Void RMC should still close an epoch: ok=%v err=%v", ok, err)
	}
	if fix.Valid {
		t.Error("Void RMC must not produce a valid fix")
	}
}

func TestDecoderMissingSpeedAndCourse(t *testing.T) {
	var d Decoder
	f := Fix{Latitude: -33.8688, Longitude: 151.2093, Valid: true, Time: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}

	fix, ok, err := d.Feed(EncodeRMC(f))
	if err != nil || !ok {
		t.Fatal(err)
	}
	if fix.SpeedKnots != nil || fix.Course != nil {
		t.Error("Absent speed and course must stay nil")
	}
	if fix.Latitude > 0 || fix.Longitude < 0 {
		t.Errorf("Hemispheres lost: %f,%f", fix.Latitude, fix.Longitude)
	}

	// VTG fills the gaps of the following RMC.
	speed, course := 30.0, 270.0
	if _, _, err := d.Feed(EncodeVTG(Fix{Valid: true, SpeedKnots: &speed, Course: &course})); err != nil {
		t.Fatal(err)
	}
	fix, _, _ = d.Feed(EncodeRMC(f))
	if fix.SpeedKnots == nil || *fix.SpeedKnots != 30 || fix.Course == nil || *fix.Course != 270 {
		t.Errorf("VTG data not merged: %+v", fix)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	speed, course := 43.2, 359.9
	in := Fix{
		Latitude:   37.774929,
		Longitude:  -122.419416,
		Altitude:   45.5,
		SpeedKnots: &speed,
		Course:     &course,
		Satellites: 9,
		Valid:      true,
		Time:       time.Date(2024, 5, 1, 8, 15, 30, 0, time.UTC),
	}

	var d Decoder
	d.Feed(EncodeGGA(in))
	out, ok, err := d.Feed(EncodeRMC(in))
	if err != nil || !ok {
		t.Fatal(err)
	}
	if math.Abs(out.Latitude-in.Latitude) > 1e-5 || math.Abs(out.Longitude-in.Longitude) > 1e-5 {
		t.Errorf("Position drifted: %f,%f", out.Latitude, out.Longitude)
	}
	if *out.SpeedKnots != 43.2 || *out.Course != 359.9 || out.Altitude != 45.5 || out.Satellites != 9 {
		t.Errorf("Unexpected decoded fix %+v", out)
	}
	if !out.Time.Equal(in.Time) {
		t.Errorf("Time = %v, want %v", out.Time, in.Time)
	}
}

func TestEncodeGSV(t *testing.T) {
	sats := make([]Satellite, 6)
	for i := range sats {
		sats[i] = Satellite{ID: i + 1, Elevation: 45, Azimuth: 180, SNR: 40}
	}
	sentences := EncodeGSV(sats)
	if len(sentences) != 2 {
		t.Fatalf("Expected 2 GSV sentences, got %d", len(sentences))
	}
	if !strings.HasPrefix(sentences[1], "$GPGSV,2,2,06,05,45,180,40,06,45,180,40,,,,,,,,") {
		t.Errorf("Unexpected padding: %q", sentences[1])
	}
	for _, s := range sentences {
		if _, err := ParseSentence(s); err != nil {
			t.Errorf("Generated sentence %q does not parse: %v", s, err)
		}
	}
}

func TestParseCoordErrors(t *testing.T) {
	tests := []struct{ value, hem string }{
		{"", "N"},
		{"12", "N"},
		{"4807.038", "X"},
		{"4875.000", "N"},
		{"ab07.038", "N"},
	}
	for _, tt := range tests {
		if _, err := parseCoord(tt.value, tt.hem, "N", "S"); !errors.Is(err, ErrMalformedSentence) {
			t.Errorf("parseCoord(%q, %q) error = %v", tt.value, tt.hem, err)
		}
	}
}
