package gps

import "time"

// Position source kinds
const (
	SourceSerial   = "serial"   // live receiver on a serial port
	SourceStdin    = "stdin"    // NMEA piped on standard input
	SourceReplay   = "replay"   // GPX track replay
	SourceSimulate = "simulate" // drive along the planned route
)

// Config holds all configuration options for position acquisition
type Config struct {
	Source      string        `mapstructure:"source"`
	SerialPort  string        `mapstructure:"serial_port"`  // e.g. /dev/ttyUSB0, COM1
	BaudRate    int           `mapstructure:"baud_rate"`    // serial baud rate
	ReplayFile  string        `mapstructure:"replay_file"`  // GPX file to replay
	ReplaySpeed float64       `mapstructure:"replay_speed"` // 1.0 = real-time, 2.0 = 2x speed
	ReplayLoop  bool          `mapstructure:"replay_loop"`  // loop the replay instead of stopping
	SpeedKmh    float64       `mapstructure:"speed_kmh"`    // simulated cruising speed
	Jitter      float64       `mapstructure:"jitter_m"`     // simulated position noise in meters
	Satellites  int           `mapstructure:"satellites"`
	TimeToLock  time.Duration `mapstructure:"time_to_lock"`
	OutputRate  time.Duration `mapstructure:"output_rate"`
	TrailFile   string        `mapstructure:"trail_file"` // GPX file recording the driven trail
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Source:      SourceSimulate,
		BaudRate:    9600,
		ReplaySpeed: 1.0,
		SpeedKmh:    80,
		Satellites:  8,
		TimeToLock:  2 * time.Second,
		OutputRate:  1 * time.Second,
	}
}

// Validate checks if the configuration is valid and returns an error if not
func (c *Config) Validate() error {
	switch c.Source {
	case SourceSerial, SourceStdin, SourceReplay, SourceSimulate:
	default:
		return ErrUnknownSource
	}
	if c.Satellites < 4 || c.Satellites > 12 {
		return ErrInvalidSatelliteCount
	}
	if c.BaudRate <= 0 {
		return ErrInvalidBaudRate
	}
	if c.SpeedKmh < 0 {
		return ErrInvalidSpeed
	}
	if c.Jitter < 0 {
		return ErrInvalidJitter
	}
	if c.ReplaySpeed <= 0 {
		return ErrInvalidReplaySpeed
	}
	if c.OutputRate <= 0 {
		return ErrInvalidOutputRate
	}
	return nil
}
