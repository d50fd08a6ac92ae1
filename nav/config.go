package nav

import "time"

// Config holds the thresholds and timings of a navigation session
type Config struct {
	OffRouteThresholdM    float64       `mapstructure:"off_route_threshold_m"`  // departure distance from the route
	ArrivalRadiusM        float64       `mapstructure:"arrival_radius_m"`       // waypoint/destination reached
	StepAdvanceRadiusM    float64       `mapstructure:"step_advance_radius_m"`  // maneuver passed
	RecalculationCooldown time.Duration `mapstructure:"recalculation_cooldown"` // min time between reroutes
	HeadingDeadband       float64       `mapstructure:"heading_deadband"`       // degrees
	HeadingSmoothing      float64       `mapstructure:"heading_smoothing"`      // exponential factor
	MinReliableSpeedKmh   float64       `mapstructure:"min_reliable_speed_kmh"` // below this, measured speed is ignored
	FallbackSpeedKmh      float64       `mapstructure:"fallback_speed_kmh"`     // used for ETAs when speed is unreliable
	BreakTick             time.Duration `mapstructure:"break_tick"`             // driving-time counter resolution
	BreakThreshold        time.Duration `mapstructure:"break_threshold"`        // driving time before a break warning
	TrafficPollInterval   time.Duration `mapstructure:"traffic_poll_interval"`  // 0 disables traffic checks
	EventBuffer           int           `mapstructure:"event_buffer"`           // per-listener queue length
}

// DefaultConfig returns a configuration with the standard engine constants
func DefaultConfig() Config {
	return Config{
		OffRouteThresholdM:    50,
		ArrivalRadiusM:        200,
		StepAdvanceRadiusM:    30,
		RecalculationCooldown: 30 * time.Second,
		HeadingDeadband:       3,
		HeadingSmoothing:      0.15,
		MinReliableSpeedKmh:   10,
		FallbackSpeedKmh:      70,
		BreakTick:             60 * time.Second,
		BreakThreshold:        240 * time.Minute,
		TrafficPollInterval:   60 * time.Second,
		EventBuffer:           32,
	}
}

// Validate checks if the configuration is valid and returns an error if not
func (c *Config) Validate() error {
	if c.OffRouteThresholdM <= 0 || c.ArrivalRadiusM <= 0 || c.StepAdvanceRadiusM <= 0 {
		return ErrInvalidThreshold
	}
	if c.RecalculationCooldown <= 0 {
		return ErrInvalidCooldown
	}
	if c.HeadingDeadband < 0 || c.HeadingDeadband > 180 {
		return ErrInvalidDeadband
	}
	if c.HeadingSmoothing <= 0 || c.HeadingSmoothing > 1 {
		return ErrInvalidSmoothing
	}
	if c.FallbackSpeedKmh <= 0 || c.MinReliableSpeedKmh < 0 {
		return ErrInvalidFallbackSpeed
	}
	if c.BreakTick <= 0 || c.BreakThreshold <= 0 || c.TrafficPollInterval < 0 {
		return ErrInvalidInterval
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 1
	}
	return nil
}

// EffectiveSpeedKmh picks the speed used for ETA math: the measured speed
// when it is present and above the reliability floor, the fallback
// otherwise.
func (c *Config) EffectiveSpeedKmh(measured *float64) float64 {
	if measured != nil && *measured > c.MinReliableSpeedKmh {
		return *measured
	}
	return c.FallbackSpeedKmh
}
