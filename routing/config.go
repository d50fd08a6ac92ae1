package routing

import (
	"errors"
	"time"
)

var (
	ErrMissingBaseURL    = errors.New("routing base URL must be set")
	ErrInvalidTimeout    = errors.New("routing timeout must be positive")
	ErrUnsupportedLocale = errors.New("unsupported instruction language")
	ErrNoStops           = errors.New("at least one stop is required")
	ErrNoRoute           = errors.New("no route found")
	ErrUnexpectedStatus  = errors.New("unexpected routing service status")
)

// Config holds the routing backend settings
type Config struct {
	BaseURL  string        `mapstructure:"base_url"`
	Profile  string        `mapstructure:"profile"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Language string        `mapstructure:"language"` // instruction wording: en, de
}

// DefaultConfig returns the public OSRM demo server settings
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://router.project-osrm.org",
		Profile:  "driving",
		Timeout:  15 * time.Second,
		Language: "en",
	}
}

// Validate checks if the configuration is valid and returns an error if not
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if _, ok := phrasebooks[c.Language]; !ok {
		return ErrUnsupportedLocale
	}
	if c.Profile == "" {
		c.Profile = "driving"
	}
	return nil
}
