package nav

import "errors"

// Common errors returned by the navigation engine
var (
	ErrNoDestinations          = errors.New("destination list must not be empty")
	ErrInvalidThreshold        = errors.New("distance thresholds must be positive")
	ErrInvalidCooldown         = errors.New("recalculation cooldown must be positive")
	ErrInvalidDeadband         = errors.New("heading deadband must be between 0 and 180 degrees")
	ErrInvalidSmoothing        = errors.New("heading smoothing factor must be in (0, 1]")
	ErrInvalidFallbackSpeed    = errors.New("fallback speed must be positive")
	ErrInvalidInterval         = errors.New("tick and poll intervals must be positive")
	ErrNoAlternative           = errors.New("no alternative route is pending")
	ErrNavigatorNotRunning     = errors.New("navigator is not running")
	ErrNavigatorAlreadyRunning = errors.New("navigator is already running")
)
