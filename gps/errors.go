package gps

import "errors"

// Common errors returned by the gps package
var (
	ErrInvalidSatelliteCount   = errors.New("number of satellites must be between 4 and 12")
	ErrInvalidBaudRate         = errors.New("baud rate must be positive")
	ErrInvalidSpeed            = errors.New("speed must be non-negative")
	ErrInvalidJitter           = errors.New("jitter must be non-negative")
	ErrInvalidReplaySpeed      = errors.New("replay speed must be positive")
	ErrInvalidOutputRate       = errors.New("output rate must be positive")
	ErrUnknownSource           = errors.New("unknown position source")
	ErrEmptyRoute              = errors.New("simulator route has no points")
	ErrEmptyTrack              = errors.New("no track points or route points found")
	ErrMalformedSentence       = errors.New("malformed NMEA sentence")
	ErrInvalidChecksum         = errors.New("NMEA checksum mismatch")
	ErrUnsupportedSentence     = errors.New("unsupported NMEA sentence")
	ErrSimulatorNotRunning     = errors.New("simulator is not running")
	ErrSimulatorAlreadyRunning = errors.New("simulator is already running")
)
