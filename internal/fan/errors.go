package fan

import "errors"

// Domain-specific errors for fan control.
var (
	// ErrInvalidThreshold is returned when a threshold configuration or
	// override would invert the hysteresis band.
	ErrInvalidThreshold = errors.New("fan: off threshold must not exceed on threshold")

	// ErrUnknownCommand is returned for an unrecognised command payload.
	ErrUnknownCommand = errors.New("fan: unknown command")
)
