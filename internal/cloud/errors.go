package cloud

import "errors"

// Domain-specific errors for the cloud relay.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned for transient failures reaching the
	// cloud endpoint. The next relay tick retries.
	ErrConnectionFailed = errors.New("cloud: connection failed")

	// ErrAuthFailed is returned when the cloud endpoint rejects the write
	// API key. It is latched: further relay ticks return it without
	// attempting to reconnect.
	ErrAuthFailed = errors.New("cloud: endpoint rejected credentials")

	// ErrRelayFailed is returned when a relay publish fails after a
	// successful connection.
	ErrRelayFailed = errors.New("cloud: relay publish failed")
)
