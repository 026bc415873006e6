package mqtt

import "errors"

// Domain-specific errors for broker session operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations that require a
	// live connection.
	ErrNotConnected = errors.New("mqtt: session not connected")

	// ErrConnectionFailed is returned for transient transport failures
	// (socket, TLS, broker unreachable). The reconnect loop absorbs these.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrAuthFailed is returned when the broker rejects the configured
	// credentials. Unlike ErrConnectionFailed it is not retried unless the
	// auth retry policy allows it.
	ErrAuthFailed = errors.New("mqtt: broker rejected credentials")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic or filter is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
