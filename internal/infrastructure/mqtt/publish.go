package mqtt

import (
	"fmt"

	"github.com/sochub/soc-hub/internal/topics"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to a registry topic, using its QoS and retain flag.
//
// Publishing is best-effort by contract: while the session is not connected
// the message is dropped with a debug log and Publish returns nil without
// blocking. Transport-level failures after a successful local enqueue are
// likewise logged rather than surfaced; callers only receive errors for
// invalid input (empty topic, bad QoS, oversized payload).
//
// Each call enqueues locally at most once; broker-side delivery follows the
// topic's QoS contract.
//
// Parameters:
//   - topic: Registry topic to publish to
//   - payload: The message payload (max 1MB)
//
// Returns:
//   - error: nil unless the input itself is invalid
func (s *Session) Publish(topic topics.Topic, payload []byte) error {
	// Validate inputs
	if topic.Value == "" {
		return ErrInvalidTopic
	}
	if topic.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("payload size %d exceeds maximum %d bytes", len(payload), maxPayloadSize)
	}

	// Drop when not connected - telemetry and status publishes are
	// best-effort and must never block a tick
	if !s.IsConnected() {
		if logger := s.getLogger(); logger != nil {
			logger.Debug("publish dropped, session not connected",
				"topic", topic.Value,
				"state", string(s.State()),
			)
		}
		return nil
	}

	token := s.client.Publish(topic.Value, topic.QoS, topic.Retain, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		if logger := s.getLogger(); logger != nil {
			logger.Warn("publish timed out",
				"topic", topic.Value,
				"timeout", defaultPublishTimeout,
			)
		}
		return nil
	}
	if err := token.Error(); err != nil {
		if logger := s.getLogger(); logger != nil {
			logger.Warn("publish failed",
				"topic", topic.Value,
				"error", err,
			)
		}
	}

	return nil
}

// PublishString is a convenience method that publishes a string payload.
//
// This is equivalent to calling Publish with []byte(payload).
func (s *Session) PublishString(topic topics.Topic, payload string) error {
	return s.Publish(topic, []byte(payload))
}
