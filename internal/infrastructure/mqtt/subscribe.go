package mqtt

import (
	"fmt"

	"github.com/sochub/soc-hub/internal/topics"
)

// Subscribe registers a handler for messages matching a registry filter.
//
// Filters may include MQTT wildcards:
//   - + (single-level): "server/fan/cmd/+" matches any fan command
//   - # (multi-level): "server/#" matches the whole namespace
//
// The handler is called in a separate goroutine for each received message
// and must not block; hand long work to a queue.
//
// Subscriptions are tracked regardless of connection state: a filter
// subscribed while disconnected is pending and is registered with the
// broker on the next successful connect, and every tracked filter is
// re-registered after each reconnect.
//
// Parameters:
//   - filter: Registry filter to subscribe to
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (s *Session) Subscribe(filter topics.Filter, handler MessageHandler) error {
	// Validate inputs
	if filter.Value == "" {
		return ErrInvalidTopic
	}
	if filter.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	// Track first so the filter survives reconnects
	s.subMu.Lock()
	s.subscriptions[filter.Value] = subscription{
		filter:  filter,
		handler: handler,
	}
	s.subMu.Unlock()

	// Not connected: the subscription stays pending and is registered by
	// handleConnect on the next successful connect
	if !s.IsConnected() {
		return nil
	}

	// Subscribe with wrapped handler (includes panic recovery)
	token := s.client.Subscribe(filter.Value, filter.QoS, s.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Unsubscribe removes a subscription and stops receiving messages for a filter.
//
// After unsubscribing, the handler will no longer be called for new messages
// matching this filter. Any messages in flight may still be delivered.
//
// Parameters:
//   - filter: The registry filter that was subscribed to
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (s *Session) Unsubscribe(filter topics.Filter) error {
	// Validate inputs
	if filter.Value == "" {
		return ErrInvalidTopic
	}

	// Remove from tracking
	s.subMu.Lock()
	delete(s.subscriptions, filter.Value)
	s.subMu.Unlock()

	if !s.IsConnected() {
		return nil
	}

	// Unsubscribe from broker
	token := s.client.Unsubscribe(filter.Value)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: unsubscribe timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: unsubscribe: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
//
// Reported by the hub's STATUS command.
func (s *Session) SubscriptionCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscriptions)
}
