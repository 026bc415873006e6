package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/sochub/soc-hub/internal/infrastructure/config"
	"github.com/sochub/soc-hub/internal/topics"
)

// State is the broker session connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"

	// StateFailed means the broker rejected the configured credentials and
	// the retry policy forbids further attempts.
	StateFailed State = "failed"
)

// Session owns the single MQTT connection to the local broker.
//
// It wraps paho.mqtt.golang with connection state tracking, last-will
// registration on the status topic, subscription restoration on reconnect,
// and a supervised fixed-interval reconnect check driven by the scheduler.
// Exactly one live Session exists per hub process.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - All publishes are serialised through the one underlying connection.
type Session struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	statusTopic topics.Topic

	// state tracks the session lifecycle.
	state   State
	stateMu sync.RWMutex

	// authRejected latches a broker credential rejection so the reconnect
	// loop can honour the configured retry policy.
	authRejected bool

	// subscriptions tracks requested subscriptions. Entries added while
	// disconnected are pending and are registered on the next connect;
	// all entries are re-registered after every reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for diagnostics (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// subscription holds subscription details for registration and restoration.
type subscription struct {
	filter  topics.Filter
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library and must
// not block; long work should be handed off to a queue.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// New creates a disconnected Session for the given broker configuration.
//
// The statusTopic is the registry's last-will topic: the broker publishes a
// retained "offline" payload there if the session dies uncleanly, and the
// session overwrites it with a retained "online" payload after every
// successful connect.
//
// No connection attempt is made; call Connect, or let the scheduler drive
// CheckConnection.
func New(cfg config.MQTTConfig, statusTopic topics.Topic) *Session {
	opts := buildClientOptions(cfg, statusTopic)

	s := &Session{
		cfg:           cfg,
		options:       opts,
		statusTopic:   statusTopic,
		state:         StateDisconnected,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleDisconnect(err)
	})

	s.client = pahomqtt.NewClient(opts)

	return s
}

// Connect performs exactly one connection attempt.
//
// On success the session moves to Connected, registers all tracked filters
// and publishes the retained "online" status. On failure the error is
// classified: a broker credential rejection returns ErrAuthFailed and moves
// the session to Failed (terminal unless auth.retry_on_auth_error is set);
// anything else returns ErrConnectionFailed and leaves the session
// Disconnected for the next check tick.
func (s *Session) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.IsConnected() {
		return nil
	}

	s.setState(StateConnecting)

	token := s.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		if isAuthError(err) {
			s.stateMu.Lock()
			s.state = StateFailed
			s.authRejected = true
			s.stateMu.Unlock()
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// Set connected state immediately after successful connection.
	// The OnConnectHandler callback runs asynchronously and may not have
	// executed yet, so we set it here to ensure IsConnected() returns true.
	// The callback handles subscription registration and status publishing.
	s.stateMu.Lock()
	s.state = StateConnected
	s.authRejected = false
	s.stateMu.Unlock()

	return nil
}

// CheckConnection is the supervised liveness tick.
//
// It is invoked by the scheduler every connection check period. When the
// session is healthy it returns immediately; otherwise it performs at most
// one connect attempt and returns, so other periodic tasks are never
// starved. There is no backoff beyond the fixed check period itself.
//
// When a prior attempt was rejected for bad credentials and the retry
// policy forbids retrying, the tick only reports ErrAuthFailed without
// attempting to connect.
func (s *Session) CheckConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.IsConnected() {
		return nil
	}

	s.stateMu.RLock()
	authRejected := s.authRejected
	s.stateMu.RUnlock()

	if authRejected && !s.cfg.Auth.RetryOnAuthError {
		return ErrAuthFailed
	}

	if logger := s.getLogger(); logger != nil {
		logger.Warn("reconnecting to MQTT broker",
			"broker", fmt.Sprintf("%s:%d", s.cfg.Broker.Host, s.cfg.Broker.Port),
		)
	}

	return s.Connect(ctx)
}

// isAuthError reports whether a paho connect error is a credential
// rejection rather than a transport failure.
func isAuthError(err error) bool {
	return errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised)
}

// handleConnect is called when the connection is established.
func (s *Session) handleConnect() {
	s.stateMu.Lock()
	s.state = StateConnected
	s.authRejected = false
	s.stateMu.Unlock()

	// Register tracked filters (pending and restored alike)
	s.restoreSubscriptions()

	// Overwrite the last-will payload with the retained online status
	s.publishStatus(StatusOnline)

	// Notify callback if set
	s.callbackMu.RLock()
	callback := s.onConnect
	s.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (s *Session) handleDisconnect(err error) {
	s.setState(StateDisconnected)

	// Notify callback if set
	s.callbackMu.RLock()
	callback := s.onDisconnect
	s.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions registers all tracked filters with the broker.
func (s *Session) restoreSubscriptions() {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, sub := range s.subscriptions {
		// Errors during restoration are logged, not surfaced; the next
		// reconnect retries the full set.
		token := s.client.Subscribe(sub.filter.Value, sub.filter.QoS, s.wrapHandler(sub.handler))
		if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
			if logger := s.getLogger(); logger != nil {
				logger.Error("subscription restore failed",
					"filter", sub.filter.Value,
					"error", token.Error(),
				)
			}
		}
	}
}

// publishStatus publishes a retained status payload to the last-will topic.
func (s *Session) publishStatus(status string) {
	payload := buildStatusPayload(status, s.cfg.Broker.ClientID)
	token := s.client.Publish(s.statusTopic.Value, s.statusTopic.QoS, true, payload)
	if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
		if logger := s.getLogger(); logger != nil {
			logger.Warn("status publish failed",
				"topic", s.statusTopic.Value,
				"status", status,
				"error", token.Error(),
			)
		}
	}
}

// PublishOnline republishes the retained online status on the last-will
// topic. Used by the hub's STATUS command; a no-op while disconnected.
func (s *Session) PublishOnline() {
	if !s.IsConnected() {
		return
	}
	s.publishStatus(StatusOnline)
}

// Close gracefully shuts the session down.
//
// It performs a best-effort publish of the retained "offline" status, then
// disconnects with a short quiesce for pending operations. Errors during
// shutdown are logged, never returned.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}

	if s.IsConnected() {
		s.publishStatus(StatusOffline)
	}

	s.client.Disconnect(defaultDisconnectQuiesce)

	s.setState(StateDisconnected)

	return nil
}

// HealthCheck verifies the session is connected.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !s.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// IsConnected returns whether the session is currently connected.
func (s *Session) IsConnected() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state == StateConnected && s.client.IsConnected()
}

func (s *Session) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (s *Session) SetOnConnect(callback func()) {
	s.callbackMu.Lock()
	s.onConnect = callback
	s.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (s *Session) SetOnDisconnect(callback func(err error)) {
	s.callbackMu.Lock()
	s.onDisconnect = callback
	s.callbackMu.Unlock()
}

// SetLogger sets a logger for diagnostics.
// If not set, dropped publishes and handler errors are silently ignored.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (s *Session) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := s.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := s.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
