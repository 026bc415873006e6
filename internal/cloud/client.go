package cloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/sochub/soc-hub/internal/infrastructure/config"
	"github.com/sochub/soc-hub/internal/telemetry"
)

// Connection constants.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// disconnectQuiesce is the time to wait for pending operations on close.
	disconnectQuiesce = 250 // milliseconds
)

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client relays telemetry samples to a ThingSpeak-compatible cloud service
// over its MQTT endpoint.
//
// One numeric field, identified by the configured field index (1-8), is
// written per relay to channels/<channel>/publish/fields/field<N>,
// authenticated by the write API key. The connection is lazy: it is only
// established on the first relay and re-established as needed; a failed
// relay waits for the next cloud tick rather than retrying inline.
//
// Thread Safety:
//   - Relay and Close are safe for concurrent use.
type Client struct {
	cfg    config.CloudConfig
	client pahomqtt.Client
	topic  string

	mu sync.Mutex

	// authRejected latches a credential rejection. Unless the configured
	// retry policy allows redialling, relay ticks then fail fast with
	// ErrAuthFailed instead of hammering the endpoint.
	authRejected bool

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a disconnected cloud relay client.
func New(cfg config.CloudConfig) *Client {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "soc-hub-cloud"
	}
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.WriteAPIKey)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)

	return &Client{
		cfg:    cfg,
		client: pahomqtt.NewClient(opts),
		topic:  fmt.Sprintf("channels/%s/publish/fields/field%d", cfg.ChannelID, cfg.Field),
	}
}

// Relay publishes one Sample's temperature reading to the configured
// channel field.
//
// Implements telemetry.Relay. Failures are returned for the caller to log;
// nothing is retried until the next cloud tick.
func (c *Client) Relay(ctx context.Context, sample telemetry.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authRejected && !c.cfg.RetryOnAuthError {
		return ErrAuthFailed
	}

	if err := c.ensureConnected(); err != nil {
		return err
	}

	payload := strconv.FormatFloat(sample.RawTemperature, 'f', -1, 64)
	token := c.client.Publish(c.topic, 0, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrRelayFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrRelayFailed, err)
	}

	if logger := c.getLogger(); logger != nil {
		logger.Debug("sample relayed to cloud",
			"topic", c.topic,
			"value", payload,
		)
	}

	return nil
}

// ensureConnected performs at most one connect attempt. Caller must hold c.mu.
func (c *Client) ensureConnected() error {
	if c.client.IsConnected() {
		return nil
	}

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		if errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
			errors.Is(err, packets.ErrorRefusedNotAuthorised) {
			c.authRejected = true
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.authRejected = false

	return nil
}

// Close disconnects from the cloud endpoint.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client.IsConnected() {
		c.client.Disconnect(disconnectQuiesce)
	}
	return nil
}

// SetLogger sets a logger for diagnostics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
