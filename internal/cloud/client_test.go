package cloud

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/sochub/soc-hub/internal/infrastructure/config"
	"github.com/sochub/soc-hub/internal/telemetry"
)

func testCloudConfig() config.CloudConfig {
	return config.CloudConfig{
		Enabled:     true,
		Host:        "mqtt3.thingspeak.com",
		Port:        1883,
		Username:    "channel-user",
		WriteAPIKey: "write-key",
		ChannelID:   "123456",
		Field:       2,
	}
}

// fakeToken satisfies pahomqtt.Token with an immediate result.
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakePublish struct {
	topic   string
	qos     byte
	payload string
}

// fakeClient satisfies pahomqtt.Client, standing in for the cloud endpoint.
type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	connectCalls int
	publishErr   error
	publishes    []fakePublish
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	if c.connectErr != nil {
		return &fakeToken{err: c.connectErr}
	}
	c.connected = true
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return &fakeToken{err: c.publishErr}
	}
	body, _ := payload.(string)
	c.publishes = append(c.publishes, fakePublish{topic, qos, body})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(string, byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(...string) pahomqtt.Token { return &fakeToken{} }

func (c *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func newTestClient(cfg config.CloudConfig) (*Client, *fakeClient) {
	c := New(cfg)
	fc := &fakeClient{}
	c.client = fc
	return c, fc
}

func testSample(raw float64) telemetry.Sample {
	return telemetry.Sample{
		RawTemperature:     raw,
		TemperaturePercent: raw / 85.0 * 100,
		Timestamp:          time.Now(),
	}
}

func TestNew_TopicConstruction(t *testing.T) {
	c := New(testCloudConfig())

	want := "channels/123456/publish/fields/field2"
	if c.topic != want {
		t.Errorf("topic = %q, want %q", c.topic, want)
	}
}

func TestRelay_PublishesReading(t *testing.T) {
	c, fc := newTestClient(testCloudConfig())

	if err := c.Relay(context.Background(), testSample(43.3)); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.publishes) != 1 {
		t.Fatalf("published %d messages, want 1", len(fc.publishes))
	}
	got := fc.publishes[0]
	if got.topic != "channels/123456/publish/fields/field2" {
		t.Errorf("published to %q, want the channel field topic", got.topic)
	}
	if got.payload != "43.3" {
		t.Errorf("payload = %q, want %q", got.payload, "43.3")
	}
	if got.qos != 0 {
		t.Errorf("qos = %d, want 0", got.qos)
	}
}

// TestRelay_LazyConnection verifies the connection is only dialled on the
// first relay and reused afterwards.
func TestRelay_LazyConnection(t *testing.T) {
	c, fc := newTestClient(testCloudConfig())

	fc.mu.Lock()
	calls := fc.connectCalls
	fc.mu.Unlock()
	if calls != 0 {
		t.Fatal("New() must not dial the cloud endpoint")
	}

	c.Relay(context.Background(), testSample(40))
	c.Relay(context.Background(), testSample(41))

	fc.mu.Lock()
	calls = fc.connectCalls
	fc.mu.Unlock()
	if calls != 1 {
		t.Errorf("connect calls = %d, want 1 (reuse the live connection)", calls)
	}
}

func TestRelay_TransportFailure(t *testing.T) {
	c, fc := newTestClient(testCloudConfig())
	fc.connectErr = errors.New("dial tcp: i/o timeout")

	err := c.Relay(context.Background(), testSample(40))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Relay() error = %v, want ErrConnectionFailed", err)
	}

	// The next tick dials again
	fc.mu.Lock()
	fc.connectErr = nil
	fc.mu.Unlock()
	if err := c.Relay(context.Background(), testSample(40)); err != nil {
		t.Errorf("Relay() error = %v after endpoint returned", err)
	}
}

// TestRelay_AuthLatch verifies a credential rejection stops further
// connection attempts.
func TestRelay_AuthLatch(t *testing.T) {
	c, fc := newTestClient(testCloudConfig())
	fc.connectErr = packets.ErrorRefusedNotAuthorised

	if err := c.Relay(context.Background(), testSample(40)); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Relay() error = %v, want ErrAuthFailed", err)
	}

	for i := 0; i < 3; i++ {
		if err := c.Relay(context.Background(), testSample(40)); !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("latched Relay() error = %v, want ErrAuthFailed", err)
		}
	}

	fc.mu.Lock()
	calls := fc.connectCalls
	fc.mu.Unlock()
	if calls != 1 {
		t.Errorf("connect calls = %d, want 1 (latched rejection must not redial)", calls)
	}
}

// TestRelay_AuthRetryPolicy verifies cloud.retry_on_auth_error keeps the
// relay dialling after a credential rejection.
func TestRelay_AuthRetryPolicy(t *testing.T) {
	cfg := testCloudConfig()
	cfg.RetryOnAuthError = true
	c, fc := newTestClient(cfg)
	fc.connectErr = packets.ErrorRefusedNotAuthorised

	for i := 0; i < 3; i++ {
		if err := c.Relay(context.Background(), testSample(40)); !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("Relay() error = %v, want ErrAuthFailed", err)
		}
	}

	fc.mu.Lock()
	calls := fc.connectCalls
	fc.mu.Unlock()
	if calls != 3 {
		t.Errorf("connect calls = %d, want 3 (policy allows redialling)", calls)
	}

	// Credentials fixed at the endpoint: the next tick recovers
	fc.mu.Lock()
	fc.connectErr = nil
	fc.mu.Unlock()
	if err := c.Relay(context.Background(), testSample(40)); err != nil {
		t.Errorf("Relay() error = %v after endpoint accepted credentials", err)
	}
}

func TestRelay_PublishFailure(t *testing.T) {
	c, fc := newTestClient(testCloudConfig())
	fc.publishErr = errors.New("broker closed connection")

	err := c.Relay(context.Background(), testSample(40))
	if !errors.Is(err, ErrRelayFailed) {
		t.Errorf("Relay() error = %v, want ErrRelayFailed", err)
	}
}

func TestRelay_CancelledContext(t *testing.T) {
	c, fc := newTestClient(testCloudConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Relay(ctx, testSample(40)); err == nil {
		t.Error("Relay() should fail on cancelled context")
	}

	fc.mu.Lock()
	calls := fc.connectCalls
	fc.mu.Unlock()
	if calls != 0 {
		t.Error("Relay() must not dial after cancellation")
	}
}

func TestClose(t *testing.T) {
	c, fc := newTestClient(testCloudConfig())

	c.Relay(context.Background(), testSample(40))
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if fc.IsConnected() {
		t.Error("connection still open after Close()")
	}

	// Close without a live connection is a no-op
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
