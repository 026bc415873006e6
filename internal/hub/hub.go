package hub

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sochub/soc-hub/internal/fan"
	"github.com/sochub/soc-hub/internal/infrastructure/config"
	"github.com/sochub/soc-hub/internal/infrastructure/logging"
	"github.com/sochub/soc-hub/internal/infrastructure/mqtt"
	"github.com/sochub/soc-hub/internal/scheduler"
	"github.com/sochub/soc-hub/internal/telemetry"
	"github.com/sochub/soc-hub/internal/topics"
)

// Scheduler task names.
const (
	taskConnectionCheck = "connection-check"
	taskTelemetry       = "telemetry"
	taskCloudRelay      = "cloud-relay"
)

// Sink is the optional local time-series store. The hub probes it on the
// connection check cadence and flushes pending writes on shutdown.
type Sink interface {
	HealthCheck(ctx context.Context) error
	Flush()
}

// Options configures a Hub.
type Options struct {
	Config    *config.Config
	Registry  *topics.Registry
	Session   *mqtt.Session
	Publisher *telemetry.Publisher
	Fan       *fan.Controller
	Logger    *logging.Logger

	// Sink is optional; leave nil when no time-series store is configured.
	Sink Sink
}

// Hub ties the components together: it subscribes the registry filters,
// drains inbound messages through a single dispatch task, and drives the
// periodic tasks (connection check, telemetry, cloud relay) through the
// scheduler.
type Hub struct {
	cfg       *config.Config
	registry  *topics.Registry
	session   *mqtt.Session
	publisher *telemetry.Publisher
	fan       *fan.Controller
	sched     *scheduler.Scheduler
	sink      Sink
	log       *logging.Logger

	queue chan inboundMessage

	// Dispatch topics resolved once at construction.
	cmdControl string
	fanControl string
	fanPercOn  string
	fanPercOff string

	// requestShutdown cancels the run context in response to an EXIT
	// command. Set by Run.
	requestShutdown context.CancelFunc

	// serviceMode blocks the EXIT command when the hub runs under service
	// supervision.
	serviceMode bool
}

// New creates a Hub and wires the telemetry sample flow into the fan
// controller.
//
// Returns an error when a dispatch topic the hub depends on is missing
// from the registry; that is a configuration fault and fails startup.
func New(opts Options) (*Hub, error) {
	if opts.Config == nil || opts.Registry == nil || opts.Session == nil ||
		opts.Publisher == nil || opts.Fan == nil || opts.Logger == nil {
		return nil, fmt.Errorf("hub: all components are required")
	}

	h := &Hub{
		cfg:       opts.Config,
		registry:  opts.Registry,
		session:   opts.Session,
		publisher: opts.Publisher,
		fan:       opts.Fan,
		sched:     scheduler.New(),
		sink:      opts.Sink,
		log:       opts.Logger,
		queue:     make(chan inboundMessage, dispatchQueueSize),

		// systemd sets INVOCATION_ID for supervised units
		serviceMode: os.Getenv("INVOCATION_ID") != "",
	}

	required := map[string]*string{
		"iot_command_control": &h.cmdControl,
		"fan_cmd_control":     &h.fanControl,
		"fan_cmd_percon":      &h.fanPercOn,
		"fan_cmd_percoff":     &h.fanPercOff,
	}
	for name, dst := range required {
		t, ok := opts.Registry.Topic(name)
		if !ok {
			return nil, fmt.Errorf("hub: topic %q not defined in registry", name)
		}
		*dst = t.Value
	}

	// Every new Sample feeds the fan state machine on the telemetry tick
	h.publisher.SetOnSample(h.fan.Evaluate)

	h.sched.SetLogger(h.log.With("component", "scheduler"))

	return h, nil
}

// Run subscribes the registry filters, makes the initial connection
// attempt and drives the periodic tasks until ctx is cancelled or an EXIT
// command arrives.
//
// Transport failures during the initial connect are logged and left to the
// reconnect loop. A credential rejection terminates startup unless the
// auth retry policy allows retrying it on the check cadence.
func (h *Hub) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.requestShutdown = cancel

	// Track subscriptions before connecting; the session registers them
	// with the broker on every (re)connect.
	for _, filter := range h.registry.Filters() {
		if err := h.session.Subscribe(filter, h.enqueue); err != nil {
			return fmt.Errorf("subscribing %s: %w", filter.Value, err)
		}
	}

	if err := h.session.Connect(runCtx); err != nil {
		if errors.Is(err, mqtt.ErrAuthFailed) && !h.cfg.MQTT.Auth.RetryOnAuthError {
			return fmt.Errorf("connecting to broker: %w", err)
		}
		h.log.Warn("initial broker connection failed, reconnect loop will retry",
			"error", err,
		)
	}

	h.sched.Add(taskConnectionCheck, h.cfg.GetConnectionCheckPeriod(), h.checkConnection)
	h.sched.Add(taskTelemetry, h.cfg.GetTelemetryPeriod(), h.publisher.Tick)
	if h.cfg.Cloud.Enabled {
		h.sched.Add(taskCloudRelay, h.cfg.GetCloudPeriod(), h.publisher.CloudTick)
	}

	// Dedicated dispatch task drains inbound messages; it shares no timer
	// with the periodic tasks
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		h.dispatchLoop(runCtx)
	}()

	h.log.Info("hub running",
		"connection_check", h.cfg.GetConnectionCheckPeriod(),
		"telemetry", h.cfg.GetTelemetryPeriod(),
		"cloud", h.cfg.GetCloudPeriod(),
		"cloud_enabled", h.cfg.Cloud.Enabled,
		"service_mode", h.serviceMode,
	)

	h.sched.Run(runCtx)
	<-dispatchDone

	h.shutdown()

	return nil
}

// checkConnection is the liveness tick. A healthy session returns
// immediately; otherwise one reconnect attempt is made. The sink is probed
// on the same cadence and a failure there is logged, never escalated.
func (h *Hub) checkConnection(ctx context.Context) error {
	if h.sink != nil {
		if err := h.sink.HealthCheck(ctx); err != nil {
			h.log.Warn("time-series sink unhealthy", "error", err)
		}
	}

	if h.session.HealthCheck(ctx) == nil {
		return nil
	}
	return h.session.CheckConnection(ctx)
}

// shutdown releases broker-side state before the session and sink close.
// Failures here are logged, never raised.
func (h *Hub) shutdown() {
	for _, filter := range h.registry.Filters() {
		if err := h.session.Unsubscribe(filter); err != nil {
			h.log.Warn("unsubscribe failed on shutdown",
				"filter", filter.Value,
				"error", err,
			)
		}
	}
	if h.sink != nil {
		h.sink.Flush()
	}
}
