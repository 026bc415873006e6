package fan

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sochub/soc-hub/internal/infrastructure/config"
	"github.com/sochub/soc-hub/internal/telemetry"
	"github.com/sochub/soc-hub/internal/topics"
)

// SessionPublisher is the publishing surface the controller needs from the
// broker session.
type SessionPublisher interface {
	PublishString(topic topics.Topic, payload string) error
}

// Sink receives fan transitions for local recording (optional).
type Sink interface {
	WriteTransition(isOn bool, sample telemetry.Sample)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Command payloads accepted on the fan command topic and sent to the fan
// actuator.
const (
	CommandOn     = "ON"
	CommandOff    = "OFF"
	CommandStatus = "STATUS"
)

// Status payloads published on the fan status control topic.
const (
	StatusRunning = "RUNNING"
	StatusIdle    = "IDLE"
)

// Topics groups the registry topics the controller publishes to.
type Topics struct {
	// Command is the actuator command topic (ON/OFF toward the fan).
	Command topics.Topic

	// StatusControl carries the retained RUNNING/IDLE state.
	StatusControl topics.Topic

	// Transition readings at the moment of switching.
	StatusPercOn  topics.Topic
	StatusPercOff topics.Topic
	StatusTempOn  topics.Topic
	StatusTempOff topics.Topic
}

// Controller is the fan state machine.
//
// It evaluates each telemetry Sample against a hysteresis band: the fan
// switches on at or above the on threshold and off at or below the off
// threshold; nothing happens strictly between them, so noisy readings near
// one threshold cannot make the fan chatter.
//
// Timer-driven evaluation and inbound override commands run under the same
// mutex, so a threshold transition and a concurrent manual override cannot
// lose an update to each other.
type Controller struct {
	session SessionPublisher
	t       Topics
	sink    Sink // optional

	mu           sync.Mutex
	isOn         bool
	thresholdOn  float64
	thresholdOff float64
	lastSample   *telemetry.Sample

	logger   Logger
	loggerMu sync.RWMutex
}

// NewController creates a Controller with thresholds from config.
//
// The hysteresis invariant (off threshold <= on threshold) is already
// enforced at config load; it is re-checked here because runtime overrides
// go through the same guard.
func NewController(cfg config.FanConfig, session SessionPublisher, t Topics) (*Controller, error) {
	if session == nil {
		return nil, fmt.Errorf("fan: session is required")
	}
	if cfg.ThresholdOffPercent > cfg.ThresholdOnPercent {
		return nil, ErrInvalidThreshold
	}

	return &Controller{
		session:      session,
		t:            t,
		thresholdOn:  cfg.ThresholdOnPercent,
		thresholdOff: cfg.ThresholdOffPercent,
	}, nil
}

// SetSink sets an optional transition sink.
func (c *Controller) SetSink(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// SetLogger sets a logger for diagnostics.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Controller) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// Evaluate applies the hysteresis rule to one Sample.
//
// Called on every telemetry tick. At most one transition per call; repeated
// samples inside the hysteresis band are no-ops.
func (c *Controller) Evaluate(sample telemetry.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSample = &sample

	switch {
	case !c.isOn && sample.TemperaturePercent >= c.thresholdOn:
		c.transition(true, &sample)
	case c.isOn && sample.TemperaturePercent <= c.thresholdOff:
		c.transition(false, &sample)
	}
}

// HandleCommand processes an inbound payload from the fan command topic.
//
// ON and OFF are manual overrides: they set the state directly without
// re-evaluating thresholds and trigger the same status publishes as an
// automatic transition. A command that does not change state is a no-op.
// STATUS republishes the current state without changing it.
func (c *Controller) HandleCommand(payload string) error {
	command := strings.ToUpper(strings.TrimSpace(payload))

	c.mu.Lock()
	defer c.mu.Unlock()

	switch command {
	case CommandOn:
		if !c.isOn {
			c.transition(true, c.lastSample)
		}
	case CommandOff:
		if c.isOn {
			c.transition(false, c.lastSample)
		}
	case CommandStatus:
		c.publishState()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, payload)
	}

	return nil
}

// OverrideThresholdOn replaces the on threshold at runtime.
//
// The hysteresis invariant is enforced: an override that would put the on
// threshold below the off threshold is rejected.
func (c *Controller) OverrideThresholdOn(percent float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if percent < c.thresholdOff {
		return fmt.Errorf("%w: on threshold %.1f below off threshold %.1f",
			ErrInvalidThreshold, percent, c.thresholdOff)
	}
	c.thresholdOn = percent

	if logger := c.getLogger(); logger != nil {
		logger.Info("fan on threshold overridden", "percent", percent)
	}
	return nil
}

// OverrideThresholdOff replaces the off threshold at runtime.
func (c *Controller) OverrideThresholdOff(percent float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if percent > c.thresholdOn {
		return fmt.Errorf("%w: off threshold %.1f above on threshold %.1f",
			ErrInvalidThreshold, percent, c.thresholdOn)
	}
	c.thresholdOff = percent

	if logger := c.getLogger(); logger != nil {
		logger.Info("fan off threshold overridden", "percent", percent)
	}
	return nil
}

// transition flips the fan state and publishes the command and status
// topics. Caller must hold c.mu. The sample carries the readings at the
// moment of transition; it is nil for an override arriving before the
// first telemetry tick, in which case only the command and state topics
// are published.
func (c *Controller) transition(on bool, sample *telemetry.Sample) {
	c.isOn = on

	command := CommandOff
	if on {
		command = CommandOn
	}
	c.session.PublishString(c.t.Command, command)
	c.publishState()

	if sample != nil {
		if on {
			c.session.PublishString(c.t.StatusPercOn, formatReading(sample.TemperaturePercent))
			c.session.PublishString(c.t.StatusTempOn, formatReading(sample.RawTemperature))
		} else {
			c.session.PublishString(c.t.StatusPercOff, formatReading(sample.TemperaturePercent))
			c.session.PublishString(c.t.StatusTempOff, formatReading(sample.RawTemperature))
		}
		if c.sink != nil {
			c.sink.WriteTransition(on, *sample)
		}
	}

	if logger := c.getLogger(); logger != nil {
		logger.Info("fan state changed", "on", on)
	}
}

// publishState publishes the retained RUNNING/IDLE status. Caller must hold c.mu.
func (c *Controller) publishState() {
	status := StatusIdle
	if c.isOn {
		status = StatusRunning
	}
	c.session.PublishString(c.t.StatusControl, status)
}

// IsOn returns the current fan state.
func (c *Controller) IsOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOn
}

// Thresholds returns the current on and off thresholds, in percent.
func (c *Controller) Thresholds() (on, off float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thresholdOn, c.thresholdOff
}

func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
