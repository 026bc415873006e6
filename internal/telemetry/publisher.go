package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sochub/soc-hub/internal/infrastructure/config"
	"github.com/sochub/soc-hub/internal/topics"
)

// SessionPublisher is the publishing surface the Publisher needs from the
// broker session.
type SessionPublisher interface {
	Publish(topic topics.Topic, payload []byte) error
	PublishString(topic topics.Topic, payload string) error
}

// Relay forwards a Sample to the cloud telemetry service.
type Relay interface {
	Relay(ctx context.Context, sample Sample) error
}

// Sink receives every successful Sample for local recording. Writes must
// not block the telemetry tick.
type Sink interface {
	WriteSample(sample Sample)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Publisher samples the temperature sensor on the telemetry cadence and
// publishes the rounded readings to the value and percentage topics. The
// most recent Sample is kept for the slower cloud relay cadence; it is
// never re-published after a failed sensor read.
//
// Thread Safety:
//   - Tick and CloudTick run on independent scheduler tasks and may
//     interleave; the latest Sample is mutex-guarded.
type Publisher struct {
	session SessionPublisher
	sensor  Sensor

	valueTopic   topics.Topic
	percentTopic topics.Topic

	maxTemperature float64
	roundTemp      int
	roundPct       int

	relay Relay // optional
	sink  Sink  // optional

	// onSample is invoked synchronously with each new Sample (optional,
	// set via SetOnSample). The fan controller hangs off this hook.
	onSample   func(Sample)
	callbackMu sync.RWMutex

	latest   *Sample
	latestMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Options configures a Publisher.
type Options struct {
	Session SessionPublisher
	Sensor  Sensor

	// ValueTopic and PercentTopic are the registry topics for the absolute
	// and percentage readings.
	ValueTopic   topics.Topic
	PercentTopic topics.Topic

	// SensorConfig supplies the percentage scale, RoundingConfig the
	// decimal precisions (validated 0..6 at config load).
	SensorConfig   config.SensorConfig
	RoundingConfig config.RoundingConfig

	// Relay is the optional cloud bridge collaborator.
	Relay Relay

	// Sink is the optional local time-series sink.
	Sink Sink
}

// NewPublisher creates a Publisher from the given options.
func NewPublisher(opts Options) (*Publisher, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("telemetry: session is required")
	}
	if opts.Sensor == nil {
		return nil, fmt.Errorf("telemetry: sensor is required")
	}
	if opts.ValueTopic.Value == "" || opts.PercentTopic.Value == "" {
		return nil, fmt.Errorf("telemetry: value and percentage topics are required")
	}

	return &Publisher{
		session:        opts.Session,
		sensor:         opts.Sensor,
		valueTopic:     opts.ValueTopic,
		percentTopic:   opts.PercentTopic,
		maxTemperature: opts.SensorConfig.MaxTemperature,
		roundTemp:      opts.RoundingConfig.Temperature,
		roundPct:       opts.RoundingConfig.Percentage,
		relay:          opts.Relay,
		sink:           opts.Sink,
	}, nil
}

// Tick performs one telemetry cycle: read the sensor, round, publish the
// absolute and percentage readings, and hand the Sample to the sample hook
// and the local sink.
//
// A sensor read failure skips the cycle: the previous Sample stays as the
// (stale) latest but is not re-published. Publish failures are already
// best-effort inside the session. The returned error is informational for
// the scheduler's tick logging; it never stops the task.
func (p *Publisher) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := p.sensor.ReadTemperature()
	if err != nil {
		if logger := p.getLogger(); logger != nil {
			logger.Warn("sensor read failed, telemetry tick skipped", "error", err)
		}
		return fmt.Errorf("reading sensor: %w", err)
	}

	sample := Sample{
		RawTemperature:     Round(raw, p.roundTemp),
		TemperaturePercent: Round(raw/p.maxTemperature*100, p.roundPct),
		Timestamp:          time.Now(),
	}

	p.latestMu.Lock()
	p.latest = &sample
	p.latestMu.Unlock()

	// Best-effort publishes; the session drops them when disconnected
	p.session.PublishString(p.valueTopic, formatReading(sample.RawTemperature))
	p.session.PublishString(p.percentTopic, formatReading(sample.TemperaturePercent))

	if p.sink != nil {
		p.sink.WriteSample(sample)
	}

	p.callbackMu.RLock()
	callback := p.onSample
	p.callbackMu.RUnlock()
	if callback != nil {
		callback(sample)
	}

	return nil
}

// CloudTick relays the most recent Sample to the cloud bridge.
//
// Runs on its own cadence, always at least as slow as the telemetry period.
// When no Sample has been produced yet the tick is skipped; no synthetic
// data is ever relayed.
func (p *Publisher) CloudTick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.relay == nil {
		return nil
	}

	sample, ok := p.Latest()
	if !ok {
		if logger := p.getLogger(); logger != nil {
			logger.Debug("cloud relay tick skipped, no sample yet")
		}
		return nil
	}

	if err := p.relay.Relay(ctx, sample); err != nil {
		if logger := p.getLogger(); logger != nil {
			logger.Warn("cloud relay failed", "error", err)
		}
		return fmt.Errorf("relaying sample: %w", err)
	}

	return nil
}

// Latest returns the most recent Sample, which may be stale after sensor
// read failures.
func (p *Publisher) Latest() (Sample, bool) {
	p.latestMu.RLock()
	defer p.latestMu.RUnlock()
	if p.latest == nil {
		return Sample{}, false
	}
	return *p.latest, true
}

// SetOnSample sets a callback invoked synchronously with each new Sample.
func (p *Publisher) SetOnSample(callback func(Sample)) {
	p.callbackMu.Lock()
	p.onSample = callback
	p.callbackMu.Unlock()
}

// SetLogger sets a logger for diagnostics.
func (p *Publisher) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

func (p *Publisher) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

// formatReading renders a rounded reading without trailing zeros, matching
// what subscribers of the value/percentage topics expect to parse.
func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
