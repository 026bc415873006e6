package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sochub/soc-hub/internal/telemetry"
)

// WriteSample records one telemetry Sample.
//
// Implements telemetry.Sink. The write is non-blocking; data is batched and
// sent asynchronously, so a telemetry tick is never delayed by the sink.
func (c *Client) WriteSample(sample telemetry.Sample) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"soc_temperature",
		map[string]string{
			"source": "sochub",
		},
		map[string]interface{}{
			"temperature_c":   sample.RawTemperature,
			"temperature_pct": sample.TemperaturePercent,
		},
		sample.Timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteTransition records a fan state change with the readings at the
// moment of transition.
//
// Implements fan.Sink.
func (c *Client) WriteTransition(isOn bool, sample telemetry.Sample) {
	if !c.IsConnected() {
		return
	}

	state := "off"
	if isOn {
		state = "on"
	}

	point := write.NewPoint(
		"fan_transitions",
		map[string]string{
			"source": "sochub",
			"state":  state,
		},
		map[string]interface{}{
			"temperature_c":   sample.RawTemperature,
			"temperature_pct": sample.TemperaturePercent,
		},
		sample.Timestamp,
	)

	c.writeAPI.WritePoint(point)
}
