package telemetry

import (
	"math"
	"time"
)

// Sample is an immutable snapshot of one sensor reading. It is produced by
// the Publisher each telemetry tick and consumed by the fan controller and
// the cloud relay; no history is kept beyond the most recent Sample.
type Sample struct {
	// RawTemperature is the reading in the sensor's native unit.
	RawTemperature float64

	// TemperaturePercent is the reading as a percentage of the configured
	// maximum temperature.
	TemperaturePercent float64

	// Timestamp is when the reading was taken.
	Timestamp time.Time
}

// Sensor is the temperature sensor collaborator. A single synchronous call
// returns a raw reading in the sensor's native unit; conversion to a
// percentage is the Publisher's responsibility.
type Sensor interface {
	ReadTemperature() (float64, error)
}

// Round rounds a value half away from zero to the given number of decimal
// places. Rounding an already rounded value with the same precision is a
// no-op.
func Round(value float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}
