// Package telemetry samples the SoC temperature sensor and publishes the
// readings.
//
// Two independent cadences share one Publisher: the telemetry tick reads
// the sensor, rounds the absolute and percentage values to their configured
// precisions and publishes both topics; the slower cloud tick relays the
// most recent Sample to the cloud bridge. Sensor failures skip a tick and
// leave the previous Sample stale; publish failures are best-effort and
// never fatal.
package telemetry
