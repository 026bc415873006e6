// Package influxdb provides the optional local time-series sink.
//
// When enabled, every telemetry sample and fan transition is recorded to an
// InfluxDB v2 bucket with non-blocking batched writes. The sink is purely
// supplementary: the hub runs identically with it disabled, and write
// failures surface only through the async error callback.
package influxdb
