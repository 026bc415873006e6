// Package cloud relays telemetry to a ThingSpeak-compatible service.
//
// The service exposes an MQTT endpoint; one numeric field per channel is
// written on the cloud cadence, authenticated by a write API key. The
// relay is strictly best-effort: connection is lazy, a failed publish
// waits for the next tick, and a credential rejection is latched so the
// hub stops hammering a misconfigured endpoint.
package cloud
