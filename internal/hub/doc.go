// Package hub wires the SoC Hub components together and runs them.
//
// The hub owns the scheduler (connection check, telemetry and cloud relay
// cadences), subscribes the registry filters, and drains all inbound
// messages through a single bounded-queue dispatch task. Hub-level
// commands (STATUS, EXIT) and fan overrides arrive on the command topics
// and are routed here by exact topic match.
package hub
