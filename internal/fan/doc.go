// Package fan implements the cooling fan state machine.
//
// The controller consumes telemetry samples and switches the fan on at or
// above the on threshold and off at or below the off threshold. The gap
// between the two thresholds is a hysteresis band: samples inside it never
// cause a transition, which keeps noisy readings from oscillating the fan.
//
// Inbound command topic messages provide manual overrides (ON/OFF/STATUS)
// and runtime threshold changes; they take the same lock as timer-driven
// evaluation, so concurrent automatic and manual transitions serialise
// cleanly. Every state change publishes the fan command topic and the
// status topics carrying the readings at the moment of transition.
package fan
