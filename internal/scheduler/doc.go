// Package scheduler runs the hub's periodic tasks.
//
// Each task gets its own goroutine and ticker, so the connection check,
// telemetry and cloud relay cadences are fully independent: within a task
// ticks are strictly sequential, and one task's slow or failing tick never
// delays another's. Tick errors and panics are contained and logged.
package scheduler
