// Package mqtt provides the broker session for SoC Hub.
//
// This package manages:
//   - The single connection to the local Mosquitto broker
//   - Message publishing against registry topics (QoS and retain carried by
//     the topic value itself)
//   - Filter subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament on the status topic for offline detection
//   - A supervised fixed-interval reconnect check
//
// # Reconnect protocol
//
// Paho's built-in auto-reconnect is disabled. Instead the scheduler invokes
// CheckConnection every connection check period; a tick performs at most one
// connect attempt before returning, so reconnection can never starve the
// other periodic tasks and retry pacing is exactly the configured period.
// A credential rejection (ErrAuthFailed) is latched and, by default, not
// retried; set mqtt.auth.retry_on_auth_error to retry it on the same
// cadence as transport failures.
//
// # Best-effort publishing
//
// Publish drops messages with a debug log while the session is not
// connected and never blocks the caller on transport failures. Status and
// telemetry publishers rely on this: a lost connection degrades output, it
// never stalls a tick.
//
// # Usage
//
//	session := mqtt.New(cfg.MQTT, statusTopic)
//	session.SetLogger(log)
//	if err := session.Connect(ctx); err != nil { ... }
//	defer session.Close()
//
//	session.Subscribe(fanFilter, func(topic string, payload []byte) error {
//	    queue.Enqueue(topic, payload)
//	    return nil
//	})
package mqtt
