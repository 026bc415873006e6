package hub

import (
	"context"
	"strconv"
	"strings"
)

// dispatchQueueSize bounds the inbound message queue. Transport handler
// goroutines enqueue and never block; when the queue is full the message is
// dropped and logged.
const dispatchQueueSize = 64

// Hub command payloads accepted on the command control topic.
const (
	commandStatus = "STATUS"
	commandExit   = "EXIT"
)

// inboundMessage is one message received from the broker, queued for the
// dispatch task.
type inboundMessage struct {
	topic   string
	payload []byte
}

// enqueue is the subscription handler for every registry filter. It runs
// in paho's handler goroutines and must not block, so a full queue drops
// the message instead of waiting.
func (h *Hub) enqueue(topic string, payload []byte) error {
	select {
	case h.queue <- inboundMessage{topic: topic, payload: payload}:
	default:
		h.log.Warn("dispatch queue full, message dropped", "topic", topic)
	}
	return nil
}

// dispatchLoop drains the queue until cancellation. Fan Controller
// handlers run here, on the same goroutine for every message, and take the
// controller's own lock, so a manual override and a concurrent
// threshold-driven transition cannot lose an update to each other.
func (h *Hub) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.queue:
			h.dispatch(msg)
		}
	}
}

// dispatch routes one inbound message by exact topic match.
func (h *Hub) dispatch(msg inboundMessage) {
	payload := string(msg.payload)
	h.log.Debug("inbound message", "topic", msg.topic, "payload", payload)

	switch msg.topic {
	case h.cmdControl:
		h.handleCommand(payload)

	case h.fanControl:
		if err := h.fan.HandleCommand(payload); err != nil {
			h.log.Warn("fan command rejected", "payload", payload, "error", err)
		}

	case h.fanPercOn:
		h.handleThresholdOverride(payload, h.fan.OverrideThresholdOn)

	case h.fanPercOff:
		h.handleThresholdOverride(payload, h.fan.OverrideThresholdOff)

	default:
		h.log.Warn("message on unexpected topic", "topic", msg.topic)
	}
}

// handleCommand processes a hub-level command.
//
// STATUS republishes the retained online status and the current fan state.
// EXIT requests a clean shutdown; it is refused in service mode, where the
// supervisor owns the process lifecycle.
func (h *Hub) handleCommand(payload string) {
	command := strings.ToUpper(strings.TrimSpace(payload))

	switch command {
	case commandStatus:
		h.session.PublishOnline()
		if err := h.fan.HandleCommand(commandStatus); err != nil {
			h.log.Warn("fan status republish failed", "error", err)
		}
		h.log.Info("hub status",
			"session_state", h.session.State(),
			"subscriptions", h.session.SubscriptionCount(),
			"service_mode", h.serviceMode,
		)

	case commandExit:
		if h.serviceMode {
			h.log.Warn("EXIT command refused in service mode")
			return
		}
		h.log.Warn("EXIT command received, shutting down")
		h.requestShutdown()

	default:
		h.log.Warn("unknown hub command", "payload", payload)
	}
}

// handleThresholdOverride parses a percentage payload and applies it
// through the given setter. Malformed or invariant-violating overrides are
// rejected and logged; the running thresholds stay untouched.
func (h *Hub) handleThresholdOverride(payload string, set func(float64) error) {
	percent, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		h.log.Warn("malformed threshold override", "payload", payload, "error", err)
		return
	}
	if err := set(percent); err != nil {
		h.log.Warn("threshold override rejected", "payload", payload, "error", err)
	}
}
