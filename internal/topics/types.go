package topics

// Topic is an immutable, fully resolved topic used for publishing or for
// exact-match dispatch of inbound messages.
type Topic struct {
	// Name is the registry key the topic was defined under.
	Name string

	// Value is the resolved hierarchical topic string.
	Value string

	// QoS is the MQTT quality-of-service level (0, 1 or 2).
	QoS byte

	// Retain indicates the broker should retain the last published message.
	Retain bool
}

// Filter is an immutable, fully resolved subscription filter. Its value may
// contain MQTT wildcard segments (+, #). Filters are only ever subscribed
// to; the separate type keeps them out of publish paths by construction.
type Filter struct {
	// Name is the registry key the filter was defined under.
	Name string

	// Value is the resolved filter string, possibly containing wildcards.
	Value string

	// QoS is the maximum quality-of-service level requested on subscribe.
	QoS byte
}

// Role values recognised on topic definitions.
const (
	// RoleLWT marks the topic carrying the last-will "offline" payload and
	// the retained "online" status. Exactly one topic may carry it.
	RoleLWT = "lwt"
)
