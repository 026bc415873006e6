// Package topics resolves the configured seed vocabulary into the hub's
// MQTT topic namespace.
//
// A small set of seed names (server, script, system, fan) is expanded by
// substituting %(name)s placeholders, which may reference other seeds.
// Resolution treats the references as a directed graph and detects cycles
// explicitly. The result is a read-only Registry of named Topics (for
// publishing and exact-match dispatch) and named Filters (for subscribing),
// each carrying its QoS and retain flags.
//
// Resolution is pure: it happens once at startup, has no side effects, and
// the Registry never changes afterwards.
package topics
