// Package presence is the manual control surface of the presence subsystem
// and wires registry changes to the optional MQTT and InfluxDB sinks.
//
// Service offers the operations the HTTP layer exposes: device removal and
// registration, forced heartbeat checks across all kinds, and plug mode and
// relay control. Mirrors subscribe to the stream broadcaster like any other
// consumer, so a stalled broker or database never blocks a registry write.
package presence
