// Package api implements the HTTP transport of the PumaGuard presence core.
//
// This package provides:
//   - DHCP lease ingress for the dnsmasq hook script
//   - the manual control surface (device removal and registration, forced
//     heartbeat checks, plug mode and relay control)
//   - per-kind heartbeat and retention settings
//   - the change stream over WebSocket and Server-Sent Events
//   - health, JSON system metrics and Prometheus exposition
//   - middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Handlers are thin: they decode the request, call into presence.Service,
// dhcp.Ingester or settings.Store, and map sentinel errors to status codes
// in errors.go. No handler mutates device state directly.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and Prometheus are optional. Health reports them when
// configured; everything else works without them.
package api
