// Package metrics exposes presence subsystem counters in Prometheus format.
//
// Metrics implements the recorder interfaces of the dhcp, heartbeat,
// retention, stream and presence packages, so one instance is handed to each
// of them at startup. All methods are safe for concurrent use and never block.
//
// # Exported Series
//
//   - pumaguard_dhcp_events_total{action,outcome}
//   - pumaguard_heartbeat_probes_total and probe latency, per kind and method
//   - pumaguard_heartbeat_cycle_duration_seconds and cycle_devices, per kind
//   - pumaguard_retention_removed_total{kind}
//   - pumaguard_stream_dropped_events_total and subscribers
//   - pumaguard_plug_commands_total{outcome}
//   - device gauges derived from registry stats at scrape time
//
// # Usage
//
//	m := metrics.New()
//	m.WatchDevices(registry.GetStats)
//	router.Handle("/metrics", m.Handler())
package metrics
