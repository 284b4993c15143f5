// Package influxdb records presence telemetry in InfluxDB v2.
//
// Two measurements are written:
//
//   - device_presence: one point per presence change (tags kind, mac; fields
//     connected, hostname, ip_address).
//   - device_probe: one point per heartbeat probe (tags kind, mac, method;
//     fields reachable, latency_ms).
//
// Writes go through the non-blocking batched WriteAPI. Failures surface
// asynchronously through the SetOnError callback; a disconnected or closed
// client silently drops points.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePresence(influxdb.Presence{Kind: "camera", MAC: mac, Connected: true})
package influxdb
