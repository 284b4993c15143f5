// Package retention removes devices that have not been seen for longer than
// a configured number of hours.
//
// The heartbeat prober of each kind calls Sweep at the end of every cycle
// with the snapshot it just probed and the kind's current retention settings.
//
// # Rules
//
//   - A device without a recorded last_seen is never removed.
//   - Removal goes through the registry, so camera_removed and plug_removed
//     events are published as for a manual removal.
//   - A device seen again after the snapshot was taken is kept.
//
// # Usage
//
//	policy := retention.NewPolicy(registry)
//	policy.SetLogger(log)
//	policy.SetRecorder(metrics)
//
//	removed := policy.Sweep(ctx, devices, true, 24)
package retention
