// Package device provides the Device Registry for the PumaGuard presence core.
//
// The registry is the authoritative record of every camera and smart plug
// seen on the site network, keyed by MAC address, together with an identity
// history that survives device removal.
//
// # Architecture
//
//	 DHCP ingester ──┐                       ┌──▶ Publisher (event stream)
//	                 │   ┌───────────────┐   │
//	 Heartbeat  ─────┼──▶│   Registry    │───┤
//	 probers         │   │ (registry.go) │   │
//	                 │   └───────────────┘   └──▶ Persister (state file)
//	 Manual API ─────┘
//
// # Key Types
//
//   - Device: presence record (kind, hostname, IP, status, last seen, plug mode)
//   - HistoryEntry: last known good (kind, hostname) for a MAC
//   - Update: partial change applied by Upsert; Reason selects the event kind
//   - Event: one per successful mutation, rendered as {type, data, timestamp}
//
// # Invariants
//
//   - LastSeen never decreases.
//   - History entries are never deleted by Remove.
//   - Event order matches mutation order.
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//	registry.SetPublisher(broadcaster)
//	registry.SetPersister(store)
//
//	dev, err := registry.Upsert(ctx, "AA-BB-CC-DD-EE-FF", device.Update{
//	    Kind:     device.KindCamera,
//	    Hostname: device.Ptr("Microseven-Cam1"),
//	    Status:   device.Ptr(device.StatusConnected),
//	    Seen:     time.Now(),
//	    Reason:   device.ReasonDHCP,
//	})
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Network I/O never happens under
// its lock; callers read a snapshot, probe, then apply the result.
package device
