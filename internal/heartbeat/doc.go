// Package heartbeat actively probes devices of one kind and records the
// outcome in the device registry.
//
// A Prober runs one loop per device kind. Each cycle lists the kind's devices,
// checks every one of them with the configured method, writes the result back
// to the registry and then runs the retention sweep over the updated state.
// The wait between cycles is a timer selected against the context and a stop
// channel, so shutdown never waits out a long interval.
//
// Liveness methods:
//
//	icmp  single echo request (pro-bing)
//	tcp   TCP connect to the configured port
//	both  icmp first, tcp only when icmp failed
//
// The registry lock is never held while a probe is in flight: the prober works
// on a snapshot and applies each result with its own Upsert.
package heartbeat
