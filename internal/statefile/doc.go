// Package statefile persists the device registry and per-kind settings in a
// single YAML document.
//
// Layout:
//
//	cameras:
//	  devices:   [{mac, hostname, ip_address, status, last_seen}]
//	  heartbeat: {enabled, interval, method, tcp_port, tcp_timeout, icmp_timeout}
//	  retention: {enabled, hours}
//	plugs:
//	  devices:   [{..., mode, switch_on}]
//	  heartbeat: {...}
//	  retention: {...}
//	device-history:
//	  aa:bb:cc:dd:ee:ff: {kind, hostname}
//
// Top-level keys owned by other parts of the application are read and written
// back untouched. Every write goes to a temporary file that is renamed over
// the target, so a crash never leaves a truncated document. Snapshots older
// than the last one written are discarded.
package statefile
