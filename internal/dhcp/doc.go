// Package dhcp applies DHCP lease notifications to the device registry.
//
// Events come from the access point's lease hook, either POSTed to the HTTP
// API or published on the MQTT topic pumaguard/dhcp/event:
//
//	{"action": "add", "mac": "aa:bb:cc:dd:ee:ff", "ip": "192.168.52.20", "hostname": "Microseven-1"}
//
// add and old (renew) mark a recognised device connected and advance its
// last seen time. del (lease expiry) marks a known device disconnected but
// leaves last seen alone: a lease ending is not a failed contact.
package dhcp
