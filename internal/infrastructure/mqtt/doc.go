// Package mqtt provides MQTT connectivity for the PumaGuard presence core.
//
// The broker is optional. When enabled it carries two flows:
//
//   - DHCP lease events published by the access point's dnsmasq hook on
//     pumaguard/dhcp/event, consumed as a second ingress next to HTTP.
//   - Retained per-device presence on pumaguard/presence/<kind>/<mac>, so
//     other services on the site see current status as soon as they
//     subscribe.
//
// The client reconnects automatically, restores subscriptions after a
// reconnect and announces itself on pumaguard/system/status with a Last Will
// so an unexpected exit is visible to other subscribers.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.DHCPEvent(), 1,
//	    func(topic string, payload []byte) error {
//	        return ingest(payload)
//	    })
package mqtt
