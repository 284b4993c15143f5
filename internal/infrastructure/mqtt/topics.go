package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "pumaguard"

// Topics builds PumaGuard topic names under a common prefix.
//
//	topics := mqtt.NewTopics("pumaguard")
//	topics.Presence("camera", "aa:bb:cc:dd:ee:ff")
//	// Returns: "pumaguard/presence/camera/aa:bb:cc:dd:ee:ff"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic this builder produces.
func (t Topics) Prefix() string {
	return t.root()
}

func (t Topics) root() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// SystemStatus returns the online/offline status topic for this process.
//
// Example: pumaguard/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// DHCPEvent returns the topic DHCP lease hooks publish to.
//
// Example: pumaguard/dhcp/event
func (t Topics) DHCPEvent() string {
	return fmt.Sprintf("%s/dhcp/event", t.root())
}

// Presence returns the retained presence topic for one device.
//
// Example: pumaguard/presence/plug/aa:bb:cc:dd:ee:ff
func (t Topics) Presence(kind, mac string) string {
	return fmt.Sprintf("%s/presence/%s/%s", t.root(), kind, mac)
}

// AllPresence returns a pattern matching every device presence topic.
//
// Pattern: pumaguard/presence/+/+
func (t Topics) AllPresence() string {
	return fmt.Sprintf("%s/presence/+/+", t.root())
}

// ParsePresence extracts kind and MAC from a presence topic.
func (t Topics) ParsePresence(topic string) (kind, mac string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/presence/")
	if !found {
		return "", "", false
	}
	kind, mac, found = strings.Cut(rest, "/")
	if !found || kind == "" || mac == "" || strings.Contains(mac, "/") {
		return "", "", false
	}
	return kind, mac, true
}
