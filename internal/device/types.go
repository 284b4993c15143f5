package device

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind is the class of field device.
type Kind string

// Device kinds.
const (
	KindCamera Kind = "camera"
	KindPlug   Kind = "plug"
)

// Kinds returns every known kind in resolution order.
func Kinds() []Kind {
	return []Kind{KindCamera, KindPlug}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCamera || k == KindPlug
}

// ParseKind converts a string to a Kind. Plural forms are accepted
// ("cameras", "plugs") since that is how the state file names sections.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "camera", "cameras":
		return KindCamera, nil
	case "plug", "plugs":
		return KindPlug, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Status is the presence state of a device.
type Status string

// Device statuses.
const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(s)) {
	case StatusConnected:
		return StatusConnected, nil
	case StatusDisconnected:
		return StatusDisconnected, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// PlugMode controls how a smart plug is driven.
type PlugMode string

// Plug modes.
const (
	PlugModeOn        PlugMode = "on"
	PlugModeOff       PlugMode = "off"
	PlugModeAutomatic PlugMode = "automatic"
)

// ParsePlugMode converts a string to a PlugMode.
func ParsePlugMode(s string) (PlugMode, error) {
	switch PlugMode(strings.ToLower(s)) {
	case PlugModeOn:
		return PlugModeOn, nil
	case PlugModeOff:
		return PlugModeOff, nil
	case PlugModeAutomatic:
		return PlugModeAutomatic, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// PlaceholderHostname is what DHCP hooks report when the client sent no name.
const PlaceholderHostname = "unknown"

// IsPlaceholderHostname reports whether h carries no usable identity.
func IsPlaceholderHostname(h string) bool {
	h = strings.TrimSpace(h)
	return h == "" || strings.EqualFold(h, PlaceholderHostname)
}

// NormalizeMAC returns mac in lowercase colon-separated form.
// Dash and dot separated inputs are accepted.
func NormalizeMAC(mac string) (string, error) {
	mac = strings.TrimSpace(mac)
	if mac == "" {
		return "", ErrInvalidMAC
	}
	hw, err := net.ParseMAC(strings.ReplaceAll(mac, "-", ":"))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return hw.String(), nil
}

// Device is one physical device, keyed by MAC.
type Device struct {
	MAC       string `json:"mac"`
	Kind      Kind   `json:"kind"`
	Hostname  string `json:"hostname"`
	IPAddress string `json:"ip_address"`
	Status    Status `json:"status"`

	// LastSeen is the last confirmed contact. Zero means never seen or
	// unparsable in the state file.
	LastSeen time.Time `json:"-"`

	// Mode and SwitchOn are only set for plugs.
	Mode     PlugMode `json:"mode,omitempty"`
	SwitchOn *bool    `json:"switch_on,omitempty"`
}

// MarshalJSON renders last_seen as RFC3339 UTC, or null when absent.
func (d Device) MarshalJSON() ([]byte, error) {
	type plain Device
	var lastSeen *string
	if !d.LastSeen.IsZero() {
		s := d.LastSeen.UTC().Format(time.RFC3339)
		lastSeen = &s
	}
	return json.Marshal(struct {
		plain
		LastSeen *string `json:"last_seen"`
	}{plain: plain(d), LastSeen: lastSeen})
}

// Connected reports whether the device is currently marked connected.
func (d *Device) Connected() bool {
	return d.Status == StatusConnected
}

// DeepCopy returns a copy that shares no pointers with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.SwitchOn != nil {
		on := *d.SwitchOn
		cp.SwitchOn = &on
	}
	return &cp
}

// HistoryEntry is the last known good identity of a MAC. Entries outlive
// the device record so a removed device can be recognised again.
type HistoryEntry struct {
	MAC      string `json:"mac"`
	Kind     Kind   `json:"kind"`
	Hostname string `json:"hostname"`
}

// Reason says which producer issued an Update. It decides the event kind.
type Reason string

// Update reasons.
const (
	ReasonDHCP   Reason = "dhcp"
	ReasonProbe  Reason = "probe"
	ReasonManual Reason = "manual"
	ReasonMode   Reason = "mode"
	ReasonSwitch Reason = "switch"
)

// Update describes a change to a device. Nil fields are left untouched.
type Update struct {
	// Kind is required when the device does not exist yet.
	Kind      Kind
	Hostname  *string
	IPAddress *string
	Status    *Status
	// Seen advances LastSeen when it is after the stored value.
	Seen     time.Time
	Mode     *PlugMode
	SwitchOn *bool
	Reason   Reason
	// MustExist makes Upsert fail with ErrDeviceNotFound instead of
	// creating the device.
	MustExist bool
	// IfKind and IfIPAddress make Upsert fail with ErrStale unless the
	// stored device still has that kind and address.
	IfKind      Kind
	IfIPAddress *string
}

// Ptr returns a pointer to v. Handy for building Updates.
func Ptr[T any](v T) *T {
	return &v
}

// Stats summarises registry contents for monitoring.
type Stats struct {
	Total     int
	ByKind    map[Kind]int
	Connected map[Kind]int
	History   int
}
